// Package apivideo integrates api.video. Authentication exchanges the API key
// for a short-lived bearer token which is cached until shortly before expiry;
// the video source is uploaded as a multipart form to the container created at
// benchmark time.
package apivideo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

const defaultBaseURL = "https://ws.api.video"

type Config struct {
	APIKey  string
	BaseURL string
}

type APIVideo struct {
	client  *resty.Client
	baseURL string
	apiKey  string

	mu           sync.Mutex
	token        string
	tokenExpires time.Time
}

func New(config Config) (*APIVideo, error) {
	if config.APIKey == "" {
		return nil, errors.New("APIVIDEO_API_KEY required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &APIVideo{
		client:  resty.New().SetBaseURL(baseURL),
		baseURL: baseURL,
		apiKey:  config.APIKey,
	}, nil
}

func (*APIVideo) Slug() string { return "apivideo" }

func (*APIVideo) Name() string { return "api.video" }

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *APIVideo) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExpires) {
		return a.token, nil
	}

	var body authResponse

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"apiKey": a.apiKey}).
		SetResult(&body).
		Post("/auth/api-key")
	if err != nil {
		return "", errors.Wrap(err, "cannot authenticate with api.video")
	}

	if resp.IsError() {
		return "", errors.Errorf("api.video auth failed (%d): %s", resp.StatusCode(), resp.String())
	}

	a.token = body.AccessToken
	// renew one minute early so in-flight requests never carry a stale token
	a.tokenExpires = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)

	return a.token, nil
}

type videoResponse struct {
	VideoID string `json:"videoId"`
	Assets  struct {
		HLS string `json:"hls"`
	} `json:"assets"`
}

type statusResponse struct {
	Encoding struct {
		Playable  bool `json:"playable"`
		Qualities []struct {
			Status string `json:"status"`
		} `json:"qualities"`
	} `json:"encoding"`
}

func (a *APIVideo) CreateUpload(ctx context.Context, _ string) (*provider.CreateUploadResult, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var video videoResponse

	// public:true so the HLS URL is reachable without a playback token
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]interface{}{
			"title":  fmt.Sprintf("benchmark-%d", time.Now().UnixMilli()),
			"public": true,
		}).
		SetResult(&video).
		Post("/videos")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create api.video container")
	}

	if resp.IsError() {
		return nil, errors.Errorf("api.video create failed (%d): %s", resp.StatusCode(), resp.String())
	}

	return &provider.CreateUploadResult{
		TrackingID: video.VideoID,
		Upload: provider.UploadDescriptor{
			URL:       fmt.Sprintf("%s/videos/%s/source", a.baseURL, video.VideoID),
			Method:    "POST",
			Mode:      provider.ModeMultipartForm,
			FormField: "file",
			Headers:   map[string]string{"Authorization": "Bearer " + token},
		},
	}, nil
}

func (a *APIVideo) CheckStatus(ctx context.Context, trackingID string) (*provider.Status, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var status statusResponse

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&status).
		Get("/videos/" + trackingID + "/status")
	if err != nil {
		return nil, errors.Wrap(err, "cannot check api.video status")
	}

	if resp.IsError() {
		return nil, errors.Errorf("api.video status check failed (%d)", resp.StatusCode())
	}

	if status.Encoding.Playable {
		var video videoResponse

		resp, err = a.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&video).
			Get("/videos/" + trackingID)
		if err != nil {
			return nil, errors.Wrap(err, "cannot fetch api.video video")
		}

		if resp.IsError() {
			return nil, errors.Errorf("api.video video fetch failed (%d)", resp.StatusCode())
		}

		playbackURL := video.Assets.HLS
		if playbackURL == "" {
			playbackURL = fmt.Sprintf("https://vod.api.video/vod/%s/hls/manifest.m3u8", trackingID)
		}

		return &provider.Status{Ready: true, PlaybackURL: playbackURL}, nil
	}

	for _, quality := range status.Encoding.Qualities {
		if quality.Status == "failed" {
			return &provider.Status{Failed: true, Error: "api.video encoding failed"}, nil
		}
	}

	return &provider.Status{}, nil
}
