// Package vimeo integrates Vimeo. The upload link comes from the tus create
// flow; playback readiness follows transcode.status and the HLS link surfaces
// under play.hls once transcoding completes.
package vimeo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

const (
	defaultBaseURL = "https://api.vimeo.com"
	acceptHeader   = "application/vnd.vimeo.*+json;version=3.4"
)

type Config struct {
	AccessToken string
	BaseURL     string
}

type Vimeo struct {
	client *resty.Client
}

func New(config Config) (*Vimeo, error) {
	token := strings.TrimSpace(config.AccessToken)
	if token == "" {
		return nil, errors.New("VIMEO_ACCESS_TOKEN required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", acceptHeader)

	return &Vimeo{client: client}, nil
}

func (*Vimeo) Slug() string { return "vimeo" }

func (*Vimeo) Name() string { return "Vimeo" }

type videoResponse struct {
	URI    string `json:"uri"`
	Upload struct {
		UploadLink string `json:"upload_link"`
	} `json:"upload"`
	Transcode struct {
		Status string `json:"status"`
	} `json:"transcode"`
	Play struct {
		HLS struct {
			Link string `json:"link"`
		} `json:"hls"`
	} `json:"play"`
}

func (v *Vimeo) CreateUpload(ctx context.Context, _ string) (*provider.CreateUploadResult, error) {
	var video videoResponse

	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"upload":  map[string]interface{}{"approach": "tus", "size": 0},
			"privacy": map[string]string{"view": "anybody"},
			"name":    fmt.Sprintf("benchmark-%d", time.Now().UnixMilli()),
		}).
		SetResult(&video).
		Post("/me/videos")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create vimeo video")
	}

	if resp.IsError() {
		return nil, errors.Errorf("Vimeo upload create failed (%d): %s", resp.StatusCode(), resp.String())
	}

	parts := strings.Split(video.URI, "/")
	videoID := parts[len(parts)-1]

	return &provider.CreateUploadResult{
		TrackingID: videoID,
		Upload: provider.UploadDescriptor{
			URL:    video.Upload.UploadLink,
			Method: "PUT",
			Mode:   provider.ModeRaw,
		},
	}, nil
}

func (v *Vimeo) CheckStatus(ctx context.Context, trackingID string) (*provider.Status, error) {
	var video videoResponse

	resp, err := v.client.R().
		SetContext(ctx).
		SetResult(&video).
		Get("/videos/" + trackingID)
	if err != nil {
		return nil, errors.Wrap(err, "cannot check vimeo status")
	}

	if resp.IsError() {
		return nil, errors.Errorf("Vimeo status check failed (%d)", resp.StatusCode())
	}

	switch video.Transcode.Status {
	case "complete":
		if video.Play.HLS.Link != "" {
			return &provider.Status{Ready: true, PlaybackURL: video.Play.HLS.Link}, nil
		}

		// the play representation can lag the transcode flag; fetch it alone
		var play videoResponse

		resp, err = v.client.R().
			SetContext(ctx).
			SetResult(&play).
			SetQueryParam("fields", "play").
			Get("/videos/" + trackingID)
		if err == nil && !resp.IsError() && play.Play.HLS.Link != "" {
			return &provider.Status{Ready: true, PlaybackURL: play.Play.HLS.Link}, nil
		}

		return &provider.Status{}, nil
	case "error":
		return &provider.Status{Failed: true, Error: "Vimeo transcoding failed"}, nil
	default:
		return &provider.Status{}, nil
	}
}
