// Package fastpix integrates FastPix on-demand media. Uploads go through the
// resumable session protocol against the signed URL returned at creation, so
// the descriptor is tagged chunked-sdk.
package fastpix

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

const (
	defaultBaseURL = "https://api.fastpix.io/v1/on-demand"
	streamBaseURL  = "https://stream.fastpix.io"
)

type Config struct {
	AccessToken string
	SecretKey   string
	BaseURL     string
}

type FastPix struct {
	client *resty.Client
}

func New(config Config) (*FastPix, error) {
	if config.AccessToken == "" || config.SecretKey == "" {
		return nil, errors.New("FASTPIX_ACCESS_TOKEN and FASTPIX_SECRET_KEY required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	auth := base64.StdEncoding.EncodeToString([]byte(config.AccessToken + ":" + config.SecretKey))
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Basic "+auth)

	return &FastPix{client: client}, nil
}

func (*FastPix) Slug() string { return "fastpix" }

func (*FastPix) Name() string { return "FastPix" }

type mediaData struct {
	UploadID    string `json:"uploadId"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	Error       string `json:"error"`
	PlaybackIDs []struct {
		ID string `json:"id"`
	} `json:"playbackIds"`
}

type mediaResponse struct {
	Data mediaData `json:"data"`
}

func (f *FastPix) CreateUpload(ctx context.Context, corsOrigin string) (*provider.CreateUploadResult, error) {
	if corsOrigin == "" {
		corsOrigin = "*"
	}

	var body mediaResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"corsOrigin": corsOrigin,
			"pushMediaSettings": map[string]interface{}{
				"accessPolicy":  "public",
				"maxResolution": "1080p",
				"mediaQuality":  "standard",
			},
		}).
		SetResult(&body).
		Post("/upload")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create fastpix upload")
	}

	if resp.IsError() {
		return nil, errors.Errorf("FastPix upload create failed (%d): %s", resp.StatusCode(), resp.String())
	}

	if body.Data.UploadID == "" {
		return nil, errors.New("FastPix upload response missing uploadId")
	}

	return &provider.CreateUploadResult{
		TrackingID: body.Data.UploadID,
		Upload: provider.UploadDescriptor{
			URL:    body.Data.URL,
			Method: "PUT",
			Mode:   provider.ModeChunkedSDK,
		},
	}, nil
}

func (f *FastPix) CheckStatus(ctx context.Context, trackingID string) (*provider.Status, error) {
	var body mediaResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/" + trackingID)
	if err != nil {
		return nil, errors.Wrap(err, "cannot check fastpix status")
	}

	if resp.IsError() {
		return nil, errors.Errorf("FastPix status check failed (%d)", resp.StatusCode())
	}

	asset := body.Data
	if asset.Status == "Ready" && len(asset.PlaybackIDs) > 0 {
		return &provider.Status{
			Ready:       true,
			PlaybackURL: fmt.Sprintf("%s/%s.m3u8", streamBaseURL, asset.PlaybackIDs[0].ID),
		}, nil
	}

	status := &provider.Status{Failed: asset.Status == "Failed"}
	if status.Failed {
		reason := asset.Error
		if reason == "" {
			reason = "unknown reason"
		}
		status.Error = "FastPix processing failed: " + reason
	}

	return status, nil
}
