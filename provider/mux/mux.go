// Package mux integrates Mux Video via its direct-upload API. An upload is
// created server-side, the bytes go straight to the signed URL with a raw PUT,
// and readiness is tracked through the upload -> asset chain.
package mux

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

const (
	defaultBaseURL = "https://api.mux.com/video/v1"
	streamBaseURL  = "https://stream.mux.com"
)

type Config struct {
	TokenID     string
	TokenSecret string
	// BaseURL overrides the Mux API endpoint, used by tests.
	BaseURL string
}

type Mux struct {
	client *resty.Client
}

func New(config Config) (*Mux, error) {
	if config.TokenID == "" || config.TokenSecret == "" {
		return nil, errors.New("MUX_TOKEN_ID and MUX_TOKEN_SECRET required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	auth := base64.StdEncoding.EncodeToString([]byte(config.TokenID + ":" + config.TokenSecret))
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Basic "+auth)

	return &Mux{client: client}, nil
}

func (*Mux) Slug() string { return "mux" }

func (*Mux) Name() string { return "Mux" }

type uploadData struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AssetID string `json:"asset_id"`
	Status  string `json:"status"`
}

type uploadResponse struct {
	Data uploadData `json:"data"`
}

type assetData struct {
	Status      string `json:"status"`
	PlaybackIDs []struct {
		ID string `json:"id"`
	} `json:"playback_ids"`
}

type assetResponse struct {
	Data assetData `json:"data"`
}

func (m *Mux) CreateUpload(ctx context.Context, corsOrigin string) (*provider.CreateUploadResult, error) {
	if corsOrigin == "" {
		corsOrigin = "*"
	}

	var body uploadResponse

	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"new_asset_settings": map[string]interface{}{"playback_policy": []string{"public"}},
			"cors_origin":        corsOrigin,
		}).
		SetResult(&body).
		Post("/uploads")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create mux upload")
	}

	if resp.IsError() {
		return nil, errors.Errorf("Mux upload create failed (%d)", resp.StatusCode())
	}

	return &provider.CreateUploadResult{
		TrackingID: body.Data.ID,
		Upload: provider.UploadDescriptor{
			URL:    body.Data.URL,
			Method: "PUT",
			Mode:   provider.ModeRaw,
		},
	}, nil
}

func (m *Mux) CheckStatus(ctx context.Context, trackingID string) (*provider.Status, error) {
	var upload uploadResponse

	resp, err := m.client.R().
		SetContext(ctx).
		SetResult(&upload).
		Get("/uploads/" + trackingID)
	if err != nil {
		return nil, errors.Wrap(err, "cannot check mux upload status")
	}

	if resp.IsError() {
		return nil, errors.Errorf("Mux status check failed (%d)", resp.StatusCode())
	}

	if upload.Data.AssetID == "" {
		return &provider.Status{Failed: upload.Data.Status == "errored"}, nil
	}

	var asset assetResponse

	resp, err = m.client.R().
		SetContext(ctx).
		SetResult(&asset).
		Get("/assets/" + upload.Data.AssetID)
	if err != nil {
		return nil, errors.Wrap(err, "cannot check mux asset status")
	}

	if resp.IsError() {
		return nil, errors.Errorf("Mux asset check failed (%d)", resp.StatusCode())
	}

	if asset.Data.Status == "ready" && len(asset.Data.PlaybackIDs) > 0 {
		return &provider.Status{
			Ready:       true,
			PlaybackURL: fmt.Sprintf("%s/%s.m3u8", streamBaseURL, asset.Data.PlaybackIDs[0].ID),
		}, nil
	}

	status := &provider.Status{Failed: asset.Data.Status == "errored"}
	if status.Failed {
		status.Error = "Mux asset processing failed"
	}

	return status, nil
}
