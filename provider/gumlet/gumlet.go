// Package gumlet integrates Gumlet Video. Assets are created inside a
// pre-provisioned collection with ABR output and uploaded with a raw PUT to
// the returned signed URL.
package gumlet

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

const defaultBaseURL = "https://api.gumlet.com/v1/video"

type Config struct {
	APIKey       string
	CollectionID string
	BaseURL      string
}

type Gumlet struct {
	client       *resty.Client
	collectionID string
}

func New(config Config) (*Gumlet, error) {
	if config.APIKey == "" {
		return nil, errors.New("GUMLET_API_KEY required")
	}

	if config.CollectionID == "" {
		return nil, errors.New("GUMLET_COLLECTION_ID required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(config.APIKey)

	return &Gumlet{client: client, collectionID: config.CollectionID}, nil
}

func (*Gumlet) Slug() string { return "gumlet" }

func (*Gumlet) Name() string { return "Gumlet" }

type assetResponse struct {
	AssetID   string `json:"asset_id"`
	UploadURL string `json:"upload_url"`
	Status    string `json:"status"`
	Output    struct {
		PlaybackURL string `json:"playback_url"`
		HLSURL      string `json:"hls_url"`
	} `json:"output"`
}

func (g *Gumlet) CreateUpload(ctx context.Context, _ string) (*provider.CreateUploadResult, error) {
	var asset assetResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"collection_id": g.collectionID,
			"format":        "ABR",
		}).
		SetResult(&asset).
		Post("/assets/upload")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create gumlet asset")
	}

	if resp.IsError() {
		return nil, errors.Errorf("Gumlet upload create failed (%d): %s", resp.StatusCode(), resp.String())
	}

	return &provider.CreateUploadResult{
		TrackingID: asset.AssetID,
		Upload: provider.UploadDescriptor{
			URL:    asset.UploadURL,
			Method: "PUT",
			Mode:   provider.ModeRaw,
		},
	}, nil
}

func (g *Gumlet) CheckStatus(ctx context.Context, trackingID string) (*provider.Status, error) {
	var asset assetResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&asset).
		Get("/assets/" + trackingID)
	if err != nil {
		return nil, errors.Wrap(err, "cannot check gumlet status")
	}

	if resp.IsError() {
		return nil, errors.Errorf("Gumlet status check failed (%d)", resp.StatusCode())
	}

	switch asset.Status {
	case "ready":
		playbackURL := asset.Output.PlaybackURL
		if playbackURL == "" {
			playbackURL = asset.Output.HLSURL
		}

		if playbackURL == "" {
			return &provider.Status{Failed: true, Error: "Gumlet: no playback URL in ready response"}, nil
		}

		return &provider.Status{Ready: true, PlaybackURL: playbackURL}, nil
	case "errored", "failed":
		return &provider.Status{Failed: true, Error: "Gumlet processing failed (" + asset.Status + ")"}, nil
	default:
		return &provider.Status{}, nil
	}
}
