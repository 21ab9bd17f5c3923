// Package transport moves file bytes to a provider-furnished upload target.
// It dispatches on the descriptor's upload mode and performs no retries of its
// own; retry policy belongs to the benchmark engine.
//
// The transfers use net/http directly instead of the resty client the rest of
// the codebase uses: resty buffers request bodies for its retry middleware,
// which is unacceptable for streaming multi-hundred-megabyte uploads.
package transport

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

// DefaultChunkSize is the resumable-upload chunk size: 16 MiB.
const DefaultChunkSize = 16 << 20

type Uploader struct {
	client    *http.Client
	chunkSize int64
	log       zerolog.Logger
}

type Config struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// ChunkSize defaults to DefaultChunkSize; tests shrink it.
	ChunkSize int64
}

func NewUploader(config Config) *Uploader {
	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}

	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Uploader{
		client:    client,
		chunkSize: chunkSize,
		log:       log.With().Str("module", "transport").Logger(),
	}
}

// Upload executes the byte transfer described by desc. It fails when the
// transfer response is not a success status or the resumable protocol reports
// an error.
func (u *Uploader) Upload(ctx context.Context, desc provider.UploadDescriptor, file File) error {
	switch desc.Mode {
	case provider.ModeRaw:
		return u.uploadRaw(ctx, desc, file)
	case provider.ModeMultipartForm:
		return u.uploadMultipart(ctx, desc, file)
	case provider.ModeChunkedSDK:
		return u.uploadResumable(ctx, desc, file)
	default:
		return errors.Errorf("unknown upload mode: %s", desc.Mode)
	}
}

func (u *Uploader) uploadRaw(ctx context.Context, desc provider.UploadDescriptor, file File) error {
	req, err := http.NewRequestWithContext(ctx, desc.Method, desc.URL, file.reader())
	if err != nil {
		return errors.Wrap(err, "cannot build upload request")
	}

	req.ContentLength = file.Size
	req.Header.Set("Content-Type", file.contentType())

	for key, value := range desc.Headers {
		req.Header.Set(key, value)
	}

	u.log.Debug().Str("url", desc.URL).Str("method", desc.Method).Int64("size", file.Size).Msg("starting raw upload")

	resp, err := u.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "upload request failed")
	}
	defer resp.Body.Close()

	return checkTransferStatus(resp)
}

func (u *Uploader) uploadMultipart(ctx context.Context, desc provider.UploadDescriptor, file File) error {
	field := desc.FormField
	if field == "" {
		field = "file"
	}

	pipeReader, pipeWriter := io.Pipe()
	writer := multipart.NewWriter(pipeWriter)

	go func() {
		part, err := writer.CreateFormFile(field, file.Name)
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		if _, err = io.Copy(part, file.reader()); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		for key, value := range desc.ExtraFormFields {
			if err = writer.WriteField(key, value); err != nil {
				pipeWriter.CloseWithError(err)
				return
			}
		}

		pipeWriter.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, desc.Method, desc.URL, pipeReader)
	if err != nil {
		return errors.Wrap(err, "cannot build upload request")
	}

	// the multipart writer owns Content-Type so the boundary survives;
	// descriptor headers must never override it
	req.Header.Set("Content-Type", writer.FormDataContentType())

	for key, value := range desc.Headers {
		if strings.EqualFold(key, "Content-Type") {
			continue
		}
		req.Header.Set(key, value)
	}

	u.log.Debug().Str("url", desc.URL).Str("field", field).Msg("starting multipart upload")

	resp, err := u.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "upload request failed")
	}
	defer resp.Body.Close()

	return checkTransferStatus(resp)
}

func checkTransferStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return errors.Errorf("Upload failed (%d): %s", resp.StatusCode, string(body))
}
