package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

// uploadResumable speaks the resumable session protocol used by signed
// chunked-upload URLs: a POST with x-goog-resumable: start opens a session,
// then each chunk goes up as a PUT with a Content-Range header. Intermediate
// chunks are acknowledged with 308, the final one with 2xx.
func (u *Uploader) uploadResumable(ctx context.Context, desc provider.UploadDescriptor, file File) error {
	sessionURL, err := u.openResumableSession(ctx, desc, file)
	if err != nil {
		return err
	}

	var offset int64
	for offset < file.Size {
		length := u.chunkSize
		if offset+length > file.Size {
			length = file.Size - offset
		}

		final := offset+length == file.Size

		if err = u.putChunk(ctx, sessionURL, file, offset, length, final); err != nil {
			return err
		}

		u.log.Debug().
			Int64("offset", offset).
			Int64("length", length).
			Bool("final", final).
			Msg("uploaded chunk")

		offset += length
	}

	return nil
}

func (u *Uploader) openResumableSession(ctx context.Context, desc provider.UploadDescriptor, file File) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, "cannot build session request")
	}

	req.Header.Set("x-goog-resumable", "start")
	req.Header.Set("Content-Type", file.contentType())

	for key, value := range desc.Headers {
		req.Header.Set(key, value)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "resumable session request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.Errorf("resumable session rejected (%d): %s", resp.StatusCode, string(body))
	}

	// some backends accept chunks on the signed URL itself
	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		sessionURL = desc.URL
	}

	return sessionURL, nil
}

func (u *Uploader) putChunk(ctx context.Context, sessionURL string, file File, offset, length int64, final bool) error {
	chunk := io.NewSectionReader(file.Content, offset, length)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, chunk)
	if err != nil {
		return errors.Wrap(err, "cannot build chunk request")
	}

	req.ContentLength = length
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, file.Size))

	resp, err := u.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "chunk upload failed")
	}
	defer resp.Body.Close()

	if final {
		return checkTransferStatus(resp)
	}

	if resp.StatusCode != http.StatusPermanentRedirect && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("chunk rejected (%d): %s", resp.StatusCode, string(body))
	}

	return nil
}
