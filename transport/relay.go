package transport

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"
)

// RelayClient sends the raw file to a same-origin relay, which performs the
// provider's create-then-transfer sequence server-side. The single relayed
// call substitutes for both steps and returns the tracking id.
type RelayClient struct {
	client  *http.Client
	baseURL string
}

func NewRelayClient(baseURL string, client *http.Client) *RelayClient {
	if client == nil {
		client = http.DefaultClient
	}

	return &RelayClient{client: client, baseURL: baseURL}
}

type relayResponse struct {
	TrackingID string `json:"trackingId"`
	Error      string `json:"error"`
}

func (r *RelayClient) Upload(ctx context.Context, slug string, file File) (string, error) {
	pipeReader, pipeWriter := io.Pipe()
	writer := multipart.NewWriter(pipeWriter)

	go func() {
		part, err := writer.CreateFormFile("file", file.Name)
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		if _, err = io.Copy(part, file.reader()); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		pipeWriter.CloseWithError(writer.Close())
	}()

	url := r.baseURL + "/api/providers/" + slug + "/proxy-upload"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pipeReader)
	if err != nil {
		return "", errors.Wrap(err, "cannot build relay request")
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "relay request failed")
	}
	defer resp.Body.Close()

	var body relayResponse
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 300 {
		return "", errors.Wrap(err, "cannot decode relay response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if body.Error != "" {
			return "", errors.New(body.Error)
		}

		return "", errors.Errorf("Proxy upload failed (%d)", resp.StatusCode)
	}

	return body.TrackingID, nil
}
