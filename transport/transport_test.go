package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

func testFile(content string) File {
	return File{
		Name:    "clip.mp4",
		Size:    int64(len(content)),
		Content: strings.NewReader(content),
	}
}

func TestUploader_Upload_UnknownMode(t *testing.T) {
	assert := assert.New(t)
	uploader := NewUploader(Config{})

	err := uploader.Upload(context.Background(), provider.UploadDescriptor{Mode: "carrier-pigeon"}, testFile("x"))
	assert.ErrorContains(err, "unknown upload mode")
}

func TestUploader_Raw_SendsBodyAndHeaders(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPut, r.Method)
		assert.Equal("video/mp4", r.Header.Get("Content-Type"))
		assert.Equal("signed", r.Header.Get("X-Upload-Token"))
		assert.EqualValues(11, r.ContentLength)

		body, err := io.ReadAll(r.Body)
		assert.NoError(err)
		assert.Equal("hello bytes", string(body))
	}))
	defer server.Close()

	uploader := NewUploader(Config{})
	err := uploader.Upload(context.Background(), provider.UploadDescriptor{
		URL:     server.URL,
		Method:  "PUT",
		Mode:    provider.ModeRaw,
		Headers: map[string]string{"X-Upload-Token": "signed"},
	}, testFile("hello bytes"))
	assert.NoError(err)
}

func TestUploader_Raw_FailureStatusIncludesBody(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "signature expired")
	}))
	defer server.Close()

	uploader := NewUploader(Config{})
	err := uploader.Upload(context.Background(), provider.UploadDescriptor{
		URL:    server.URL,
		Method: "PUT",
		Mode:   provider.ModeRaw,
	}, testFile("hello"))
	assert.ErrorContains(err, "Upload failed (403): signature expired")
}

func TestUploader_Multipart_FieldsAndBoundary(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(r.Header.Get("Content-Type"), "multipart/form-data; boundary=")

		assert.NoError(r.ParseMultipartForm(1 << 20))
		assert.Equal("abc123", r.FormValue("signature"))

		file, header, err := r.FormFile("video")
		assert.NoError(err)
		defer file.Close()

		assert.Equal("clip.mp4", header.Filename)

		body, err := io.ReadAll(file)
		assert.NoError(err)
		assert.Equal("hello bytes", string(body))
	}))
	defer server.Close()

	uploader := NewUploader(Config{})
	err := uploader.Upload(context.Background(), provider.UploadDescriptor{
		URL:       server.URL,
		Method:    "POST",
		Mode:      provider.ModeMultipartForm,
		FormField: "video",
		// a descriptor content type must not clobber the multipart boundary
		Headers:         map[string]string{"content-type": "application/octet-stream"},
		ExtraFormFields: map[string]string{"signature": "abc123"},
	}, testFile("hello bytes"))
	assert.NoError(err)
}

func TestUploader_Resumable_ChunkSequence(t *testing.T) {
	assert := assert.New(t)

	var ranges []string
	var bodies []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			assert.Equal("start", r.Header.Get("x-goog-resumable"))
			w.Header().Set("Location", "http://"+r.Host+"/session-1")
			w.WriteHeader(http.StatusCreated)
			return
		}

		assert.Equal(http.MethodPut, r.Method)
		assert.Equal("/session-1", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		assert.NoError(err)

		ranges = append(ranges, r.Header.Get("Content-Range"))
		bodies = append(bodies, string(body))

		if r.Header.Get("Content-Range") == "bytes 8-9/10" {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.WriteHeader(http.StatusPermanentRedirect)
	}))
	defer server.Close()

	uploader := NewUploader(Config{ChunkSize: 4})
	err := uploader.Upload(context.Background(), provider.UploadDescriptor{
		URL:    server.URL,
		Method: "PUT",
		Mode:   provider.ModeChunkedSDK,
	}, testFile("0123456789"))
	assert.NoError(err)

	assert.Equal([]string{"bytes 0-3/10", "bytes 4-7/10", "bytes 8-9/10"}, ranges)
	assert.Equal([]string{"0123", "4567", "89"}, bodies)
}

func TestUploader_Resumable_SessionRejected(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "bad signature")
	}))
	defer server.Close()

	uploader := NewUploader(Config{ChunkSize: 4})
	err := uploader.Upload(context.Background(), provider.UploadDescriptor{
		URL:    server.URL,
		Method: "PUT",
		Mode:   provider.ModeChunkedSDK,
	}, testFile("0123456789"))
	assert.ErrorContains(err, "resumable session rejected (401): bad signature")
}

func TestRelayClient_Upload(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/providers/gumlet/proxy-upload", r.URL.Path)

		assert.NoError(r.ParseMultipartForm(1 << 20))

		file, header, err := r.FormFile("file")
		assert.NoError(err)
		defer file.Close()

		assert.Equal("clip.mp4", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"trackingId":"track-42"}`)
	}))
	defer server.Close()

	client := NewRelayClient(server.URL, nil)
	trackingID, err := client.Upload(context.Background(), "gumlet", testFile("hello bytes"))
	assert.NoError(err)
	assert.Equal("track-42", trackingID)
}

func TestRelayClient_Upload_ServerErrorMessage(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"Gumlet processing failed (errored)"}`)
	}))
	defer server.Close()

	client := NewRelayClient(server.URL, nil)
	_, err := client.Upload(context.Background(), "gumlet", testFile("hello"))
	assert.EqualError(err, "Gumlet processing failed (errored)")
}
