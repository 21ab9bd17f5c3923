package provider

import (
	"context"
)

// UploadMode selects the wire shape of the byte transfer. Exactly one mode
// applies to a descriptor; the transport dispatches on it.
type UploadMode string

const (
	// ModeRaw sends the file as the request body of a single PUT/POST.
	ModeRaw UploadMode = "raw"
	// ModeMultipartForm sends the file as a multipart form field plus any
	// extra literal fields.
	ModeMultipartForm UploadMode = "multipart-form"
	// ModeChunkedSDK uses the resumable session protocol with fixed-size
	// chunks instead of a single request.
	ModeChunkedSDK UploadMode = "chunked-sdk"
)

// UploadDescriptor describes how to move the bytes to a provider-furnished
// upload target. It is created once per benchmark attempt and consumed
// immediately; it is never reused.
type UploadDescriptor struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Mode            UploadMode        `json:"mode"`
	Headers         map[string]string `json:"headers,omitempty"`
	FormField       string            `json:"formField,omitempty"`
	ExtraFormFields map[string]string `json:"extraFormFields,omitempty"`
}

// CreateUploadResult is the outcome of initiating an upload: an opaque
// provider-assigned tracking id used for status polling, and the descriptor
// for the byte transfer.
type CreateUploadResult struct {
	TrackingID string           `json:"trackingId"`
	Upload     UploadDescriptor `json:"upload"`
}

// Status reports asynchronous server-side processing state. At most one of
// Ready or Failed is true; both false means still processing. Ready implies
// PlaybackURL is a non-empty manifest URL.
type Status struct {
	Ready       bool   `json:"ready"`
	Failed      bool   `json:"failed"`
	PlaybackURL string `json:"playbackUrl"`
	Error       string `json:"error,omitempty"`
}

// Provider is the uniform capability every video-hosting integration must
// satisfy. CheckStatus must be safe to call repeatedly until it reports a
// terminal state.
type Provider interface {
	Slug() string
	Name() string
	CreateUpload(ctx context.Context, corsOrigin string) (*CreateUploadResult, error)
	CheckStatus(ctx context.Context, trackingID string) (*Status, error)
}
