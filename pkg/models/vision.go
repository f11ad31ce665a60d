package models

import "context"

// VisionProvider is the core interface that all vision model integrations
// must implement. Never call specific providers directly — always inject
// this interface.
type VisionProvider interface {
	// Tag submits one or more image payloads and returns the model's raw
	// text reply. The reply is expected to parse into a TagSet per image,
	// but callers must tolerate arbitrary text (see internal/parse).
	Tag(ctx context.Context, req TagRequest) (string, error)
	// Name returns the provider identifier (e.g., "anthropic", "ollama").
	Name() string
}

// TagRequest is the input to a single vision API call. A batched call
// carries multiple images and counts once against the rate window.
type TagRequest struct {
	Model    string
	TagCount int
	Prompt   string // system instruction; built by the dispatcher
	Images   []ImagePayload
}

// ImagePayload is one encoded image attached to a TagRequest.
type ImagePayload struct {
	MediaType string // e.g. "image/jpeg"
	Data      string // base64-encoded bytes
}
