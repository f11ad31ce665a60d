package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/imagetagger/internal/config"
	"github.com/kiranshivaraju/imagetagger/internal/vision"
	"github.com/kiranshivaraju/imagetagger/internal/vision/anthropic"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

func newProvider(baseURL string) *anthropic.Provider {
	return anthropic.NewProvider(config.AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "claude-test",
	}, 5*time.Second)
}

func sampleRequest() models.TagRequest {
	return models.TagRequest{
		TagCount: 5,
		Prompt:   "tag these images",
		Images: []models.ImagePayload{
			{MediaType: "image/jpeg", Data: "aGVsbG8="},
		},
	}
}

func TestTag(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"title\":\"Hello\",\"tags\":[\"a\"]}"}]}`))
	}))
	defer srv.Close()

	reply, err := newProvider(srv.URL).Tag(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Contains(t, reply, `"title":"Hello"`)

	// Defaults from config apply when the request names no model.
	assert.Equal(t, "claude-test", gotReq["model"])
	assert.Equal(t, "tag these images", gotReq["system"])
	msgs := gotReq["messages"].([]any)
	require.Len(t, msgs, 1)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 1)
	source := content[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "image/jpeg", source["media_type"])
	assert.Equal(t, "aGVsbG8=", source["data"])
}

func TestTagModelOverride(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		gotModel, _ = req["model"].(string)
		w.Write([]byte(`{"content":[{"type":"text","text":"{}"}]}`))
	}))
	defer srv.Close()

	req := sampleRequest()
	req.Model = "claude-override"
	_, err := newProvider(srv.URL).Tag(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "claude-override", gotModel)
}

func TestTagRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"Too many requests"}}`))
	}))
	defer srv.Close()

	_, err := newProvider(srv.URL).Tag(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, vision.IsRateLimited(err))
}

func TestTagServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"internal_error","message":"boom"}}`))
	}))
	defer srv.Close()

	_, err := newProvider(srv.URL).Tag(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.False(t, vision.IsRateLimited(err))
	assert.Contains(t, err.Error(), "status=500")
}

func TestTagEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	reply, err := newProvider(srv.URL).Tag(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestTagContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newProvider(srv.URL).Tag(ctx, sampleRequest())
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	assert.Equal(t, "anthropic", newProvider("http://unused").Name())
}
