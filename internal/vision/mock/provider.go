// Package mock provides a models.VisionProvider stand-in for tests and for
// dry runs without a real backend.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// MockProvider satisfies models.VisionProvider for testing.
type MockProvider struct {
	Name_   string
	TagFunc func(ctx context.Context, req models.TagRequest) (string, error)

	mu    sync.Mutex
	calls []models.TagRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Tag(ctx context.Context, req models.TagRequest) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.TagFunc != nil {
		return m.TagFunc(ctx, req)
	}
	return "", nil
}

// Calls returns a copy of every TagRequest the provider has received.
func (m *MockProvider) Calls() []models.TagRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TagRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Tag invocations so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// NewMockProvider returns a MockProvider that answers every image in the
// request with a deterministic title and tag list.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		TagFunc: func(_ context.Context, req models.TagRequest) (string, error) {
			sets := make([]models.TagSet, 0, len(req.Images))
			for i := range req.Images {
				sets = append(sets, models.TagSet{
					Title: fmt.Sprintf("Mock title %d", i+1),
					Tags:  []string{"mock", "testing", "placeholder"},
				})
			}
			var out []byte
			if len(sets) == 1 {
				out, _ = json.Marshal(sets[0])
			} else {
				out, _ = json.Marshal(sets)
			}
			return string(out), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		TagFunc: func(_ context.Context, _ models.TagRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		TagFunc: func(ctx context.Context, _ models.TagRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Compile-time check that MockProvider implements VisionProvider.
var _ models.VisionProvider = (*MockProvider)(nil)
