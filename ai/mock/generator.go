package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/advisor/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, Generate returns Response.
	GenerateFunc func(ctx context.Context, req ai.Request) (string, error)

	// StreamFunc is called by Stream if set.
	// If nil, Stream sends each element of Fragments in order.
	StreamFunc func(ctx context.Context, req ai.Request, fragments chan<- string) error

	// Response is the default Generate result.
	Response string

	// Fragments are the default Stream output.
	Fragments []string

	// ModelName is returned by Model. Defaults to "mock".
	ModelName string

	callCount atomic.Int64
	last      atomic.Pointer[ai.Request]
}

// NewMockGenerator creates a mock generator returning response from Generate.
func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{Response: response, ModelName: "mock"}
}

// Generate returns the scripted response.
func (m *MockGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	m.callCount.Add(1)
	m.last.Store(&req)

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return m.Response, nil
}

// Stream sends the scripted fragments, honoring cancellation.
func (m *MockGenerator) Stream(ctx context.Context, req ai.Request, fragments chan<- string) error {
	m.callCount.Add(1)
	m.last.Store(&req)

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req, fragments)
	}
	for _, f := range m.Fragments {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fragments <- f:
		}
	}
	return nil
}

// Model returns ModelName.
func (m *MockGenerator) Model() string {
	return m.ModelName
}

// CallCount returns the number of times Generate or Stream was called.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// LastRequest returns the most recent request, or nil.
func (m *MockGenerator) LastRequest() *ai.Request {
	return m.last.Load()
}
