package ocr

import (
	"context"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockBackend is a Backend for testing.
type MockBackend struct {
	// Configurable behavior
	Result  string
	Err     error
	Latency time.Duration

	// Process, when set, overrides Result/Err entirely.
	Process func(ctx context.Context, image []byte) (string, error)

	// State
	callCount atomic.Int64
}

// NewMockBackend creates a mock backend returning fixed markdown.
func NewMockBackend(result string) *MockBackend {
	return &MockBackend{Result: result}
}

// Name returns the backend identifier.
func (m *MockBackend) Name() string {
	return MockName
}

// Calls returns how many times ProcessImage has been invoked.
func (m *MockBackend) Calls() int {
	return int(m.callCount.Load())
}

// ProcessImage returns the configured result or error.
func (m *MockBackend) ProcessImage(ctx context.Context, image []byte) (string, error) {
	m.callCount.Add(1)

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Process != nil {
		return m.Process(ctx, image)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Result, nil
}
