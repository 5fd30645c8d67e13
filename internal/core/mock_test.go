package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/store"
)

// MockEmbedder serves queued vectors in order; when the queue runs dry it
// falls back to DefaultVector. Set Err to simulate a dead embedding service.
type MockEmbedder struct {
	mu            sync.Mutex
	ResponseQueue [][]float32
	DefaultVector []float32
	Err           error
	Calls         int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, &model.EmbeddingServiceError{Err: m.Err}
	}
	if len(m.ResponseQueue) > 0 {
		vec := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return vec, nil
	}
	return m.DefaultVector, nil
}

// MockGenerator returns a canned completion and remembers the last prompt.
type MockGenerator struct {
	Response   string
	LastPrompt string
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.LastPrompt = prompt
	if m.Response == "" {
		return "", fmt.Errorf("no response queued")
	}
	return m.Response, nil
}

// flakyStore fails CommitMutation with a version conflict a fixed number of
// times before delegating, to exercise the optimistic retry loop.
type flakyStore struct {
	*store.MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (f *flakyStore) CommitMutation(ctx context.Context, mut *model.Mutation) error {
	f.mu.Lock()
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return model.ErrVersionConflict
	}
	f.mu.Unlock()
	return f.MemoryStore.CommitMutation(ctx, mut)
}
