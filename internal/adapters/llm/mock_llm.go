package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

// MockLLM is a deterministic Generator for local runs and tests.
//
// Without scripted replies it echoes the user text back, split into
// word-sized fragments.
type MockLLM struct {
	mu sync.Mutex

	// Fragments, when set, is streamed verbatim by every Stream call.
	Fragments []string
	// Replies maps a model name to its single-shot answer.
	Replies map[string]string
	// Errors maps a model name to the error its calls return.
	Errors map[string]error
	// FailOnce is returned by the first call only.
	FailOnce error

	streams   []domain.StreamRequest
	generates []domain.GenerateRequest
}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Stream implements domain.Generator.
func (m *MockLLM) Stream(ctx context.Context, req domain.StreamRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m.mu.Lock()
		m.streams = append(m.streams, req)
		err := m.takeErr(req.Model)
		fragments := m.Fragments
		m.mu.Unlock()

		if err != nil {
			yield("", err)
			return
		}
		if fragments == nil {
			fragments = echo(req.Text)
		}

		for _, f := range fragments {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Generate implements domain.Generator.
func (m *MockLLM) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generates = append(m.generates, req)
	if err := m.takeErr(req.Model); err != nil {
		return "", err
	}
	if reply, ok := m.Replies[req.Model]; ok {
		return reply, nil
	}
	return fmt.Sprintf("[%s] %s", req.Model, req.Text), nil
}

func (m *MockLLM) takeErr(model string) error {
	if m.FailOnce != nil {
		err := m.FailOnce
		m.FailOnce = nil
		return err
	}
	return m.Errors[model]
}

// StreamCalls returns the stream requests received so far.
func (m *MockLLM) StreamCalls() []domain.StreamRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StreamRequest(nil), m.streams...)
}

// GenerateCalls returns the single-shot requests received so far.
func (m *MockLLM) GenerateCalls() []domain.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GenerateRequest(nil), m.generates...)
}

func echo(text string) []string {
	words := strings.SplitAfter("You said: "+text, " ")
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
