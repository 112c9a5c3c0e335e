package provider

import (
	"context"
	"sync"
)

// MockProvider replays scripted responses for tests. Responses are
// consumed in order; when the script runs out the last response
// repeats. A nil error per entry simulates a normal reply.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	index     int

	// Calls records every (system, user) prompt pair for assertions.
	Calls []MockCall
	// Delay, when set, blocks until the context is done to simulate a
	// slow model; used to exercise timeout paths.
	Hang bool
}

// MockResponse is one scripted reply.
type MockResponse struct {
	Content string
	Err     error
}

// MockCall records the prompts of one Chat invocation.
type MockCall struct {
	System   string
	Messages []Message
}

// NewMockProvider creates a provider that replays the given responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Chat implements Provider.Chat.
func (m *MockProvider) Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error) {
	if m.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{System: systemPrompt, Messages: messages})

	if len(m.responses) == 0 {
		return &Response{Content: "{}", StopReason: StopReasonEndTurn}, nil
	}
	idx := m.index
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.index++
	}
	r := m.responses[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	return &Response{Content: r.Content, StopReason: StopReasonEndTurn}, nil
}

// Name implements Provider.Name.
func (m *MockProvider) Name() string { return "mock" }

// Model implements Provider.Model.
func (m *MockProvider) Model() string { return "mock-model" }
