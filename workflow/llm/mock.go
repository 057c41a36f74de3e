package llm

import (
	"context"
	"sync"
)

// MockChatModel is a test ChatModel: it replays a fixed sequence of
// responses (repeating the last one once exhausted) and records every
// call for assertions.
type MockChatModel struct {
	Responses []ChatOut
	Err       error

	mu        sync.Mutex
	Calls     []MockChatCall
	callIndex int
}

// MockChatCall records one Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

func (m *MockChatModel) Chat(_ context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Tools: tools})
	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}
	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}
