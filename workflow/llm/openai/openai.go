// Package openai adapts OpenAI's chat completions API to llm.ChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/cwlgo/wfcore/workflow/llm"
)

// ChatModel implements llm.ChatModel against OpenAI, retrying
// transient failures with a short backoff.
type ChatModel struct {
	apiKey     string
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// NewChatModel builds a ChatModel. An empty modelName defaults to
// "gpt-4o".
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &ChatModel{apiKey: apiKey, modelName: modelName, maxRetries: 3, retryDelay: time.Second}
}

func (m *ChatModel) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (llm.ChatOut, error) {
	if ctx.Err() != nil {
		return llm.ChatOut{}, ctx.Err()
	}

	var lastErr error
	retries := 0
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		retries = attempt
		out, err := m.complete(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransientError(err) || attempt >= m.maxRetries {
			break
		}
		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return llm.ChatOut{}, ctx.Err()
		}
	}
	return llm.ChatOut{}, fmt.Errorf("openai: failed after %d retries: %w", retries, lastErr)
}

func isTransientError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "503", "502", "500", "rate limit"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (m *ChatModel) complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (llm.ChatOut, error) {
	if m.apiKey == "" {
		return llm.ChatOut{}, errors.New("openai: API key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(m.apiKey))
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.ChatOut{}, fmt.Errorf("openai: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []llm.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			out[i] = openaisdk.SystemMessage(msg.Content)
		case llm.RoleAssistant:
			out[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			out[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return out
}

func convertTools(tools []llm.ToolSpec) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		out[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openaisdk.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		}
	}
	return out
}

func convertResponse(resp *openaisdk.ChatCompletion) llm.ChatOut {
	out := llm.ChatOut{
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			Name:  tc.Function.Name,
			Input: parseToolInput(tc.Function.Arguments),
		})
	}
	return out
}

func parseToolInput(jsonArgs string) map[string]any {
	if jsonArgs == "" {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(jsonArgs), &result); err != nil {
		return map[string]any{"_raw": jsonArgs}
	}
	return result
}
