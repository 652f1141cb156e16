// Package openai provides a delegate turn endpoint backed by the OpenAI Chat
// Completions API (streaming). The delegate's session history is loaded from
// the message store and the assistant reply is persisted after the stream
// ends.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/delegatemesh/core"
	"github.com/openai/openai-go"
)

// DefaultSystemPrompt frames the delegate's turn. The delegate answers the
// delegator, not an end user.
const DefaultSystemPrompt = "You are handling a task delegated by another agent. " +
	"Focus exclusively on the task, be concise, and deliver actionable results. " +
	"Do not address the end user directly."

// Options configure the OpenAI turn endpoint. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	SystemPrompt        string
}

// Endpoint implements core.TurnEndpoint using the official OpenAI client.
type Endpoint struct {
	client *openai.Client
	store  core.MessageStore
	opts   Options
}

// Compile-time interface assertion.
var _ core.TurnEndpoint = (*Endpoint)(nil)

// NewEndpoint creates an OpenAI turn endpoint using a fresh client.
func NewEndpoint(store core.MessageStore, optFns ...func(o *Options)) *Endpoint {
	client := openai.NewClient()
	return NewEndpointFromClient(&client, store, optFns...)
}

// NewEndpointFromClient creates an OpenAI turn endpoint from an existing client.
func NewEndpointFromClient(client *openai.Client, store core.MessageStore, optFns ...func(o *Options)) *Endpoint {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		SystemPrompt:        DefaultSystemPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Endpoint{client: client, store: store, opts: opts}
}

// Run implements core.TurnEndpoint. The new user messages are persisted
// first, then the reply is streamed; the accumulated assistant message is
// appended to the store after the stream closes.
func (e *Endpoint) Run(ctx context.Context, req core.TurnRequest) (<-chan core.TurnEvent, <-chan error, error) {
	if req.SessionID == "" {
		return nil, nil, fmt.Errorf("session id is required")
	}
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("at least one message is required")
	}

	events := make(chan core.TurnEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		history, err := e.store.Messages(ctx, req.SessionID)
		if err != nil {
			errCh <- fmt.Errorf("failed to load session history: %w", err)
			return
		}

		for _, m := range req.Messages {
			if err := e.store.Append(ctx, req.SessionID, m); err != nil {
				errCh <- fmt.Errorf("failed to persist request message: %w", err)
				return
			}
		}

		params := openai.ChatCompletionNewParams{
			Messages:            e.buildMessages(append(history, req.Messages...)),
			Model:               e.opts.Model,
			Temperature:         openai.Float(e.opts.Temperature),
			MaxCompletionTokens: openai.Int(e.opts.MaxCompletionTokens),
		}

		stream := e.client.Chat.Completions.NewStreaming(ctx, params)

		var replyBuilder strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				replyBuilder.WriteString(choice.Delta.Content)
				select {
				case <-ctx.Done():
					return
				case events <- core.TurnEvent{Delta: choice.Delta.Content}:
				}
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() == nil {
				errCh <- fmt.Errorf("openai streaming error: %w", err)
			}
			return
		}

		// Persist after the stream ends. Use a background context so a caller
		// canceling right after completion cannot lose the reply.
		if reply := replyBuilder.String(); reply != "" {
			if err := e.store.Append(context.Background(), req.SessionID, core.Message{
				Role:      core.RoleAssistant,
				Content:   reply,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				errCh <- fmt.Errorf("failed to persist assistant reply: %w", err)
			}
		}
	}()

	return events, errCh, nil
}

func (e *Endpoint) buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if e.opts.SystemPrompt != "" {
		out = append(out, openai.SystemMessage(e.opts.SystemPrompt))
	}
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
