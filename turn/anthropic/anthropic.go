// Package anthropic provides a delegate turn endpoint backed by the
// Anthropic Messages API. The delegate's session history is loaded from the
// message store, the reply is streamed, and the assistant message is
// persisted only after the stream ends; the orchestrator's persistence
// polling bridges that gap.
package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/delegatemesh/core"
)

// DefaultSystemPrompt frames the delegate's turn. The delegate answers the
// delegator, not an end user.
const DefaultSystemPrompt = "You are handling a task delegated by another agent. " +
	"Focus exclusively on the task, be concise, and deliver actionable results. " +
	"Do not address the end user directly."

// Options configures the Anthropic turn endpoint (model id, max tokens,
// temperature, API key, system prompt). Extend via functional options to
// preserve stability.
type Options struct {
	Model        anthropic.Model
	Temperature  float64
	MaxTokens    int64
	APIKey       string
	SystemPrompt string
}

// Endpoint implements core.TurnEndpoint using the official Anthropic client.
type Endpoint struct {
	client *anthropic.Client
	store  core.MessageStore
	opts   Options
}

// Compile-time interface assertion.
var _ core.TurnEndpoint = (*Endpoint)(nil)

// NewEndpoint creates an Anthropic turn endpoint using a fresh client.
func NewEndpoint(store core.MessageStore, optFns ...func(o *Options)) *Endpoint {
	opts := defaultOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Endpoint{client: &client, store: store, opts: opts}
}

// NewEndpointFromClient creates an Anthropic turn endpoint from an existing client.
func NewEndpointFromClient(client *anthropic.Client, store core.MessageStore, optFns ...func(o *Options)) *Endpoint {
	return &Endpoint{client: client, store: store, opts: defaultOptions(optFns)}
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:        anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:  0.7,
		MaxTokens:    4096,
		SystemPrompt: DefaultSystemPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
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

		params := anthropic.MessageNewParams{
			Model:       e.opts.Model,
			Messages:    buildMessages(append(history, req.Messages...)),
			MaxTokens:   e.opts.MaxTokens,
			Temperature: anthropic.Float(e.opts.Temperature),
		}
		if e.opts.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: e.opts.SystemPrompt}}
		}

		stream := e.client.Messages.NewStreaming(ctx, params)

		acc := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				errCh <- fmt.Errorf("failed to accumulate stream event: %w", err)
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					select {
					case <-ctx.Done():
						return
					case events <- core.TurnEvent{Delta: delta.Text}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() == nil {
				errCh <- fmt.Errorf("anthropic api error: %w", err)
			}
			return
		}

		// Persist after the stream ends. Use a background context so a caller
		// canceling right after completion cannot lose the reply.
		if text := accumulatedText(acc); text != "" {
			if err := e.store.Append(context.Background(), req.SessionID, core.Message{
				Role:      core.RoleAssistant,
				Content:   text,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				errCh <- fmt.Errorf("failed to persist assistant reply: %w", err)
			}
		}
	}()

	return events, errCh, nil
}

func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func accumulatedText(msg anthropic.Message) string {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	return text
}
