package core

import "context"

// TurnRequest carries one delegate turn: the session to run it in and the
// new messages (typically a single user task or follow-up) to process.
type TurnRequest struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
}

// TurnEvent is a streamed fragment of the delegate's reply. The orchestrator
// only drains the stream to completion; the final content is read back from
// the message store, so consumers may ignore Delta entirely.
type TurnEvent struct {
	Delta string
}

// TurnEndpoint runs a single delegate conversation turn.
//
// Semantics & Guarantees:
//   - Channel Lifecycle: the events channel is closed after the turn
//     completes (success, error, or cancellation). The error channel carries
//     at most one terminal error then closes (buffered size 1).
//   - Persistence: implementations persist the assistant reply to the
//     session's message store after the stream ends; callers must not assume
//     the reply is durable the moment the events channel closes.
//   - Cancellation: ctx cancellation stops the turn at its next suspension
//     point. A canceled turn is not reported as an error on the error
//     channel; callers detect it via ctx.Err().
//
// The immediate error return covers startup failures (malformed request,
// missing session id).
type TurnEndpoint interface {
	Run(ctx context.Context, req TurnRequest) (<-chan TurnEvent, <-chan error, error)
}
