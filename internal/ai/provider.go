package ai

import (
	"context"
	"errors"
)

// Message is one turn of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a synchronous completion backend: prompt in, text out.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

var (
	// ErrUpstreamUnavailable marks transport failures and timeouts from
	// the completion service. Safe to retry with backoff.
	ErrUpstreamUnavailable = errors.New("ai: upstream unavailable")

	// ErrEmptyCompletion marks a completion with no usable text.
	ErrEmptyCompletion = errors.New("ai: empty completion")
)
