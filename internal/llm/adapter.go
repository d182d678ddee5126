package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MessageRequest is the normalized generation request sent to the provider.
type MessageRequest struct {
	SessionID string   `json:"session_id"`
	TurnID    string   `json:"turn_id"`
	System    string   `json:"system,omitempty"`
	History   []string `json:"history,omitempty"`
	InputText string   `json:"input_text"`
}

// MessageResponse is the final response after streaming deltas.
type MessageResponse struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Adapter bridges the turn orchestrator with the language-model provider.
type Adapter interface {
	StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error)
}

// Config controls adapter construction.
type Config struct {
	Mode string
	URL  string
}

// NewAdapter builds the configured adapter. Auto mode prefers the HTTP
// provider when a URL is set, with the mock as fallback so local runs never
// dead-end on provider outages.
func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewFallbackAdapter(NewHTTPAdapter(cfg.URL), NewMockAdapter()), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("provider HTTP url is required for http mode")
		}
		return NewHTTPAdapter(cfg.URL), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported adapter mode %q", cfg.Mode)
	}
}

// FallbackAdapter attempts a primary adapter first and falls back on error.
// Context cancellation is terminal: the caller gave up, so the fallback
// never runs.
type FallbackAdapter struct {
	primary  Adapter
	fallback Adapter
}

func NewFallbackAdapter(primary, fallback Adapter) *FallbackAdapter {
	return &FallbackAdapter{primary: primary, fallback: fallback}
}

func (a *FallbackAdapter) StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	resp, err := a.primary.StreamResponse(ctx, req, onDelta)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return MessageResponse{}, err
	}
	if a.fallback == nil {
		return MessageResponse{}, err
	}
	fallbackResp, fallbackErr := a.fallback.StreamResponse(ctx, req, onDelta)
	if fallbackErr != nil {
		return MessageResponse{}, fmt.Errorf("primary adapter error: %w; fallback adapter error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}
