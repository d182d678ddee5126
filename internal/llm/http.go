package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danghm/tellerbot/internal/reliability"
)

const maxAttempts = 3

// HTTPAdapter forwards generation requests to a provider HTTP endpoint and
// consumes SSE or NDJSON streams into delta callbacks.
type HTTPAdapter struct {
	url    string
	client *http.Client
}

func NewHTTPAdapter(url string) *HTTPAdapter {
	return &HTTPAdapter{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *HTTPAdapter) StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	// Retry only while nothing has been emitted; once a delta reached the
	// caller the stream is committed.
	emitted := false
	guarded := func(delta string) error {
		emitted = true
		if onDelta == nil {
			return nil
		}
		return onDelta(delta)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return MessageResponse{}, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, 100*time.Millisecond, time.Second)):
			}
		}

		resp, retryable, err := a.attempt(ctx, payload, guarded)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if emitted || !retryable || !reliability.IsRetryable(err) {
			return MessageResponse{}, err
		}
	}
	return MessageResponse{}, lastErr
}

func (a *HTTPAdapter) attempt(ctx context.Context, payload []byte, onDelta DeltaHandler) (MessageResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return MessageResponse{}, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return MessageResponse{}, true, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		retryable := reliability.IsRetryableHTTPStatus(res.StatusCode)
		return MessageResponse{}, retryable, fmt.Errorf("provider http status %d: %s", res.StatusCode, string(body))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		resp, err := consumeStreaming(res.Body, onDelta)
		return resp, false, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return MessageResponse{}, false, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return MessageResponse{}, false, nil
		}
		if err := onDelta(text); err != nil {
			return MessageResponse{}, false, err
		}
		return MessageResponse{Text: text}, false, nil
	}

	text := extractText(obj)
	if text != "" {
		if err := onDelta(text); err != nil {
			return MessageResponse{}, false, err
		}
	}
	return MessageResponse{Text: text}, false, nil
}

func consumeStreaming(body io.Reader, onDelta DeltaHandler) (MessageResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = extractText(obj)
		}

		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return MessageResponse{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return MessageResponse{}, fmt.Errorf("stream read: %w", err)
	}

	return MessageResponse{Text: out.String()}, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
