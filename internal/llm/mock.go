package llm

import (
	"context"
	"strings"
)

// MockAdapter produces deterministic local replies when no provider is
// reachable. Replies echo the grounding context so retrieval issues stay
// visible during development.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	select {
	case <-ctx.Done():
		return MessageResponse{}, ctx.Err()
	default:
	}

	parts := buildMockReply(req)
	var out strings.Builder
	for _, part := range parts {
		out.WriteString(part)
		if onDelta != nil {
			if err := onDelta(part); err != nil {
				return MessageResponse{}, err
			}
		}
	}
	return MessageResponse{Text: out.String()}, nil
}

func buildMockReply(req MessageRequest) []string {
	question := strings.TrimSpace(req.InputText)
	if question == "" {
		return []string{"Tôi đang lắng nghe."}
	}
	if strings.TrimSpace(req.System) == "" {
		return []string{
			"Xin lỗi, tôi chưa tìm thấy thông tin chính xác trong hệ thống.",
		}
	}
	return []string{
		"Theo thông tin hiện có: ",
		firstContextLine(req.System),
	}
}

func firstContextLine(system string) string {
	for _, line := range strings.Split(system, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" && !strings.HasSuffix(line, ":") {
			return line
		}
	}
	return "vui lòng liên hệ tổng đài để được hỗ trợ chi tiết."
}
