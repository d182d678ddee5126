package engine

import (
	"strings"

	"github.com/danghm/tellerbot/internal/retrieval"
	"github.com/danghm/tellerbot/internal/session"
)

const systemPreamble = "Bạn là trợ lý ngân hàng. Trả lời ngắn gọn, chính xác, " +
	"bằng tiếng Việt, và chỉ dựa trên thông tin được cung cấp dưới đây. " +
	"Nếu thông tin không đủ, hãy nói rõ là bạn chưa có thông tin."

// buildSystemPrompt renders the grounding context block. With no documents
// the preamble stands alone and the model is expected to admit ignorance.
func buildSystemPrompt(docs []retrieval.Document) string {
	if len(docs) == 0 {
		return systemPreamble
	}
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nThông tin tham khảo:\n")
	for _, doc := range docs {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(doc.Content))
		if src := doc.Source(); src != "" {
			b.WriteString(" (nguồn: ")
			b.WriteString(src)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderHistory flattens prior turns for the provider, most recent last.
func renderHistory(turns []session.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		prefix := "Khách: "
		if t.Role == session.RoleAssistant {
			prefix = "Trợ lý: "
		}
		out = append(out, prefix+t.Text)
	}
	return out
}
