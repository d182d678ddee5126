package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/llm"
	"github.com/danghm/tellerbot/internal/observability"
	"github.com/danghm/tellerbot/internal/protocol"
	"github.com/danghm/tellerbot/internal/retrieval"
	"github.com/danghm/tellerbot/internal/session"
)

// One shared Metrics: promauto registers into the default registry, which
// tolerates only one registration per metric name per process.
var testMetrics = observability.NewMetrics("tellerbot_engine_test")

type recordingSearcher struct {
	mu      sync.Mutex
	queries []string
	docs    []retrieval.Document
}

func (s *recordingSearcher) Search(_ context.Context, partition, query string, _ int) ([]retrieval.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, partition+"|"+query)
	return s.docs, nil
}

func (s *recordingSearcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

type scriptedAdapter struct {
	deltas []string
	err    error
}

func (a scriptedAdapter) StreamResponse(_ context.Context, _ llm.MessageRequest, onDelta llm.DeltaHandler) (llm.MessageResponse, error) {
	var out strings.Builder
	for _, d := range a.deltas {
		out.WriteString(d)
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return llm.MessageResponse{}, err
			}
		}
	}
	if a.err != nil {
		return llm.MessageResponse{}, a.err
	}
	return llm.MessageResponse{Text: out.String()}, nil
}

type stubTool struct {
	name   string
	domain intent.Domain
	text   string
	ok     bool
}

func (t stubTool) Name() string                    { return t.name }
func (t stubTool) Applicable(d intent.Domain) bool { return d == t.domain }

func (t stubTool) Answer(context.Context, intent.Intent) (string, bool) { return t.text, t.ok }

type collector struct {
	msgs []any
}

func (c *collector) emit(msg any) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) lastEnd(t *testing.T) protocol.AnswerEnd {
	t.Helper()
	end, ok := c.msgs[len(c.msgs)-1].(protocol.AnswerEnd)
	if !ok {
		t.Fatalf("last message = %T, want AnswerEnd", c.msgs[len(c.msgs)-1])
	}
	return end
}

func (c *collector) fullText() string {
	var b strings.Builder
	for _, m := range c.msgs {
		if d, ok := m.(protocol.AnswerDelta); ok {
			b.WriteString(d.TextDelta)
		}
	}
	return b.String()
}

func newTestEngine(adapter llm.Adapter, searcher retrieval.Searcher, tools []Tool) (*Engine, *session.Store) {
	sessions := session.NewStore(time.Hour, 5)
	classifier := intent.NewClassifier(nil, llm.NewMockExtractor())
	router := retrieval.NewRouter(searcher, nil)
	return New(sessions, classifier, router, tools, adapter, testMetrics, Options{TopK: 4}), sessions
}

func TestToolTurnSkipsRetrievalAndGeneration(t *testing.T) {
	searcher := &recordingSearcher{}
	tool := stubTool{name: "loan_calculator", domain: intent.DomainLoan, text: "Trả góp hàng tháng: 10.661.855 đồng", ok: true}
	eng, sessions := newTestEngine(scriptedAdapter{deltas: []string{"KHÔNG ĐƯỢC GỌI"}}, searcher, []Tool{tool})

	c := &collector{}
	if err := eng.Answer(context.Background(), "s1", "vay 500 triệu mua nhà trong 5 năm", c.emit); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if searcher.count() != 0 {
		t.Fatalf("tool turn ran %d retrieval queries, want 0", searcher.count())
	}
	if got := c.fullText(); got != tool.text {
		t.Fatalf("streamed text = %q, want the tool answer", got)
	}
	end := c.lastEnd(t)
	if end.Reason != protocol.ReasonToolAnswered || end.Marker != protocol.EndOfStream {
		t.Fatalf("end = %+v, want tool_answered with sentinel", end)
	}

	h := sessions.History("s1")
	if len(h) != 2 || h[1].Role != session.RoleAssistant || h[1].Text != tool.text {
		t.Fatalf("history = %+v, want persisted tool answer", h)
	}
}

func TestGeneratedTurnStreamsAndEndsWithSentinel(t *testing.T) {
	searcher := &recordingSearcher{docs: []retrieval.Document{
		{Content: "Phí thường niên thẻ chuẩn là 200.000 đồng.", Metadata: map[string]string{"source": "cards.md"}},
	}}
	eng, sessions := newTestEngine(scriptedAdapter{deltas: []string{"Phí thường niên ", "là 200.000 đồng."}}, searcher, nil)

	c := &collector{}
	if err := eng.Answer(context.Background(), "s1", "thẻ tín dụng có phí thường niên không?", c.emit); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if searcher.count() == 0 {
		t.Fatalf("generated turn ran no retrieval queries")
	}
	if got := c.fullText(); got != "Phí thường niên là 200.000 đồng." {
		t.Fatalf("streamed text = %q", got)
	}
	end := c.lastEnd(t)
	if end.Reason != protocol.ReasonCompleted || end.Marker != protocol.EndOfStream {
		t.Fatalf("end = %+v, want completed with sentinel", end)
	}

	h := sessions.History("s1")
	if len(h) != 2 || h[1].Text != "Phí thường niên là 200.000 đồng." {
		t.Fatalf("history = %+v", h)
	}
}

func TestProviderFailurePersistsPartialWithErrorFragment(t *testing.T) {
	searcher := &recordingSearcher{}
	eng, sessions := newTestEngine(scriptedAdapter{deltas: []string{"Một phần câu trả lời"}, err: errors.New("provider down")}, searcher, nil)

	c := &collector{}
	if err := eng.Answer(context.Background(), "s1", "thẻ tín dụng có phí thường niên không?", c.emit); err != nil {
		t.Fatalf("Answer() error = %v, failures must still close the stream", err)
	}

	want := "Một phần câu trả lời\n[Lỗi kết nối hoặc xử lý]"
	if got := c.fullText(); got != want {
		t.Fatalf("streamed text = %q, want %q", got, want)
	}
	end := c.lastEnd(t)
	if end.Reason != protocol.ReasonFailed || end.Marker != protocol.EndOfStream {
		t.Fatalf("end = %+v, want failed with sentinel", end)
	}

	h := sessions.History("s1")
	if len(h) != 2 || h[1].Text != want {
		t.Fatalf("history = %+v, want partial plus error fragment persisted", h)
	}
}

func TestCancellationPersistsPartialWithoutSentinel(t *testing.T) {
	searcher := &recordingSearcher{}
	eng, sessions := newTestEngine(scriptedAdapter{deltas: []string{"Một phần"}, err: context.Canceled}, searcher, nil)

	c := &collector{}
	err := eng.Answer(context.Background(), "s1", "thẻ tín dụng có phí thường niên không?", c.emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Answer() error = %v, want context.Canceled", err)
	}

	for _, m := range c.msgs {
		if _, isEnd := m.(protocol.AnswerEnd); isEnd {
			t.Fatalf("canceled turn emitted a sentinel")
		}
	}
	h := sessions.History("s1")
	if len(h) != 2 || h[1].Text != "Một phần" {
		t.Fatalf("history = %+v, want the partial text persisted", h)
	}
}

func TestEmptyGenerationFallsBackToApology(t *testing.T) {
	eng, _ := newTestEngine(scriptedAdapter{}, &recordingSearcher{}, nil)

	c := &collector{}
	if err := eng.Answer(context.Background(), "s1", "thẻ tín dụng có phí thường niên không?", c.emit); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got := c.fullText(); got != apologyMessage {
		t.Fatalf("streamed text = %q, want the apology", got)
	}
	if end := c.lastEnd(t); end.Reason != protocol.ReasonCompleted {
		t.Fatalf("end reason = %q, want completed", end.Reason)
	}
}

func TestShortFollowUpGetsStickyHint(t *testing.T) {
	searcher := &recordingSearcher{}
	eng, _ := newTestEngine(scriptedAdapter{deltas: []string{"ok"}}, searcher, nil)

	ctx := context.Background()
	c := &collector{}
	if err := eng.Answer(ctx, "s1", "vay 500 triệu mua nhà trong 5 năm", c.emit); err != nil {
		t.Fatalf("first turn error = %v", err)
	}

	// No keyword and no digits: the slow tier leans on the sticky loan
	// state, so its loan type should prime the retrieval query.
	c = &collector{}
	if err := eng.Answer(ctx, "s1", "còn gì nữa?", c.emit); err != nil {
		t.Fatalf("follow-up error = %v", err)
	}

	found := false
	for _, q := range searcher.queries {
		if strings.Contains(q, "vay mua nha còn gì nữa?") {
			found = true
		}
	}
	if !found {
		t.Fatalf("queries = %v, want the sticky loan hint prepended", searcher.queries)
	}
}

func TestShortTurnInNewDomainDropsStaleHint(t *testing.T) {
	searcher := &recordingSearcher{}
	eng, _ := newTestEngine(scriptedAdapter{deltas: []string{"ok"}}, searcher, nil)

	ctx := context.Background()
	c := &collector{}
	if err := eng.Answer(ctx, "s1", "vay 500 triệu mua nhà trong 5 năm", c.emit); err != nil {
		t.Fatalf("first turn error = %v", err)
	}

	// A short card question replaces the sticky state; the old loan hint
	// must not leak into its retrieval query.
	c = &collector{}
	if err := eng.Answer(ctx, "s1", "thẻ có phí?", c.emit); err != nil {
		t.Fatalf("card turn error = %v", err)
	}

	sawCard := false
	for _, q := range searcher.queries {
		if strings.HasPrefix(q, "card|") {
			sawCard = true
			if strings.Contains(q, "vay mua nha") {
				t.Fatalf("card query carries the stale loan hint: %q", q)
			}
		}
	}
	if !sawCard {
		t.Fatalf("queries = %v, want a card partition query", searcher.queries)
	}
}

func TestUserTurnIsRedactedBeforePersisting(t *testing.T) {
	eng, sessions := newTestEngine(scriptedAdapter{deltas: []string{"ok"}}, &recordingSearcher{}, nil)

	c := &collector{}
	if err := eng.Answer(context.Background(), "s1", "số điện thoại của tôi là 0912 345 678", c.emit); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	h := sessions.History("s1")
	if len(h) == 0 || !strings.Contains(h[0].Text, "[REDACTED_PHONE]") {
		t.Fatalf("history = %+v, want the phone number redacted", h)
	}
}
