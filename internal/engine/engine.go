package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/llm"
	"github.com/danghm/tellerbot/internal/observability"
	"github.com/danghm/tellerbot/internal/policy"
	"github.com/danghm/tellerbot/internal/protocol"
	"github.com/danghm/tellerbot/internal/retrieval"
	"github.com/danghm/tellerbot/internal/session"
)

const (
	// apologyMessage replaces an empty generation so a turn never ends in
	// silence.
	apologyMessage = "Xin lỗi, tôi chưa tìm thấy thông tin chính xác trong hệ thống."

	// errorFragment is appended to whatever partial text already streamed
	// when the provider dies mid-answer.
	errorFragment = "\n[Lỗi kết nối hoặc xử lý]"

	// shortQueryWords is the cutoff below which a question is too terse to
	// retrieve on alone and gets the sticky product hint prepended.
	shortQueryWords = 4
)

// Tool answers a classified intent deterministically, bypassing generation.
type Tool interface {
	Name() string
	Applicable(domain intent.Domain) bool
	Answer(ctx context.Context, in intent.Intent) (string, bool)
}

// Engine orchestrates one conversational turn: classify, try tools, fan out
// retrieval, then stream a grounded generation.
type Engine struct {
	sessions   *session.Store
	classifier *intent.Classifier
	router     *retrieval.Router
	tools      []Tool
	adapter    llm.Adapter
	reranker   retrieval.Reranker
	metrics    *observability.Metrics
	topK       int
}

// Options carries the optional collaborators.
type Options struct {
	Reranker retrieval.Reranker
	TopK     int
}

func New(sessions *session.Store, classifier *intent.Classifier, router *retrieval.Router, tools []Tool, adapter llm.Adapter, metrics *observability.Metrics, opts Options) *Engine {
	topK := opts.TopK
	if topK <= 0 {
		topK = 4
	}
	return &Engine{
		sessions:   sessions,
		classifier: classifier,
		router:     router,
		tools:      tools,
		adapter:    adapter,
		reranker:   opts.Reranker,
		metrics:    metrics,
		topK:       topK,
	}
}

// Answer runs one turn for the session and streams protocol messages
// through emit. A nil error means the stream ended with its sentinel; a
// cancellation error means the partial answer was persisted but the stream
// stayed open-ended for the caller to discard.
func (e *Engine) Answer(ctx context.Context, sessionID, question string, emit func(msg any) error) error {
	turnID := uuid.NewString()
	turnStart := time.Now()

	history := e.sessions.History(sessionID)
	state, hasState := e.sessions.State(sessionID)

	redacted, _ := policy.RedactPII(question)
	e.sessions.AppendHistory(sessionID, session.Turn{Role: session.RoleUser, Text: redacted})

	classifyStart := time.Now()
	in, tier := e.classifier.Classify(ctx, question, state)
	e.metrics.ClassifierTier.WithLabelValues(string(tier)).Inc()
	e.metrics.ObserveTurnStage("classify", time.Since(classifyStart))

	if in.Domain != intent.DomainGeneral {
		e.sessions.SaveState(sessionID, in)
		// Downstream hints read the state this turn just replaced, not the
		// one it arrived with.
		state, hasState = in, true
	}

	for _, tool := range e.tools {
		if !tool.Applicable(in.Domain) {
			continue
		}
		toolStart := time.Now()
		text, ok := tool.Answer(ctx, in)
		if !ok {
			continue
		}
		e.metrics.ObserveTurnStage("tool_answer", time.Since(toolStart))
		e.metrics.ObserveTurnIndicator("tool_" + tool.Name())
		if err := emit(protocol.AnswerDelta{Type: protocol.TypeAnswerDelta, SessionID: sessionID, TurnID: turnID, TextDelta: text}); err != nil {
			return err
		}
		e.sessions.AppendHistory(sessionID, session.Turn{Role: session.RoleAssistant, Text: text})
		e.metrics.Turns.WithLabelValues(protocol.ReasonToolAnswered).Inc()
		e.metrics.ObserveTurnStage("turn_total", time.Since(turnStart))
		return emit(protocol.AnswerEnd{Type: protocol.TypeAnswerEnd, SessionID: sessionID, TurnID: turnID, Reason: protocol.ReasonToolAnswered, Marker: protocol.EndOfStream})
	}

	query := expandQuery(question, state, hasState)

	retrieveStart := time.Now()
	docs, err := e.router.For(in.Domain).Retrieve(ctx, query, e.topK)
	if err != nil {
		// Retrieval trouble degrades to an ungrounded answer, never a
		// failed turn.
		docs = nil
	}
	if e.reranker != nil && len(docs) > 1 {
		if reranked, rerr := e.reranker.Rerank(ctx, query, docs); rerr == nil {
			docs = reranked
		}
	}
	e.metrics.ObserveTurnStage("retrieve", time.Since(retrieveStart))

	req := llm.MessageRequest{
		SessionID: sessionID,
		TurnID:    turnID,
		System:    buildSystemPrompt(docs),
		History:   renderHistory(history),
		InputText: question,
	}

	var full strings.Builder
	firstDelta := true
	_, genErr := e.adapter.StreamResponse(ctx, req, func(delta string) error {
		if firstDelta {
			firstDelta = false
			e.metrics.ObserveFirstTokenLatency(time.Since(turnStart))
			e.metrics.ObserveTurnStage("first_token", time.Since(turnStart))
		}
		full.WriteString(delta)
		return emit(protocol.AnswerDelta{Type: protocol.TypeAnswerDelta, SessionID: sessionID, TurnID: turnID, TextDelta: delta})
	})

	if genErr != nil {
		if errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded) {
			// The client walked away mid-answer. Keep what was said so the
			// next turn still has the context, but leave the stream without
			// a sentinel.
			if full.Len() > 0 {
				e.sessions.AppendHistory(sessionID, session.Turn{Role: session.RoleAssistant, Text: full.String()})
			}
			e.metrics.Turns.WithLabelValues("canceled").Inc()
			return genErr
		}

		e.metrics.ProviderErrors.WithLabelValues("llm", "stream").Inc()
		full.WriteString(errorFragment)
		if err := emit(protocol.AnswerDelta{Type: protocol.TypeAnswerDelta, SessionID: sessionID, TurnID: turnID, TextDelta: errorFragment}); err != nil {
			return err
		}
		e.sessions.AppendHistory(sessionID, session.Turn{Role: session.RoleAssistant, Text: full.String()})
		e.metrics.Turns.WithLabelValues(protocol.ReasonFailed).Inc()
		e.metrics.ObserveTurnStage("turn_total", time.Since(turnStart))
		return emit(protocol.AnswerEnd{Type: protocol.TypeAnswerEnd, SessionID: sessionID, TurnID: turnID, Reason: protocol.ReasonFailed, Marker: protocol.EndOfStream})
	}

	if strings.TrimSpace(full.String()) == "" {
		full.Reset()
		full.WriteString(apologyMessage)
		if err := emit(protocol.AnswerDelta{Type: protocol.TypeAnswerDelta, SessionID: sessionID, TurnID: turnID, TextDelta: apologyMessage}); err != nil {
			return err
		}
	}

	e.sessions.AppendHistory(sessionID, session.Turn{Role: session.RoleAssistant, Text: full.String()})
	e.metrics.Turns.WithLabelValues(protocol.ReasonCompleted).Inc()
	e.metrics.ObserveTurnStage("turn_total", time.Since(turnStart))
	return emit(protocol.AnswerEnd{Type: protocol.TypeAnswerEnd, SessionID: sessionID, TurnID: turnID, Reason: protocol.ReasonCompleted, Marker: protocol.EndOfStream})
}

// expandQuery prefixes terse follow-ups with the sticky product hint so
// retrieval has something to bite on.
func expandQuery(question string, state intent.Intent, hasState bool) string {
	if !hasState {
		return question
	}
	if len(strings.Fields(question)) >= shortQueryWords {
		return question
	}
	hint := state.Product
	if hint == "" {
		hint = state.LoanType
	}
	if hint == "" {
		return question
	}
	return strings.ReplaceAll(hint, "_", " ") + " " + question
}
