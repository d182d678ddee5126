package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/vntext"
)

// HTTPExtractor asks the provider for a structured intent. The prior sticky
// state rides along so the provider can resolve elliptical follow-ups
// ("còn 10 năm thì sao?") against it.
type HTTPExtractor struct {
	url    string
	client *http.Client
}

func NewHTTPExtractor(url string) *HTTPExtractor {
	return &HTTPExtractor{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type extractRequest struct {
	Text  string        `json:"text"`
	State intent.Intent `json:"state"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, text string, state intent.Intent) (intent.Intent, error) {
	payload, err := json.Marshal(extractRequest{Text: text, State: state})
	if err != nil {
		return intent.Intent{}, fmt.Errorf("marshal extract request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return intent.Intent{}, fmt.Errorf("create extract request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(httpReq)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("send extract request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return intent.Intent{}, fmt.Errorf("extract http status %d: %s", res.StatusCode, string(body))
	}

	var out intent.Intent
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return intent.Intent{}, fmt.Errorf("decode extract response: %w", err)
	}
	if out.Domain == "" {
		return intent.Intent{}, fmt.Errorf("extract response missing domain")
	}
	return out, nil
}

// MockExtractor recovers intents locally with keyword rules and the amount
// and term parsers. It covers the calculator flows well enough for offline
// runs.
type MockExtractor struct{}

func NewMockExtractor() *MockExtractor { return &MockExtractor{} }

func (e *MockExtractor) Extract(_ context.Context, text string, state intent.Intent) (intent.Intent, error) {
	folded := vntext.Fold(text)

	out := intent.Intent{Domain: mockDomain(folded, state)}
	// Bare small numbers are almost always terms ("còn 10 năm"), not money.
	if amount := intent.ParseAmount(text); amount >= 1000 {
		out.Principal = amount
	}
	if months := intent.ParseTermMonths(text); months > 0 {
		out.TermYears = float64(months) / 12.0
	}
	if out.Domain == intent.DomainLoan {
		out.LoanType = mockLoanType(folded, state)
	}
	if strings.Contains(folded, "quay") {
		out.Channel = intent.ChannelCounter
	}
	return out, nil
}

func mockDomain(folded string, state intent.Intent) intent.Domain {
	switch {
	case strings.Contains(folded, "vay"):
		return intent.DomainLoan
	case strings.Contains(folded, "muc tieu") || strings.Contains(folded, "dat duoc"):
		return intent.DomainSavingsGoal
	case strings.Contains(folded, "tiet kiem") || strings.Contains(folded, "gui"):
		return intent.DomainSavings
	case strings.Contains(folded, "the"):
		return intent.DomainCard
	}
	// A bare follow-up with only numbers leans on the sticky state.
	if state.Domain != "" && state.Domain != intent.DomainGeneral {
		return state.Domain
	}
	return intent.DomainGeneral
}

func mockLoanType(folded string, state intent.Intent) string {
	switch {
	case strings.Contains(folded, "nha") || strings.Contains(folded, "dat"):
		return intent.LoanHousing
	case strings.Contains(folded, "xe") || strings.Contains(folded, "oto") || strings.Contains(folded, "o to"):
		return intent.LoanVehicle
	case strings.Contains(folded, "tieu dung") || strings.Contains(folded, "tin chap"):
		return intent.LoanConsumer
	case strings.Contains(folded, "kinh doanh"):
		return intent.LoanBusiness
	}
	return state.LoanType
}
