package intent

import (
	"context"
	"regexp"
)

// Extractor asks the language-model provider for a typed intent object.
// Malformed or failed extractions surface as errors; the classifier degrades
// them to the general domain, never to a turn failure.
type Extractor interface {
	Extract(ctx context.Context, text string, state Intent) (Intent, error)
}

// Tier records which classification path produced an intent.
type Tier string

const (
	TierFast Tier = "fast"
	TierSlow Tier = "slow"
)

// Rule maps keyword patterns to a domain for the fast tier.
type Rule struct {
	Domain   Domain
	Patterns []*regexp.Regexp
}

// wordStart anchors a keyword at the start of a word. RE2's \b is an ASCII
// boundary and never fires before letters like ư or đ, so the guard is
// spelled out with Unicode classes instead.
const wordStart = `(?:^|[^\p{L}\p{N}])`

// DefaultRules returns the built-in keyword-to-domain table. Order matters:
// earlier rules win when several patterns match.
func DefaultRules() []Rule {
	return []Rule{
		{DomainCard, compileAll(`(?i)` + wordStart + `(thẻ|the tin dung|credit card|visa|mastercard|jcb|napas)`)},
		{DomainLoan, compileAll(`(?i)` + wordStart + `(vay|lãi suất vay|cho vay|tín dụng)`)},
		{DomainSavings, compileAll(`(?i)` + wordStart + `(tiết kiệm|gửi tiền|lãi suất gửi|huy động)`)},
		{DomainPromo, compileAll(`(?i)` + wordStart + `(khuyến mãi|ưu đãi|giảm giá|voucher|quà tặng)`)},
		{DomainSecurity, compileAll(`(?i)` + wordStart + `(bảo mật|hệ thống bảo mật|dữ liệu cá nhân)`)},
		{DomainDigitalBanking, compileAll(`(?i)` + wordStart + `(app|ứng dụng|internet banking|digital|ngân hàng số|mật khẩu|đăng nhập|otp)`)},
		{DomainNetwork, compileAll(`(?i)` + wordStart + `(atm|chi nhánh|phòng giao dịch|địa điểm|giờ làm việc)`)},
		{DomainFAQ, compileAll(`(?i)` + wordStart + `(câu hỏi thường gặp|hướng dẫn|quy trình|thủ tục)`)},
		{DomainExchangeRate, compileAll(`(?i)` + wordStart + `(tỷ giá|ngoại tệ|usd|eur|jpy|đô la|yên nhật|bảng anh|đổi tiền)`)},
		{DomainGoldPrice, compileAll(`(?i)` + wordStart + `(giá vàng|vàng sjc|vàng 9999|vàng miếng)`)},
		{DomainGeneral, compileAll(`(?i)` + wordStart + `(xin chào|hello|hi|giới thiệu|liên hệ)`)},
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var (
	housingHint = regexp.MustCompile(`(?i)(nhà|đất|bất động sản)`)
	vehicleHint = regexp.MustCompile(`(?i)(xe|oto|ô tô)`)
)

// Classifier is the two-tier query classifier: a cheap keyword tier for
// purely informational questions and a structured-extraction tier for
// anything carrying quantities the calculators need.
type Classifier struct {
	rules     []Rule
	extractor Extractor
}

// NewClassifier builds a classifier over the given rule table. The
// extractor may be nil, in which case the slow tier degrades to general.
func NewClassifier(rules []Rule, extractor Extractor) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules, extractor: extractor}
}

// Classify resolves one utterance into an intent. The fast tier applies
// only when the text contains no digits; a digit forces the slow tier even
// when a keyword matches, because only extraction recovers amounts and
// terms. Failures never propagate: the result degrades to general.
func (c *Classifier) Classify(ctx context.Context, text string, state Intent) (Intent, Tier) {
	fast := c.fastMatch(text)

	if fast != "" && !HasDigit(text) {
		out := Intent{Domain: fast}
		if fast == DomainLoan {
			out.LoanType = classifyLoanPurpose(text)
		}
		return out.Normalize(), TierFast
	}

	if c.extractor == nil {
		return Intent{Domain: DomainGeneral}.Normalize(), TierSlow
	}

	out, err := c.extractor.Extract(ctx, text, state)
	if err != nil {
		return Intent{Domain: DomainGeneral}.Normalize(), TierSlow
	}
	return out.Normalize(), TierSlow
}

func (c *Classifier) fastMatch(text string) Domain {
	for _, rule := range c.rules {
		for _, pat := range rule.Patterns {
			if pat.MatchString(text) {
				return rule.Domain
			}
		}
	}
	return ""
}

// classifyLoanPurpose guesses the loan purpose from keywords so retrieval
// can be primed without paying for the slow tier.
func classifyLoanPurpose(text string) string {
	switch {
	case housingHint.MatchString(text):
		return LoanHousing
	case vehicleHint.MatchString(text):
		return LoanVehicle
	default:
		return ""
	}
}
