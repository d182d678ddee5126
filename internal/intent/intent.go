package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/danghm/tellerbot/internal/vntext"
)

// Domain is a knowledge category a question can be routed to.
type Domain string

const (
	DomainGeneral        Domain = "general"
	DomainLoan           Domain = "loan"
	DomainSavings        Domain = "savings"
	DomainSavingsGoal    Domain = "savings_goal"
	DomainCard           Domain = "card"
	DomainPromo          Domain = "promo"
	DomainSecurity       Domain = "security"
	DomainDigitalBanking Domain = "digital-banking"
	DomainNetwork        Domain = "network"
	DomainFAQ            Domain = "faq"
	DomainExchangeRate   Domain = "exchange_rate"
	DomainGoldPrice      Domain = "gold_price"
)

// Channel distinguishes online and at-the-counter rates.
type Channel string

const (
	ChannelOnline  Channel = "online"
	ChannelCounter Channel = "counter"
)

// Loan purpose keys, matching the loan rate table.
const (
	LoanHousing  = "vay_mua_nha"
	LoanVehicle  = "vay_mua_oto"
	LoanConsumer = "vay_tieu_dung_tin_chap"
	LoanBusiness = "vay_kinh_doanh"
)

// Intent is the immutable result of classifying one user utterance.
type Intent struct {
	Domain            Domain  `json:"domain"`
	Product           string  `json:"product,omitempty"`
	LoanType          string  `json:"loan_type,omitempty"`
	AmountText        string  `json:"amount_text,omitempty"`
	TermText          string  `json:"term_text,omitempty"`
	TermYears         float64 `json:"term_years,omitempty"`
	Principal         float64 `json:"principal,omitempty"`
	AnnualRatePercent float64 `json:"annual_rate_percent,omitempty"`
	Channel           Channel `json:"channel,omitempty"`
}

// Normalize fills derivable fields: principal from localized amount text,
// term-in-years from term text, and defaults for domain and channel.
func (in Intent) Normalize() Intent {
	if in.Domain == "" {
		in.Domain = DomainGeneral
	}
	if in.Channel != ChannelCounter {
		in.Channel = ChannelOnline
	}
	if in.Principal == 0 && in.AmountText != "" {
		in.Principal = ParseAmount(in.AmountText)
	}
	if in.TermYears == 0 && in.TermText != "" {
		if months := ParseTermMonths(in.TermText); months > 0 {
			in.TermYears = float64(months) / 12.0
		}
	}
	return in
}

var (
	digitPat  = regexp.MustCompile(`\d`)
	amountPat = regexp.MustCompile(`(\d+(?:[.,]\d+)*)\s*(ty|trieu|tr\b|nghin|ngan|k\b)?`)
	termPat   = regexp.MustCompile(`(?i)(\d+)\s*(tháng|thang|thg|m\b|month|months|năm|nam|year|years)`)
)

// HasDigit reports whether the text contains any numeric literal. Presence
// of a digit is the signal that the user is supplying a quantity, which the
// fast classification tier cannot extract.
func HasDigit(s string) bool {
	return digitPat.MatchString(s)
}

// ParseAmount parses localized money text into VND.
// "500 triệu" -> 500_000_000, "1,5 tỷ" -> 1_500_000_000, "200k" -> 200_000.
// Plain digit runs with thousand separators ("500.000.000") are also
// accepted. Returns 0 when no amount is found.
func ParseAmount(text string) float64 {
	folded := vntext.Fold(text)
	m := amountPat.FindStringSubmatch(folded)
	if m == nil {
		return 0
	}

	value, ok := parseLocalizedNumber(m[1])
	if !ok {
		return 0
	}

	switch strings.TrimSpace(m[2]) {
	case "ty":
		return value * 1_000_000_000
	case "trieu", "tr":
		return value * 1_000_000
	case "nghin", "ngan", "k":
		return value * 1_000
	default:
		return value
	}
}

// parseLocalizedNumber reads a digit run that may carry either a decimal
// comma ("1,5") or thousand-grouping separators ("500.000.000"). A single
// separator followed by one or two digits reads as a decimal point; every
// other separator is grouping and gets stripped.
func parseLocalizedNumber(s string) (float64, bool) {
	seps := strings.Count(s, ".") + strings.Count(s, ",")
	if seps == 1 {
		idx := strings.LastIndexAny(s, ".,")
		if frac := s[idx+1:]; len(frac) <= 2 {
			v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
			return v, err == nil
		}
	}
	plain := strings.NewReplacer(".", "", ",", "").Replace(s)
	v, err := strconv.ParseFloat(plain, 64)
	return v, err == nil
}

// ParseTermMonths parses a term expression into months, understanding both
// month and year units ("6 tháng" -> 6, "2 năm" -> 24). Returns 0 when no
// term is found.
func ParseTermMonths(text string) int {
	m := termPat.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	val, err := strconv.Atoi(m[1])
	if err != nil || val <= 0 {
		return 0
	}
	unit := vntext.Fold(m[2])
	switch unit {
	case "nam", "year", "years":
		return val * 12
	default:
		return val
	}
}
