package rates

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/vntext"
)

// ChannelRate holds the online and at-the-counter annual rates for one
// deposit term, in percent.
type ChannelRate struct {
	Online  float64 `json:"online"`
	Counter float64 `json:"counter"`
}

// SavingsProduct is one deposit product: term keyed rates in months plus a
// non-term rate for money withdrawn before any term completes.
type SavingsProduct struct {
	Terms   map[string]ChannelRate `json:"terms"`
	NonTerm ChannelRate            `json:"non_term"`
}

// LoanProduct is one lending product from the reference table.
type LoanProduct struct {
	ProductName  string  `json:"product_name"`
	InterestRate float64 `json:"interest_rate"`
	MaxTermYears int     `json:"max_term_years"`
	Details      string  `json:"details"`
}

// Table is the in-memory rate reference loaded at startup. It is read-only
// after load and safe for concurrent use.
type Table struct {
	Savings map[string]SavingsProduct
	Loans   map[string]LoanProduct
}

// LoadDir reads savings_rates.json and loan_rates.json from dir. A missing
// file is not an error; the corresponding table is just empty and the
// calculators that depend on it decline to answer.
func LoadDir(dir string) (*Table, error) {
	t := &Table{
		Savings: make(map[string]SavingsProduct),
		Loans:   make(map[string]LoanProduct),
	}
	if err := loadJSON(filepath.Join(dir, "savings_rates.json"), &t.Savings); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, "loan_rates.json"), &t.Loans); err != nil {
		return nil, err
	}
	return t, nil
}

func loadJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// FindLoan resolves a loan type key or free-form purpose text to a product.
// Exact keys win; otherwise folded keyword matching covers the common ways
// users name a purpose.
func (t *Table) FindLoan(loanType string) (LoanProduct, string, bool) {
	if p, ok := t.Loans[loanType]; ok {
		return p, loanType, true
	}
	folded := vntext.Fold(loanType)
	if folded == "" {
		return LoanProduct{}, "", false
	}
	key := ""
	switch {
	case containsAny(folded, "nha", "dat", "bat dong san"):
		key = intent.LoanHousing
	case containsAny(folded, "oto", "o to", "xe"):
		key = intent.LoanVehicle
	case containsAny(folded, "tieu dung", "tin chap"):
		key = intent.LoanConsumer
	case containsAny(folded, "kinh doanh", "von"):
		key = intent.LoanBusiness
	}
	if key == "" {
		return LoanProduct{}, "", false
	}
	p, ok := t.Loans[key]
	return p, key, ok
}

// FindSavings resolves a product name to a savings product, matching on
// folded text so diacritics and case never matter. An empty name selects
// the default product when exactly one default candidate exists.
func (t *Table) FindSavings(product string) (SavingsProduct, string, bool) {
	if product == "" {
		product = "Tiết kiệm thường"
	}
	want := vntext.Fold(product)
	for name, p := range t.Savings {
		if vntext.Fold(name) == want {
			return p, name, true
		}
	}
	return SavingsProduct{}, "", false
}

// AnySavings returns a fallback savings product for listing paths where the
// requested name matched nothing. The smallest name wins so the choice is
// deterministic.
func (t *Table) AnySavings() (SavingsProduct, string, bool) {
	names := make([]string, 0, len(t.Savings))
	for name := range t.Savings {
		names = append(names, name)
	}
	if len(names) == 0 {
		return SavingsProduct{}, "", false
	}
	sort.Strings(names)
	return t.Savings[names[0]], names[0], true
}

// Rate resolves the annual rate for a requested term in months using the
// step-down rule: an exact term wins; otherwise the largest listed term
// strictly below the request applies, and with nothing below, the non-term
// rate. The returned term is the one whose rate applies, 0 for non-term.
func (p SavingsProduct) Rate(termMonths int, ch intent.Channel) (rate float64, appliedTerm int) {
	terms := p.sortedTerms()
	best := 0
	for _, tm := range terms {
		if tm == termMonths {
			best = tm
			break
		}
		if tm < termMonths && tm > best {
			best = tm
		}
	}
	if best == 0 {
		return channelPick(p.NonTerm, ch), 0
	}
	return channelPick(p.Terms[strconv.Itoa(best)], ch), best
}

// TermsAscending lists the product's terms in months, smallest first.
func (p SavingsProduct) TermsAscending() []int {
	return p.sortedTerms()
}

func (p SavingsProduct) sortedTerms() []int {
	out := make([]int, 0, len(p.Terms))
	for k := range p.Terms {
		if n, err := strconv.Atoi(k); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func channelPick(r ChannelRate, ch intent.Channel) float64 {
	if ch == intent.ChannelCounter {
		return r.Counter
	}
	return r.Online
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
