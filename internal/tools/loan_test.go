package tools

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/rates"
)

func loanTable(t *testing.T) *rates.Table {
	t.Helper()
	dir := t.TempDir()
	loans := `{
  "vay_mua_nha": {"product_name": "Vay mua nhà", "interest_rate": 8.5, "max_term_years": 25, "details": "thế chấp bằng chính căn nhà"},
  "vay_mua_oto": {"product_name": "Vay mua ô tô", "interest_rate": 9.2, "max_term_years": 8, "details": "thế chấp bằng xe"},
  "vay_tieu_dung_tin_chap": {"product_name": "Vay tiêu dùng tín chấp", "interest_rate": 15.0, "max_term_years": 5, "details": "không cần tài sản đảm bảo"}
}`
	if err := os.WriteFile(filepath.Join(dir, "loan_rates.json"), []byte(loans), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	table, err := rates.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	return table
}

func TestMonthlyPayment(t *testing.T) {
	// 120M at 12%/year over 12 months: the annuity formula gives about
	// 10.66M per month.
	got := MonthlyPayment(120_000_000, 12, 12)
	if math.Abs(got-10_661_855) > 50_000 {
		t.Fatalf("MonthlyPayment = %v, want about 10661855", got)
	}
}

func TestMonthlyPaymentZeroRate(t *testing.T) {
	got := MonthlyPayment(120_000_000, 0, 12)
	if got != 10_000_000 {
		t.Fatalf("MonthlyPayment at 0%% = %v, want 10000000", got)
	}
}

func TestLoanAnswerFullQuote(t *testing.T) {
	c := NewLoanCalculator(loanTable(t))
	in := intent.Intent{
		Domain:    intent.DomainLoan,
		LoanType:  intent.LoanConsumer,
		Principal: 120_000_000,
		TermYears: 1,
	}
	text, ok := c.Answer(context.Background(), in)
	if !ok {
		t.Fatalf("Answer() declined a computable quote")
	}
	if !strings.Contains(text, "Vay tiêu dùng tín chấp") {
		t.Fatalf("answer missing product name: %q", text)
	}
	if !strings.Contains(text, "Trả góp hàng tháng") {
		t.Fatalf("answer missing monthly payment: %q", text)
	}
	if strings.Contains(text, "thả nổi") {
		t.Fatalf("15%% rate should not carry the promo disclaimer: %q", text)
	}
}

func TestLoanAnswerPromoDisclaimer(t *testing.T) {
	c := NewLoanCalculator(loanTable(t))
	in := intent.Intent{
		Domain:    intent.DomainLoan,
		LoanType:  intent.LoanHousing,
		Principal: 500_000_000,
		TermYears: 5,
	}
	text, ok := c.Answer(context.Background(), in)
	if !ok {
		t.Fatalf("Answer() declined")
	}
	if !strings.Contains(text, "thả nổi") {
		t.Fatalf("8.5%% teaser rate must carry the floating-rate disclaimer: %q", text)
	}
}

func TestLoanAnswerRejectsExcessiveTerm(t *testing.T) {
	c := NewLoanCalculator(loanTable(t))
	in := intent.Intent{
		Domain:    intent.DomainLoan,
		LoanType:  intent.LoanVehicle,
		Principal: 300_000_000,
		TermYears: 10,
	}
	text, ok := c.Answer(context.Background(), in)
	if !ok {
		t.Fatalf("Answer() declined")
	}
	if !strings.Contains(text, "vượt quá") || !strings.Contains(text, "8 năm") {
		t.Fatalf("expected a max-term rejection naming 8 năm: %q", text)
	}
}

func TestLoanAnswerProductInfoWithoutPrincipal(t *testing.T) {
	c := NewLoanCalculator(loanTable(t))
	in := intent.Intent{Domain: intent.DomainLoan, LoanType: intent.LoanHousing}
	text, ok := c.Answer(context.Background(), in)
	if !ok {
		t.Fatalf("Answer() declined product info")
	}
	if !strings.Contains(text, "Vay mua nhà") || !strings.Contains(text, "8,5%") {
		t.Fatalf("product info incomplete: %q", text)
	}
}

func TestLoanAnswerNoTermAsksForOne(t *testing.T) {
	c := NewLoanCalculator(loanTable(t))
	in := intent.Intent{Domain: intent.DomainLoan, LoanType: intent.LoanHousing, Principal: 500_000_000}
	text, ok := c.Answer(context.Background(), in)
	if !ok {
		t.Fatalf("Answer() declined")
	}
	if !strings.Contains(text, "bao lâu") {
		t.Fatalf("expected a term prompt: %q", text)
	}
}

func TestLoanAnswerUnknownTypeListsAllProducts(t *testing.T) {
	c := NewLoanCalculator(loanTable(t))
	in := intent.Intent{Domain: intent.DomainLoan}
	text, ok := c.Answer(context.Background(), in)
	if !ok {
		t.Fatalf("Answer() declined the product listing")
	}
	for _, want := range []string{"Vay mua nhà", "Vay mua ô tô", "Vay tiêu dùng tín chấp"} {
		if !strings.Contains(text, want) {
			t.Fatalf("listing missing %q: %q", want, text)
		}
	}
	if !strings.Contains(text, "vay bao nhiêu") {
		t.Fatalf("listing missing the amount prompt: %q", text)
	}
}

func TestLoanAnswerEmptyTableDeclines(t *testing.T) {
	table, err := rates.LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	c := NewLoanCalculator(table)
	in := intent.Intent{Domain: intent.DomainLoan}
	if _, ok := c.Answer(context.Background(), in); ok {
		t.Fatalf("an empty rate table should fall through to retrieval")
	}
}

func TestLoanAnswerFormatVND(t *testing.T) {
	if got := FormatVND(10_661_855); got != "10.661.855" {
		t.Fatalf("FormatVND = %q, want 10.661.855", got)
	}
	if got := FormatVND(500); got != "500" {
		t.Fatalf("FormatVND = %q, want 500", got)
	}
}
