package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/rates"
)

const (
	// Rates below this threshold are promotional teasers that float after
	// the fixed period, so every quote built on one carries a disclaimer.
	promoRateThreshold = 10.0

	defaultLoanRate     = 12.0
	defaultMaxTermYears = 20
)

// LoanCalculator answers loan quotes deterministically from the rate table,
// short-circuiting generation for anything it can compute.
type LoanCalculator struct {
	table *rates.Table
}

func NewLoanCalculator(table *rates.Table) *LoanCalculator {
	return &LoanCalculator{table: table}
}

func (c *LoanCalculator) Name() string { return "loan_calculator" }

func (c *LoanCalculator) Applicable(domain intent.Domain) bool {
	return domain == intent.DomainLoan
}

func (c *LoanCalculator) Answer(_ context.Context, in intent.Intent) (string, bool) {
	product, _, found := c.table.FindLoan(in.LoanType)

	if in.Principal <= 0 {
		if !found {
			return c.productListing()
		}
		return c.productInfo(product), true
	}

	rate := in.AnnualRatePercent
	if rate <= 0 && found {
		rate = product.InterestRate
	}
	if rate <= 0 {
		rate = defaultLoanRate
	}
	maxTerm := defaultMaxTermYears
	if found && product.MaxTermYears > 0 {
		maxTerm = product.MaxTermYears
	}

	if in.TermYears <= 0 {
		name := "khoản vay"
		if found {
			name = product.ProductName
		}
		return fmt.Sprintf(
			"Với %s lãi suất %s%%/năm, bạn dự định vay %s đồng trong bao lâu? Cho tôi biết thời hạn (tối đa %d năm) để tính số tiền trả hàng tháng nhé.",
			name, formatRate(rate), FormatVND(in.Principal), maxTerm,
		), true
	}

	if in.TermYears > float64(maxTerm) {
		return fmt.Sprintf(
			"Thời hạn %s vượt quá mức tối đa %d năm của sản phẩm này. Bạn vui lòng chọn thời hạn ngắn hơn.",
			formatTermYears(in.TermYears), maxTerm,
		), true
	}

	months := int(math.Round(in.TermYears * 12))
	payment := MonthlyPayment(in.Principal, rate, months)
	total := payment * float64(months)

	var b strings.Builder
	if found {
		fmt.Fprintf(&b, "Với sản phẩm %s, vay %s đồng trong %s, lãi suất %s%%/năm:\n",
			product.ProductName, FormatVND(in.Principal), formatTermYears(in.TermYears), formatRate(rate))
	} else {
		fmt.Fprintf(&b, "Vay %s đồng trong %s với lãi suất tham khảo %s%%/năm:\n",
			FormatVND(in.Principal), formatTermYears(in.TermYears), formatRate(rate))
	}
	fmt.Fprintf(&b, "- Trả góp hàng tháng: khoảng %s đồng\n", FormatVND(payment))
	fmt.Fprintf(&b, "- Tổng số tiền phải trả: khoảng %s đồng\n", FormatVND(total))
	fmt.Fprintf(&b, "- Tổng tiền lãi: khoảng %s đồng", FormatVND(total-in.Principal))
	if rate < promoRateThreshold {
		b.WriteString("\nLưu ý: đây là lãi suất ưu đãi ban đầu, sau thời gian ưu đãi lãi suất sẽ thả nổi theo thị trường.")
	}
	return b.String(), true
}

// productListing lists every loan package with its headline rate for the
// turns where no particular package could be matched. An empty table
// declines so the question falls through to retrieval.
func (c *LoanCalculator) productListing() (string, bool) {
	keys := make([]string, 0, len(c.table.Loans))
	for k := range c.table.Loans {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Ngân hàng hiện có các gói vay tiêu biểu sau:\n")
	for _, k := range keys {
		p := c.table.Loans[k]
		fmt.Fprintf(&b, "- %s: lãi suất từ %s%%/năm, thời hạn tối đa %d năm\n", p.ProductName, formatRate(p.InterestRate), p.MaxTermYears)
	}
	b.WriteString("Bạn dự định vay bao nhiêu tiền?")
	return b.String(), true
}

func (c *LoanCalculator) productInfo(p rates.LoanProduct) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sản phẩm %s:\n", p.ProductName)
	fmt.Fprintf(&b, "- Lãi suất: từ %s%%/năm\n", formatRate(p.InterestRate))
	fmt.Fprintf(&b, "- Thời hạn vay tối đa: %d năm", p.MaxTermYears)
	if p.Details != "" {
		fmt.Fprintf(&b, "\n- %s", p.Details)
	}
	b.WriteString("\nBạn muốn vay bao nhiêu và trong bao lâu để tôi tính số tiền trả hàng tháng?")
	return b.String()
}

// MonthlyPayment computes the level annuity payment for a principal at an
// annual percentage rate over a number of months. A zero rate degenerates
// to straight division.
func MonthlyPayment(principal, annualRatePercent float64, months int) float64 {
	if months <= 0 {
		return principal
	}
	r := annualRatePercent / 12 / 100
	if r == 0 {
		return principal / float64(months)
	}
	pow := math.Pow(1+r, float64(months))
	return principal * r * pow / (pow - 1)
}
