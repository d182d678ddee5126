package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/rates"
)

// trialTermMonths is the projection used when someone names an amount but
// no term yet: show them a 12-month illustration and invite a real term.
const trialTermMonths = 12

// SavingsCalculator answers deposit rate and interest questions from the
// rate table.
type SavingsCalculator struct {
	table *rates.Table
}

func NewSavingsCalculator(table *rates.Table) *SavingsCalculator {
	return &SavingsCalculator{table: table}
}

func (c *SavingsCalculator) Name() string { return "savings_calculator" }

func (c *SavingsCalculator) Applicable(domain intent.Domain) bool {
	return domain == intent.DomainSavings || domain == intent.DomainSavingsGoal
}

func (c *SavingsCalculator) Answer(_ context.Context, in intent.Intent) (string, bool) {
	product, name, found := c.table.FindSavings(in.Product)
	months := int(math.Round(in.TermYears * 12))

	if !found {
		// A mistyped product name still gets the general rate listing;
		// anything that computes needs the exact product.
		if in.Principal > 0 || months > 0 {
			return "", false
		}
		product, name, found = c.table.AnySavings()
		if !found {
			return "", false
		}
	}

	if in.Principal <= 0 {
		if months > 0 {
			return c.rateOnly(product, name, months, in.Channel), true
		}
		return c.rateListing(product, name, in.Channel), true
	}

	trial := false
	if months <= 0 {
		months = trialTermMonths
		trial = true
	}

	rate, appliedTerm := product.Rate(months, in.Channel)
	interest := in.Principal * rate / 100 * float64(months) / 12
	total := in.Principal + interest

	var b strings.Builder
	fmt.Fprintf(&b, "Gửi %s đồng vào %s kỳ hạn %d tháng (lãi suất %s%%/năm):\n",
		FormatVND(in.Principal), name, months, formatRate(rate))
	fmt.Fprintf(&b, "- Tiền lãi nhận được: khoảng %s đồng\n", FormatVND(interest))
	fmt.Fprintf(&b, "- Tổng nhận cuối kỳ: khoảng %s đồng", FormatVND(total))
	switch {
	case appliedTerm == 0:
		b.WriteString("\nKỳ hạn bạn chọn chưa có trong biểu lãi suất nên mức không kỳ hạn được áp dụng.")
	case appliedTerm != months:
		fmt.Fprintf(&b, "\nKỳ hạn %d tháng chưa có trong biểu lãi suất nên mức của kỳ hạn %d tháng được áp dụng.", months, appliedTerm)
	}
	if trial {
		b.WriteString("\nĐây là minh họa cho kỳ hạn 12 tháng. Bạn muốn gửi trong bao lâu để tôi tính chính xác hơn?")
	}
	return b.String(), true
}

func (c *SavingsCalculator) rateOnly(p rates.SavingsProduct, name string, months int, ch intent.Channel) string {
	rate, appliedTerm := p.Rate(months, ch)
	var b strings.Builder
	fmt.Fprintf(&b, "Lãi suất %s kỳ hạn %d tháng hiện là %s%%/năm.", name, months, formatRate(rate))
	switch {
	case appliedTerm == 0:
		b.WriteString(" Kỳ hạn này chưa có trong biểu lãi suất nên mức không kỳ hạn được áp dụng.")
	case appliedTerm != months:
		fmt.Fprintf(&b, " Mức này lấy theo kỳ hạn %d tháng gần nhất phía dưới.", appliedTerm)
	}
	return b.String()
}

func (c *SavingsCalculator) rateListing(p rates.SavingsProduct, name string, ch intent.Channel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Biểu lãi suất %s (%%/năm):\n", name)
	for _, term := range p.TermsAscending() {
		rate, _ := p.Rate(term, ch)
		fmt.Fprintf(&b, "- Kỳ hạn %s tháng: %s%%\n", strconv.Itoa(term), formatRate(rate))
	}
	nonTermRate, _ := p.Rate(0, ch)
	fmt.Fprintf(&b, "- Không kỳ hạn: %s%%", formatRate(nonTermRate))
	b.WriteString("\nBạn muốn gửi bao nhiêu và trong bao lâu để tôi tính tiền lãi?")
	return b.String()
}
