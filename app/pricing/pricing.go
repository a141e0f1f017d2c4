// Package pricing derives charge amounts from event price fields. Prices are
// free text entered by event organizers, so parsing is forgiving: a malformed
// item contributes zero instead of blocking the rest of the cart.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/eventick/ms-go-ticketing/app/entity"
)

// currencySymbols are stripped before the decimal parse.
var currencySymbols = []string{"£", "$", "€", "¥", "₭", "₹", "฿"}

type Calculator struct {
	logger logrus.FieldLogger
}

func NewCalculator(logger logrus.FieldLogger) *Calculator {
	return &Calculator{logger: logger}
}

// TotalCents sums the per-item contributions of the given attendances in
// minor units. It never fails: unparseable prices contribute zero and are
// logged as data-quality warnings.
func (c *Calculator) TotalCents(items []*entity.Attendance) int64 {
	total := decimal.Zero
	for _, item := range items {
		amount, ok := parsePrice(item.PriceText)
		if !ok {
			c.logger.WithFields(logrus.Fields{
				"attendance_id": item.ID,
				"event_id":      item.EventID,
				"price_text":    item.PriceText,
			}).Warn("Unparseable event price, item contributes zero")
			continue
		}
		total = total.Add(amount)
	}
	return total.Shift(2).Round(0).IntPart()
}

// ItemCents parses a single price string in minor units. The second return
// value is false when the text could not be parsed.
func (c *Calculator) ItemCents(raw string) (int64, bool) {
	amount, ok := parsePrice(raw)
	if !ok {
		return 0, false
	}
	return amount.Shift(2).Round(0).IntPart(), true
}

func parsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(raw)
	if strings.EqualFold(cleaned, "free") {
		return decimal.Zero, true
	}

	for _, symbol := range currencySymbols {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}
	// Thousands separators and inner whitespace.
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return decimal.Zero, false
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}
