package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNegativePrice = errors.New("price cannot be negative")

// ParsePrice reads a menu price such as "12.50", "$9", "€ 1,250.00" or "8,50".
// Blank input means no price. Only simple numeric forms are understood.
func ParsePrice(text string) (*decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', '₹', ' ', '\u00a0':
			return -1
		}
		return r
	}, s)

	if strings.Contains(s, ",") {
		last := strings.LastIndex(s, ",")
		switch {
		case strings.Contains(s, "."):
			s = strings.ReplaceAll(s, ",", "")
		case len(s)-last-1 == 2 && strings.Count(s, ",") == 1:
			s = s[:last] + "." + s[last+1:]
		default:
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", text)
	}
	if d.IsNegative() {
		return nil, ErrNegativePrice
	}
	d = d.Round(2)
	return &d, nil
}
