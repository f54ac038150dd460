package models

import (
	"net/url"
	"path"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is a code accepted by the detail page's currency dropdown.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyAUD Currency = "AUD"
	CurrencyCNY Currency = "CNY"
	CurrencyBTC Currency = "BTC"
	CurrencyEUR Currency = "EUR"
)

// DefaultCurrencies is the order in which each detail page is scraped.
var DefaultCurrencies = []Currency{
	CurrencyUSD, CurrencyGBP, CurrencyAUD, CurrencyCNY, CurrencyBTC, CurrencyEUR,
}

// DateLink is the URL of one date's price page.
type DateLink string

// Date returns the date key of the link. See DateFromURL.
func (l DateLink) Date() string {
	return DateFromURL(string(l))
}

// DateFromURL returns the "d" query parameter of a detail-page URL, falling
// back to the last path segment when the parameter is absent.
func DateFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if d := u.Query().Get("d"); d != "" {
		return d
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

// PriceRecord is one row of the price table for a date under one currency.
// Price is invalid (null) when the cell held no parsable number.
type PriceRecord struct {
	Date      string
	Currency  Currency
	Commodity string
	Price     decimal.NullDecimal
	Unit      string
}
