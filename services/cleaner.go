package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"metal-price-scraper/models"
	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/utils"
)

// minCells is the number of cells a price row needs to be considered well formed.
const minCells = 4

// nonNumericRegexp matches everything ParsePrice throws away.
var nonNumericRegexp = regexp.MustCompile(`[^0-9.]`)

// Cleaner turns scraped price-table markup into PriceRecords.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// ParsePrice keeps only ASCII digits and '.' and parses what is left. Digits
// from other scripts (Arabic-Indic, fullwidth and so on) are discarded like any
// other symbol, so a price written only in them is null.
// Examples:
//
//	"$1,234.50"  → 1234.50
//	"¥ 42"       → 42
//	"n/a", ""    → null
//	"1.2.3"      → null
func ParsePrice(raw string) decimal.NullDecimal {
	cleaned := nonNumericRegexp.ReplaceAllString(raw, "")
	if cleaned == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// RowCount returns the number of <tr> elements in a table's markup.
func RowCount(tableHTML string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return 0, fmt.Errorf("parse table: %w", err)
	}
	return doc.Find("tr").Length(), nil
}

// ParseTable converts a price table into records for one date and currency.
// The first row is the header. Rows with fewer than four cells are dropped.
// Commodity and unit text is trimmed with inner whitespace collapsed.
func (c *Cleaner) ParseTable(tableHTML, date string, currency models.Currency) ([]models.PriceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, fmt.Errorf("parse table: %w", err)
	}

	rows := doc.Find("tr")
	records := make([]models.PriceRecord, 0, rows.Length())
	dropped := 0

	rows.Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < minCells {
			dropped++
			return
		}
		commodity := normaliseText(cells.Eq(0).Text())
		rawPrice := cells.Eq(1).Text()
		price := ParsePrice(rawPrice)
		if !price.Valid && strings.TrimSpace(rawPrice) != "" {
			c.logger.Debug("[cleaner] %v", scrapeerrors.NewParse(
				fmt.Sprintf("%s %s %s", date, currency, commodity),
				fmt.Sprintf("price %q stored as null", strings.TrimSpace(rawPrice)), nil))
		}
		records = append(records, models.PriceRecord{
			Date:      date,
			Currency:  currency,
			Commodity: commodity,
			Price:     price,
			Unit:      normaliseText(cells.Eq(2).Text()),
		})
	})

	if dropped > 0 {
		c.logger.Debug("[cleaner] %s %s: dropped %d malformed rows", date, currency, dropped)
	}
	return records, nil
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
