// Package parser reconstructs structured receipts from recognized text.
//
// Parsing is purely line based: every non-empty line is inspected on its own,
// its trailing two-decimal number is taken as its price, and keywords in the
// rest of the line decide whether it is a summary field or a line item. There
// is no layout or geometry reasoning.
//
// Keyword classification is lossy by construction: an item described as
// "Total Recall DVD" is read as the receipt total. Callers are expected to let
// the user correct such lines during review.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmynk/receiptsplit/internal/models"
)

const (
	// headerLines is how many leading lines may be venue metadata.
	headerLines = 5

	// misreadThreshold is the price above which a round hundred is assumed to
	// have lost its decimal point, e.g. "1900.00" read for "190.00".
	misreadThreshold = 300
)

var (
	pricePattern    = regexp.MustCompile(`(\d+[.,]\d{2})\D*$`)
	digitPattern    = regexp.MustCompile(`\d`)
	quantityPattern = regexp.MustCompile(`^(\d+)\s+`)
	noisePattern    = regexp.MustCompile(`[^a-zA-Z0-9\s&\-]`)
	spacePattern    = regexp.MustCompile(`\s+`)

	phoneKeyword   = regexp.MustCompile(`\b(tel|phone)`)
	addressKeyword = regexp.MustCompile(`\baddress\b`)
	dateKeyword    = regexp.MustCompile(`\bdate\b`)

	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s\-()]{5,}\d`)
	datePattern  = regexp.MustCompile(`\b\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}\b`)
)

// summaryField identifies which receipt total a line declares.
type summaryField int

const (
	fieldNone summaryField = iota
	fieldSubtotal
	fieldTax
	fieldService
	fieldTotal
)

// summaryKeywords is checked in order; the first category with a match wins.
var summaryKeywords = []struct {
	field    summaryField
	keywords []string
}{
	{fieldSubtotal, []string{"subtotal", "sub-total", "sub total"}},
	{fieldTax, []string{"tax", "vat", "gst"}},
	{fieldService, []string{"service", "tip", "gratuity"}},
	{fieldTotal, []string{"total", "amount due", "balance"}},
}

// Parse turns recognized receipt text into a Receipt. It never fails: fields
// that cannot be found are left unset and unparsable lines are ignored.
func Parse(rawText string) models.Receipt {
	receipt := models.Receipt{Items: []models.LineItem{}}

	for i, line := range splitLines(rawText) {
		if i < headerLines && parseHeader(line, &receipt) {
			continue
		}

		price, rest, ok := extractPrice(line)
		if !ok {
			if i == 0 && receipt.EstablishmentName == "" {
				receipt.EstablishmentName = cleanDescription(line)
			}
			continue
		}

		switch classify(rest) {
		case fieldSubtotal:
			receipt.Subtotal = models.Amount(price)
		case fieldTax:
			receipt.Tax = models.Amount(price)
		case fieldService:
			receipt.ServiceCharge = models.Amount(price)
		case fieldTotal:
			receipt.Total = models.Amount(price)
		default:
			receipt.Items = append(receipt.Items, parseItem(rest, price))
		}
	}

	return receipt
}

// splitLines returns the trimmed non-empty lines of text in order.
func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// extractPrice finds the left-most two-decimal number with no digit after
// it anywhere on the line, so "1,250.00" yields 250.00 rather than a
// fragment of the trailing group. It returns the price after misread
// correction and the line with the price removed.
func extractPrice(line string) (float64, string, bool) {
	m := pricePattern.FindStringSubmatchIndex(line)
	if m == nil {
		return 0, "", false
	}
	start, end := m[2], m[3]

	price, err := strconv.ParseFloat(strings.Replace(line[start:end], ",", ".", 1), 64)
	if err != nil {
		return 0, "", false
	}

	return correctMisread(price), strings.TrimSpace(line[:start] + line[end:]), true
}

// correctMisread recovers a dropped decimal point on large round amounts.
func correctMisread(price float64) float64 {
	if price > misreadThreshold && math.Mod(price, 100) < 1 {
		return roundCents(price / 10)
	}
	return price
}

func classify(text string) summaryField {
	lower := strings.ToLower(text)
	for _, category := range summaryKeywords {
		for _, kw := range category.keywords {
			if strings.Contains(lower, kw) {
				return category.field
			}
		}
	}
	return fieldNone
}

// parseItem builds a line item from the text left after removing its price.
// A leading standalone integer is read as the quantity.
func parseItem(text string, price float64) models.LineItem {
	item := models.LineItem{TotalPrice: models.Amount(price)}

	if m := quantityPattern.FindStringSubmatch(text); m != nil {
		text = text[len(m[0]):]
		if qty, err := strconv.Atoi(m[1]); err == nil && qty > 0 {
			item.Quantity = models.Amount(float64(qty))
			item.UnitPrice = models.Amount(roundCents(price / float64(qty)))
		}
	}

	item.Description = cleanDescription(text)
	return item
}

// parseHeader records venue metadata from a header line. It reports whether
// the line was metadata and must not be read as an item.
func parseHeader(line string, receipt *models.Receipt) bool {
	lower := strings.ToLower(line)

	switch {
	case phoneKeyword.MatchString(lower):
		if receipt.PhoneNumber == "" {
			if phone := phonePattern.FindString(line); countDigits(phone) >= 7 {
				receipt.PhoneNumber = strings.TrimSpace(phone)
			}
		}
		return true
	case addressKeyword.MatchString(lower):
		if receipt.Address == "" {
			receipt.Address = afterKeyword(line, addressKeyword.FindStringIndex(lower))
		}
		return true
	case dateKeyword.MatchString(lower):
		if receipt.Date == "" {
			if date := datePattern.FindString(line); date != "" {
				receipt.Date = date
			} else {
				receipt.Date = afterKeyword(line, dateKeyword.FindStringIndex(lower))
			}
		}
		return true
	}
	return false
}

// afterKeyword returns the text following loc, without separator punctuation.
func afterKeyword(line string, loc []int) string {
	if loc == nil || loc[1] > len(line) {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(line[loc[1]:], " :-\t"))
}

func countDigits(s string) int {
	return len(digitPattern.FindAllString(s, -1))
}

// cleanDescription strips recognition noise and normalizes spacing.
func cleanDescription(desc string) string {
	desc = noisePattern.ReplaceAllString(desc, "")
	desc = spacePattern.ReplaceAllString(desc, " ")
	return strings.TrimSpace(desc)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
