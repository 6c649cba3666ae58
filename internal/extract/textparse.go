package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	priceTokenRe = regexp.MustCompile(`[£€$]\s?\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)
	wsRe         = regexp.MustCompile(`\s+`)
)

// VisibleText flattens an HTML document into the text a shopper would see,
// dropping script/style/noscript content. The output is bounded so it can be
// fed to a model prompt without blowing the context window.
func VisibleText(html string, maxLen int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return truncate(wsRe.ReplaceAllString(html, " "), maxLen)
	}
	doc.Find("script, style, noscript, svg, iframe").Remove()

	var b strings.Builder
	// Headings first so the primary product block survives truncation.
	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(strings.TrimSpace(s.Text()))
		b.WriteString("\n")
	})
	body := doc.Find("body").Text()
	if body == "" {
		body = doc.Text()
	}
	b.WriteString(wsRe.ReplaceAllString(body, " "))

	return truncate(strings.TrimSpace(b.String()), maxLen)
}

// truncate bounds s to maxLen bytes without splitting a multi-byte rune
// (currency symbols are everywhere in page text).
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ParseLoose recovers product fields from raw page text when structured
// extraction produced nothing parseable. Availability cues are ranked in the
// same order the model is instructed to use: sold-out beats pre-order beats
// limited beats an add-to-cart control.
func ParseLoose(text string) *Extraction {
	e := &Extraction{
		Availability: looseAvailability(text),
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 3 && len(line) <= 200 && !priceTokenRe.MatchString(line) {
			e.Name = line
			break
		}
	}

	if tok := priceTokenRe.FindString(text); tok != "" {
		e.Price = strings.ReplaceAll(tok, " ", "")
		switch {
		case strings.HasPrefix(e.Price, "£"):
			e.Currency = "GBP"
		case strings.HasPrefix(e.Price, "€"):
			e.Currency = "EUR"
		case strings.HasPrefix(e.Price, "$"):
			e.Currency = "USD"
		}
	}

	return e
}

func looseAvailability(text string) Availability {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "sold out", "out of stock", "currently unavailable", "no longer available"):
		return OutOfStock
	case containsAny(lower, "pre-order", "preorder", "available from"):
		return PreOrder
	case containsAny(lower, "limited stock", "low stock", "only a few left", "selling fast"):
		return LimitedStock
	case containsAny(lower, "add to cart", "add to basket", "add to bag", "add to trolley", "buy now"):
		return InStock
	}
	return Unknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
