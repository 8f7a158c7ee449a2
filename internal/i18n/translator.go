// Package i18n provides the user facing texts and money formatting of the order form.
package i18n

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"golang.org/x/text/number"
)

// Message keys.
const (
	FillRequiredFields = "fill_required_fields"
	OutOfStock         = "out_of_stock"
	EmptyOrder         = "empty_order"
	MailFailed         = "mail_failed"
	OrderPlaced        = "order_placed"
	MailSubject        = "mail_subject"
	OperatorSubject    = "operator_mail_subject"

	LabelOrderNumber     = "label_order_number"
	LabelItem            = "label_item"
	LabelVariant         = "label_variant"
	LabelAmount          = "label_amount"
	LabelUnitPrice       = "label_unit_price"
	LabelPrice           = "label_price"
	LabelSubtotal        = "label_subtotal"
	LabelShipping        = "label_shipping"
	LabelTotal           = "label_total"
	LabelCollectInPerson = "label_collect_in_person"
	LabelCustomer        = "label_customer"
	LabelOutOfStock      = "label_out_of_stock"
)

// supported lists the translated languages; the first one is the fallback.
var supported = []language.Tag{language.German, language.English}

var texts = map[language.Tag]map[string]string{
	language.German: {
		FillRequiredFields:   "Bitte füllen Sie alle Pflichtfelder aus.",
		OutOfStock:           "Leider sind nicht mehr alle gewählten Artikel in der gewünschten Menge vorrätig. Bitte passen Sie Ihre Auswahl an.",
		EmptyOrder:           "Bitte wählen Sie mindestens einen Artikel aus.",
		MailFailed:           "Ihre Bestellung wurde aufgenommen, die Bestätigung konnte aber nicht per E-Mail versendet werden.",
		OrderPlaced:          "Vielen Dank für Ihre Bestellung.",
		MailSubject:          "Ihre Bestellung %s",
		OperatorSubject:      "Neue Bestellung %s",
		LabelOrderNumber:     "Bestellnummer",
		LabelItem:            "Artikel",
		LabelVariant:         "Variante",
		LabelAmount:          "Menge",
		LabelUnitPrice:       "Einzelpreis",
		LabelPrice:           "Preis",
		LabelSubtotal:        "Zwischensumme",
		LabelShipping:        "Porto",
		LabelTotal:           "Gesamt",
		LabelCollectInPerson: "Selbstabholung",
		LabelCustomer:        "Kontaktdaten",
		LabelOutOfStock:      "nicht ausreichend vorrätig",
	},
	language.English: {
		FillRequiredFields:   "Please fill in all required fields.",
		OutOfStock:           "Unfortunately not all selected articles are available in the requested quantity. Please adjust your selection.",
		EmptyOrder:           "Please select at least one article.",
		MailFailed:           "Your order was placed, but the confirmation email could not be sent.",
		OrderPlaced:          "Thank you for your order.",
		MailSubject:          "Your order %s",
		OperatorSubject:      "New order %s",
		LabelOrderNumber:     "Order number",
		LabelItem:            "Article",
		LabelVariant:         "Variant",
		LabelAmount:          "Amount",
		LabelUnitPrice:       "Unit price",
		LabelPrice:           "Price",
		LabelSubtotal:        "Subtotal",
		LabelShipping:        "Shipping",
		LabelTotal:           "Total",
		LabelCollectInPerson: "Collection in person",
		LabelCustomer:        "Contact details",
		LabelOutOfStock:      "insufficient stock",
	},
}

// Translator is handed to every component that produces user facing text.
type Translator struct {
	tag      language.Tag
	printer  *message.Printer
	currency string
	group    string
	point    string
}

// New returns a translator for lang ("de", "en", ...). The currency suffix is appended
// to formatted amounts.
func New(lang, currencySuffix string) (*Translator, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("invalid language %q: %w", lang, err)
	}

	b := catalog.NewBuilder(catalog.Fallback(supported[0]))
	for _, t := range supported {
		for key, text := range texts[t] {
			if err := b.SetString(t, key, text); err != nil {
				return nil, fmt.Errorf("failed to register message %s for %s: %w", key, t, err)
			}
		}
	}
	_, idx, _ := language.NewMatcher(supported).Match(tag)
	tag = supported[idx]

	t := &Translator{
		tag:      tag,
		printer:  message.NewPrinter(tag, message.Catalog(b)),
		currency: currencySuffix,
	}
	t.group, t.point = separators(t.printer)
	return t, nil
}

// separators reads the locale's grouping and decimal symbols from a formatted sample.
func separators(p *message.Printer) (group, point string) {
	sample := []rune(p.Sprintf("%v", number.Decimal(1234.5, number.Scale(1))))
	// sample is "1<group>234<point>5"
	if len(sample) != 7 {
		return ",", "."
	}
	return string(sample[1]), string(sample[5])
}

// Language is the matched language of the translator.
func (t *Translator) Language() language.Tag {
	return t.tag
}

// T returns the text for key, formatted with args.
func (t *Translator) T(key string, args ...any) string {
	return t.printer.Sprintf(key, args...)
}

// Money formats an amount with two fraction digits in the translator's locale,
// followed by the currency suffix, e.g. "1.234,50 €".
func (t *Translator) Money(d decimal.Decimal) string {
	whole, frac, _ := strings.Cut(d.Abs().StringFixed(2), ".")

	var b strings.Builder
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(t.group)
		}
		b.WriteRune(r)
	}
	b.WriteString(t.point)
	b.WriteString(frac)

	if t.currency == "" {
		return b.String()
	}
	return b.String() + " " + t.currency
}
