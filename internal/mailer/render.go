package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/drluca/shopstream/orderform/internal/i18n"
	"github.com/drluca/shopstream/orderform/internal/order"
)

//go:embed templates/order.html
var templates embed.FS

// CustomerField is one contact field shown in the confirmation, in form order.
type CustomerField struct {
	Name  string
	Value string
}

type view struct {
	Lang        string
	OrderNumber string
	Order       order.Order
	Customer    []CustomerField
}

// Renderer builds the confirmation body. Operator and customer get the same body.
type Renderer struct {
	tpl    *template.Template
	tr     *i18n.Translator
	fields []string
}

// NewRenderer parses the embedded template. fields orders the customer contact block.
func NewRenderer(tr *i18n.Translator, fields []string) (*Renderer, error) {
	tpl, err := template.New("order.html").Funcs(template.FuncMap{
		"t":     tr.T,
		"money": tr.Money,
	}).ParseFS(templates, "templates/order.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail template: %w", err)
	}
	return &Renderer{tpl: tpl, tr: tr, fields: fields}, nil
}

func (r *Renderer) Render(o order.Order, orderNumber string) (string, error) {
	v := view{
		Lang:        r.tr.Language().String(),
		OrderNumber: orderNumber,
		Order:       o,
	}
	for _, name := range r.fields {
		if value := o.Customer[name]; value != "" {
			v.Customer = append(v.Customer, CustomerField{Name: name, Value: value})
		}
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("failed to render order mail: %w", err)
	}
	return buf.String(), nil
}
