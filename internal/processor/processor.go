// Package processor runs an order form submission through pricing, validation,
// reservation and confirmation.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/drluca/shopstream/orderform/config"
	"github.com/drluca/shopstream/orderform/internal/catalog"
	"github.com/drluca/shopstream/orderform/internal/i18n"
	"github.com/drluca/shopstream/orderform/internal/mailer"
	"github.com/drluca/shopstream/orderform/internal/metrics"
	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/drluca/shopstream/orderform/internal/order"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Mode selects how far a submission is processed.
type Mode int

const (
	// PriceOnly computes the price and shipping.
	PriceOnly Mode = iota
	// Preview additionally validates the customer fields and renders the mail.
	Preview
	// PlaceOrder additionally reserves the inventory and sends the confirmations.
	PlaceOrder
)

func (m Mode) String() string {
	switch m {
	case PriceOnly:
		return "price"
	case Preview:
		return "preview"
	case PlaceOrder:
		return "order"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Response is the JSON answer to the order form.
type Response struct {
	Price       string `json:"price"`
	Porto       string `json:"porto"`
	Order       int    `json:"order"`
	Mail        string `json:"mail,omitempty"`
	Error       string `json:"error,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
}

// Reserver commits the inventory of an order.
type Reserver interface {
	Reserve(ctx context.Context, requests []models.ReservationRequest) (bool, error)
}

// Publisher announces placed orders.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error
}

// Invalidator drops cached catalog data after inventory changed.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Renderer builds the confirmation mail body.
type Renderer interface {
	Render(o order.Order, orderNumber string) (string, error)
}

// Deps are the collaborators of a Processor. Publisher and Invalidator are optional.
type Deps struct {
	Catalog     catalog.Loader
	Reserver    Reserver
	Renderer    Renderer
	Mailer      mailer.Sender
	Publisher   Publisher
	Invalidator Invalidator
	Translator  *i18n.Translator
	Metrics     *metrics.Metrics
}

type Processor struct {
	Deps
	cfg    config.Config
	fields []config.FieldSpec
	names  []string
	now    func() time.Time
}

func New(deps Deps, cfg config.Config) (*Processor, error) {
	fields, err := cfg.ParseCustomerFields()
	if err != nil {
		return nil, err
	}
	return &Processor{Deps: deps, cfg: cfg, fields: fields, names: config.FieldNames(fields), now: time.Now}, nil
}

// Handle processes one submission. Validation faults, empty orders and stock
// conflicts are reported in Response.Error. Configuration and storage faults are
// returned as errors and no response is produced.
func (p *Processor) Handle(ctx context.Context, mode Mode, form url.Values) (Response, error) {
	p.Metrics.Quotes.WithLabelValues(mode.String()).Inc()

	items, err := p.Catalog.LoadCatalog(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("failed to load catalog: %w", err)
	}
	sub := order.ParseForm(form, p.names)
	res, err := order.Resolve(sub, items)
	if err != nil {
		return Response{}, err
	}
	o := order.New(res, sub.Customer, sub.CollectInPerson)

	resp := Response{
		Price: p.Translator.Money(o.Totals.Total),
		Porto: p.Translator.Money(o.Totals.Shipping),
		Order: 1,
	}
	if o.OutOfStock {
		resp.Order = 0
	}
	if mode == PriceOnly {
		return resp, nil
	}

	if missing, ok := p.firstMissingField(o.Customer); !ok {
		log.Debug().Str("field", missing).Msg("Required customer field missing")
		resp.Error = p.Translator.T(i18n.FillRequiredFields)
		if mode == PlaceOrder {
			p.Metrics.OrdersRejected.WithLabelValues(metrics.ReasonValidation).Inc()
		}
		return resp, nil
	}

	orderNumber := uuid.NewString()
	body, err := p.Renderer.Render(o, orderNumber)
	if err != nil {
		return Response{}, err
	}
	resp.Mail = body
	if mode == Preview {
		return resp, nil
	}

	return p.place(ctx, o, res, orderNumber, resp)
}

func (p *Processor) place(ctx context.Context, o order.Order, res order.Resolution, orderNumber string, resp Response) (Response, error) {
	if len(res.Unresolved) > 0 {
		u := res.Unresolved[0]
		return Response{}, fmt.Errorf("%w: item %d bundle %d has no bundle option for the submitted selection",
			models.ErrConfiguration, u.ItemID, u.BundleID)
	}
	if o.Empty() {
		p.Metrics.OrdersRejected.WithLabelValues(metrics.ReasonEmpty).Inc()
		resp.Error = p.Translator.T(i18n.EmptyOrder)
		return resp, nil
	}

	// An order flagged out of stock against the catalog snapshot is never reserved.
	ok := !o.OutOfStock
	if ok {
		start := p.now()
		var err error
		ok, err = p.Reserver.Reserve(ctx, res.Requests)
		p.Metrics.ObserveReservation(start)
		if err != nil {
			return Response{}, fmt.Errorf("failed to reserve inventory: %w", err)
		}
	}
	if !ok {
		log.Info().Int("lines", len(o.Lines)).Bool("snapshot", o.OutOfStock).Msg("Order rejected, insufficient stock")
		p.Metrics.OrdersRejected.WithLabelValues(metrics.ReasonOutOfStock).Inc()
		resp.Order = 0
		resp.Error = p.Translator.T(i18n.OutOfStock)
		return resp, nil
	}

	p.Metrics.OrdersPlaced.Inc()
	log.Info().Str("orderNumber", orderNumber).Str("total", o.Totals.Total.String()).Msg("Order placed")
	resp.OrderNumber = orderNumber

	if p.Invalidator != nil {
		p.Invalidator.Invalidate(ctx)
	}
	if err := p.sendConfirmations(ctx, o, orderNumber, resp.Mail); err != nil {
		log.Error().Err(err).Str("orderNumber", orderNumber).Msg("Failed to send order confirmation")
		p.Metrics.MailFailures.Inc()
		resp.Error = p.Translator.T(i18n.MailFailed)
	}
	if p.Publisher != nil {
		if err := p.Publisher.PublishOrderPlaced(ctx, p.placedEvent(o, orderNumber)); err != nil {
			log.Error().Err(err).Str("orderNumber", orderNumber).Msg("Failed to publish order.placed event")
		}
	}
	return resp, nil
}

// firstMissingField returns the first required field without a value.
func (p *Processor) firstMissingField(customer map[string]string) (string, bool) {
	for _, f := range p.fields {
		if f.Required && customer[f.Name] == "" {
			return f.Name, false
		}
	}
	return "", true
}

// sendConfirmations mails the same body to the shop operator and to the customer.
func (p *Processor) sendConfirmations(ctx context.Context, o order.Order, orderNumber, body string) error {
	msgs := []mailer.Message{{
		To:       p.cfg.ShopOperatorEmail,
		Subject:  p.Translator.T(i18n.OperatorSubject, orderNumber),
		HTMLBody: body,
	}}
	if customer := o.Customer[p.cfg.CustomerEmailField]; customer != "" {
		msgs = append(msgs, mailer.Message{
			To:       customer,
			Subject:  p.Translator.T(i18n.MailSubject, orderNumber),
			HTMLBody: body,
		})
	}

	var errs []error
	for _, m := range msgs {
		m.FromEmail = p.cfg.MailFromEmail
		m.FromName = p.cfg.MailFromName
		if err := p.Mailer.Send(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) placedEvent(o order.Order, orderNumber string) models.OrderPlacedEvent {
	lines := make([]models.PlacedLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, models.PlacedLine{
			BundleOptionID: *l.BundleOptionID,
			ItemName:       l.ItemName,
			BundleName:     l.BundleName,
			Amount:         l.Amount,
			UnitPrice:      l.UnitPrice,
			TotalPrice:     l.TotalPrice,
		})
	}
	return models.OrderPlacedEvent{
		EventID:         uuid.NewString(),
		OrderNumber:     orderNumber,
		CustomerEmail:   o.Customer[p.cfg.CustomerEmailField],
		Lines:           lines,
		Subtotal:        o.Totals.Subtotal,
		Shipping:        o.Totals.Shipping,
		Total:           o.Totals.Total,
		CollectInPerson: o.CollectInPerson,
		Timestamp:       p.now(),
	}
}
