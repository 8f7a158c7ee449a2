package processor

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/drluca/shopstream/orderform/config"
	"github.com/drluca/shopstream/orderform/internal/i18n"
	"github.com/drluca/shopstream/orderform/internal/mailer"
	"github.com/drluca/shopstream/orderform/internal/metrics"
	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	items []models.Item
	err   error
}

func (f fakeCatalog) LoadCatalog(ctx context.Context) ([]models.Item, error) { return f.items, f.err }

type fakeReserver struct {
	ok    bool
	err   error
	calls [][]models.ReservationRequest
}

func (f *fakeReserver) Reserve(ctx context.Context, requests []models.ReservationRequest) (bool, error) {
	f.calls = append(f.calls, requests)
	return f.ok, f.err
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakePublisher struct {
	events []models.OrderPlacedEvent
	err    error
}

func (f *fakePublisher) PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(ctx context.Context) { c.calls++ }

func testItems() []models.Item {
	optionID := int64(50)
	return []models.Item{
		{
			ID: 1, Name: "Mug", MinPorto: decimal.RequireFromString("5.00"),
			Bundles: []models.Bundle{{ID: 10, ItemID: 1, Name: "white", BundleOptions: []models.BundleOption{
				{ID: 100, BundleID: 10, Price: decimal.RequireFromString("29.99"), MinCount: 1, MaxCount: 5, Inventory: 100},
			}}},
		},
		{
			ID: 2, Name: "Shirt", MinPorto: decimal.RequireFromString("7.50"),
			Bundles: []models.Bundle{{ID: 20, ItemID: 2, Name: "blue", BundleOptions: []models.BundleOption{
				{ID: 200, BundleID: 20, OptionID: &optionID, Price: decimal.RequireFromString("10.00"), MinCount: 0, MaxCount: 10, Inventory: 3},
			}}},
			OptionGroups: []models.OptionGroup{{ID: 5, ItemID: 2, Name: "Size", Options: []models.Option{
				{ID: 50, GroupID: 5, Name: "M", BundleOptions: []models.BundleOption{
					{ID: 200, BundleID: 20, OptionID: &optionID, Price: decimal.RequireFromString("10.00"), MinCount: 0, MaxCount: 10, Inventory: 3},
				}},
			}}},
		},
	}
}

type fixture struct {
	proc      *Processor
	reserver  *fakeReserver
	mailer    *fakeMailer
	publisher *fakePublisher
	cache     *countingInvalidator
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, items []models.Item) *fixture {
	t.Helper()
	cfg := config.Config{
		CustomerFields:     "name:required,email:required,phone",
		CustomerEmailField: "email",
		ShopOperatorEmail:  "orders@example.com",
		MailFromEmail:      "shop@example.com",
		MailFromName:       "Shop",
	}
	tr, err := i18n.New("de", "€")
	require.NoError(t, err)
	names, err := cfg.CustomerFieldNames()
	require.NoError(t, err)
	renderer, err := mailer.NewRenderer(tr, names)
	require.NoError(t, err)

	f := &fixture{
		reserver:  &fakeReserver{ok: true},
		mailer:    &fakeMailer{},
		publisher: &fakePublisher{},
		cache:     &countingInvalidator{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	f.proc, err = New(Deps{
		Catalog:     fakeCatalog{items: items},
		Reserver:    f.reserver,
		Renderer:    renderer,
		Mailer:      f.mailer,
		Publisher:   f.publisher,
		Invalidator: f.cache,
		Translator:  tr,
		Metrics:     f.metrics,
	}, cfg)
	require.NoError(t, err)
	return f
}

func customer(form url.Values) url.Values {
	form.Set("name", "Erika Mustermann")
	form.Set("email", "erika@example.com")
	return form
}

func TestHandle_PriceOnly(t *testing.T) {
	f := newFixture(t, testItems())

	resp, err := f.proc.Handle(context.Background(), PriceOnly, url.Values{"1[10]": {"2"}})

	require.NoError(t, err)
	assert.Equal(t, Response{Price: "64,98 €", Porto: "5,00 €", Order: 1}, resp)
	assert.Empty(t, f.reserver.calls)
}

func TestHandle_PriceOnlyFlagsOutOfStock(t *testing.T) {
	f := newFixture(t, testItems())

	resp, err := f.proc.Handle(context.Background(), PriceOnly, url.Values{"2[20]": {"5"}, "item_2_option_5": {"50"}})

	require.NoError(t, err)
	assert.Equal(t, 0, resp.Order)
	assert.Equal(t, "37,50 €", resp.Price, "three available shirts plus shipping")
}

func TestHandle_CollectInPersonDropsShipping(t *testing.T) {
	f := newFixture(t, testItems())

	resp, err := f.proc.Handle(context.Background(), PriceOnly, url.Values{"1[10]": {"1"}, "collectionByTheCustomer": {"1"}})

	require.NoError(t, err)
	assert.Equal(t, "0,00 €", resp.Porto)
	assert.Equal(t, "29,99 €", resp.Price)
}

func TestHandle_PreviewRequiresFields(t *testing.T) {
	f := newFixture(t, testItems())
	form := url.Values{"1[10]": {"1"}, "name": {"Erika"}}

	resp, err := f.proc.Handle(context.Background(), Preview, form)

	require.NoError(t, err)
	assert.Equal(t, "Bitte füllen Sie alle Pflichtfelder aus.", resp.Error)
	assert.Empty(t, resp.Mail)
	assert.Equal(t, "34,99 €", resp.Price, "price is still computed")
}

func TestHandle_PreviewRendersMailWithoutReserving(t *testing.T) {
	f := newFixture(t, testItems())

	resp, err := f.proc.Handle(context.Background(), Preview, customer(url.Values{"1[10]": {"1"}}))

	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Contains(t, resp.Mail, "Erika Mustermann")
	assert.Empty(t, f.reserver.calls)
	assert.Empty(t, f.mailer.sent)
}

func TestHandle_PlaceOrder(t *testing.T) {
	f := newFixture(t, testItems())
	form := customer(url.Values{"1[10]": {"2"}, "2[20]": {"1"}, "item_2_option_5": {"50"}})

	resp, err := f.proc.Handle(context.Background(), PlaceOrder, form)

	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, 1, resp.Order)
	assert.Equal(t, "77,48 €", resp.Price)
	assert.Equal(t, "7,50 €", resp.Porto)
	assert.NotEmpty(t, resp.OrderNumber)

	require.Len(t, f.reserver.calls, 1)
	reqs := f.reserver.calls[0]
	require.Len(t, reqs, 2)
	assert.Equal(t, int64(100), *reqs[0].BundleOptionID)
	assert.Equal(t, 2, reqs[0].Amount)

	require.Len(t, f.mailer.sent, 2)
	assert.Equal(t, "orders@example.com", f.mailer.sent[0].To)
	assert.Equal(t, "erika@example.com", f.mailer.sent[1].To)
	assert.Equal(t, f.mailer.sent[0].HTMLBody, f.mailer.sent[1].HTMLBody)
	assert.Equal(t, resp.Mail, f.mailer.sent[1].HTMLBody)
	assert.Equal(t, "Ihre Bestellung "+resp.OrderNumber, f.mailer.sent[1].Subject)
	assert.Equal(t, "shop@example.com", f.mailer.sent[1].FromEmail)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, resp.OrderNumber, event.OrderNumber)
	assert.Equal(t, "erika@example.com", event.CustomerEmail)
	assert.Len(t, event.Lines, 2)
	assert.True(t, decimal.RequireFromString("77.48").Equal(event.Total))

	assert.Equal(t, 1, f.cache.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersPlaced))
}

func TestHandle_PlaceOrderFlaggedOutOfStockIsNotReserved(t *testing.T) {
	f := newFixture(t, testItems())
	// live stock would accept the request, but the priced lines are capped at 3
	f.reserver.ok = true

	resp, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"2[20]": {"5"}, "item_2_option_5": {"50"}}))

	require.NoError(t, err)
	assert.Equal(t, 0, resp.Order)
	assert.Equal(t, "37,50 €", resp.Price)
	assert.Contains(t, resp.Error, "nicht mehr alle gewählten Artikel")
	assert.Empty(t, resp.OrderNumber)
	assert.Empty(t, f.reserver.calls)
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.publisher.events)
	assert.Zero(t, f.cache.calls)
	assert.Zero(t, testutil.ToFloat64(f.metrics.OrdersPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersRejected.WithLabelValues(metrics.ReasonOutOfStock)))
}

func TestHandle_PlaceOrderLiveStockConflict(t *testing.T) {
	f := newFixture(t, testItems())
	f.reserver.ok = false

	resp, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"2[20]": {"2"}, "item_2_option_5": {"50"}}))

	require.NoError(t, err)
	assert.Equal(t, 0, resp.Order)
	assert.Contains(t, resp.Error, "nicht mehr alle gewählten Artikel")
	assert.Empty(t, resp.OrderNumber)
	require.Len(t, f.reserver.calls, 1)
	assert.Equal(t, 2, f.reserver.calls[0][0].Amount)
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.publisher.events)
	assert.Zero(t, f.cache.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersRejected.WithLabelValues(metrics.ReasonOutOfStock)))
}

func TestHandle_PlaceEmptyOrder(t *testing.T) {
	f := newFixture(t, testItems())

	resp, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"2[20]": {"0"}, "item_2_option_5": {"50"}}))

	require.NoError(t, err)
	assert.Equal(t, "Bitte wählen Sie mindestens einen Artikel aus.", resp.Error)
	assert.Empty(t, f.reserver.calls)
}

func TestHandle_MinCountTurnsZeroIntoALine(t *testing.T) {
	f := newFixture(t, testItems())

	resp, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"1[10]": {"0"}}))

	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "34,99 €", resp.Price)
	require.Len(t, f.reserver.calls, 1)
	assert.Equal(t, 1, f.reserver.calls[0][0].Amount)
}

func TestHandle_UnresolvedLineIsAConfigurationFault(t *testing.T) {
	f := newFixture(t, testItems())

	_, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"2[20]": {"1"}}))

	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Empty(t, f.reserver.calls)
}

func TestHandle_StorageFaultsAreReturned(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("catalog", func(t *testing.T) {
		f := newFixture(t, nil)
		f.proc.Catalog = fakeCatalog{err: boom}
		_, err := f.proc.Handle(context.Background(), PriceOnly, url.Values{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("reservation", func(t *testing.T) {
		f := newFixture(t, testItems())
		f.reserver.err = boom
		_, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"1[10]": {"1"}}))
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, f.mailer.sent)
	})
}

func TestHandle_MailFailureAfterCommit(t *testing.T) {
	f := newFixture(t, testItems())
	f.mailer.err = errors.New("smtp: 421 service not available")

	resp, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"1[10]": {"1"}}))

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Order)
	assert.NotEmpty(t, resp.OrderNumber)
	assert.Contains(t, resp.Error, "E-Mail")
	assert.Len(t, f.mailer.sent, 2, "the customer mail is still attempted")
	assert.Len(t, f.publisher.events, 1)
}

func TestHandle_PublishFailureIsOnlyLogged(t *testing.T) {
	f := newFixture(t, testItems())
	f.publisher.err = errors.New("publish confirmation timeout")

	resp, err := f.proc.Handle(context.Background(), PlaceOrder, customer(url.Values{"1[10]": {"1"}}))

	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.OrderNumber)
}

func TestNew_RejectsBadFieldConfig(t *testing.T) {
	_, err := New(Deps{}, config.Config{CustomerFields: "name:sometimes"})

	assert.ErrorContains(t, err, "unknown flag")
}
