package features

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/cucumber/godog"
	"github.com/drluca/shopstream/orderform/config"
	"github.com/drluca/shopstream/orderform/internal/i18n"
	"github.com/drluca/shopstream/orderform/internal/mailer"
	"github.com/drluca/shopstream/orderform/internal/metrics"
	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/drluca/shopstream/orderform/internal/processor"
	"github.com/drluca/shopstream/orderform/internal/reservation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// memoryStore keeps inventory in memory and applies a transaction's writes only on commit.
type memoryStore struct {
	mu        sync.Mutex
	inventory map[int64]int
}

type memoryTx struct {
	inventory map[int64]int
}

func (s *memoryStore) InTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := make(map[int64]int, len(s.inventory))
	for id, n := range s.inventory {
		work[id] = n
	}
	if err := fn(&memoryTx{inventory: work}); err != nil {
		return err
	}
	s.inventory = work
	return nil
}

func (s *memoryStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventory[id]
}

func (s *memoryStore) set(id int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[id] = n
}

func (t *memoryTx) LockInventory(ctx context.Context, ids []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(ids))
	for _, id := range ids {
		if n, ok := t.inventory[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (t *memoryTx) DecrementInventory(ctx context.Context, id int64, amount int) error {
	if t.inventory[id] < amount {
		return reservation.ErrInsufficientStock
	}
	t.inventory[id] -= amount
	return nil
}

// liveCatalog returns the configured items with the current stock of the store.
type liveCatalog struct {
	items []models.Item
	store *memoryStore
}

func (c *liveCatalog) LoadCatalog(ctx context.Context) ([]models.Item, error) {
	out := make([]models.Item, len(c.items))
	for i, item := range c.items {
		item.Bundles = append([]models.Bundle(nil), item.Bundles...)
		for j, b := range item.Bundles {
			bos := append([]models.BundleOption(nil), b.BundleOptions...)
			for k := range bos {
				bos[k].Inventory = c.store.stock(bos[k].ID)
			}
			item.Bundles[j].BundleOptions = bos
		}
		out[i] = item
	}
	return out, nil
}

type orderingContext struct {
	store   *memoryStore
	catalog *liveCatalog
	form    url.Values
	resp    processor.Response
	tr      *i18n.Translator
}

func (c *orderingContext) reset() {
	c.store = &memoryStore{inventory: map[int64]int{}}
	c.catalog = &liveCatalog{store: c.store}
	c.form = url.Values{}
	c.resp = processor.Response{}
}

func (c *orderingContext) theCatalog(table *godog.Table) error {
	for _, row := range table.Rows[1:] {
		cell := func(i int) string { return row.Cells[i].Value }
		itemID, err := strconv.ParseInt(cell(0), 10, 64)
		if err != nil {
			return err
		}
		bundleID, _ := strconv.ParseInt(cell(3), 10, 64)
		boID, _ := strconv.ParseInt(cell(4), 10, 64)
		minCount, _ := strconv.Atoi(cell(6))
		maxCount, _ := strconv.Atoi(cell(7))
		inventory, _ := strconv.Atoi(cell(8))
		porto, err := decimal.NewFromString(cell(2))
		if err != nil {
			return err
		}
		price, err := decimal.NewFromString(cell(5))
		if err != nil {
			return err
		}

		c.catalog.items = append(c.catalog.items, models.Item{
			ID: itemID, Name: cell(1), MinPorto: porto,
			Bundles: []models.Bundle{{ID: bundleID, ItemID: itemID, Name: "default", BundleOptions: []models.BundleOption{{
				ID: boID, BundleID: bundleID, Price: price, MinCount: minCount, MaxCount: maxCount,
			}}}},
		})
		c.store.set(boID, inventory)
	}
	return nil
}

func (c *orderingContext) iFilledInMyContactDetails() error {
	c.form.Set("name", "Erika Mustermann")
	c.form.Set("email", "erika@example.com")
	return nil
}

func (c *orderingContext) iLeftOutMyEmailAddress() error {
	c.form.Del("email")
	return nil
}

func (c *orderingContext) bundleOptionHasInventory(id int64, n int) error {
	c.store.set(id, n)
	return nil
}

func (c *orderingContext) iSelect(amount int, itemID, bundleID int64) error {
	c.form.Set(fmt.Sprintf("%d[%d]", itemID, bundleID), strconv.Itoa(amount))
	return nil
}

func (c *orderingContext) iCollectTheOrderInPerson() error {
	c.form.Set("collectionByTheCustomer", "1")
	return nil
}

func (c *orderingContext) submit(ctx context.Context, mode processor.Mode) error {
	tr, err := i18n.New("de", "€")
	if err != nil {
		return err
	}
	c.tr = tr
	renderer, err := mailer.NewRenderer(tr, []string{"name", "email"})
	if err != nil {
		return err
	}
	proc, err := processor.New(processor.Deps{
		Catalog:    c.catalog,
		Reserver:   reservation.NewEngine(c.store),
		Renderer:   renderer,
		Mailer:     mailer.LogSender{},
		Translator: tr,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	}, config.Config{
		CustomerFields:     "name:required,email:required",
		CustomerEmailField: "email",
		ShopOperatorEmail:  "orders@example.com",
	})
	if err != nil {
		return err
	}
	c.resp, err = proc.Handle(ctx, mode, c.form)
	return err
}

func (c *orderingContext) iAskForThePrice(ctx context.Context) error {
	return c.submit(ctx, processor.PriceOnly)
}

func (c *orderingContext) iPlaceTheOrder(ctx context.Context) error {
	return c.submit(ctx, processor.PlaceOrder)
}

func (c *orderingContext) theOrderIsAccepted() error {
	if c.resp.Error != "" || c.resp.OrderNumber == "" {
		return fmt.Errorf("expected an accepted order, got %+v", c.resp)
	}
	return nil
}

func (c *orderingContext) theOrderIsRejectedAsOutOfStock() error {
	if c.resp.Error != c.tr.T(i18n.OutOfStock) || c.resp.Order != 0 {
		return fmt.Errorf("expected an out of stock rejection, got %+v", c.resp)
	}
	return nil
}

func (c *orderingContext) iAmAskedToFillInTheRequiredFields() error {
	if c.resp.Error != c.tr.T(i18n.FillRequiredFields) {
		return fmt.Errorf("expected the required fields message, got %q", c.resp.Error)
	}
	return nil
}

func (c *orderingContext) theOrderFormFlagsMissingStock() error {
	if c.resp.Order != 0 {
		return fmt.Errorf("expected order flag 0, got %d", c.resp.Order)
	}
	return nil
}

func (c *orderingContext) thePriceIs(want string) error {
	if c.resp.Price != want {
		return fmt.Errorf("expected price %q, got %q", want, c.resp.Price)
	}
	return nil
}

func (c *orderingContext) theShippingIs(want string) error {
	if c.resp.Porto != want {
		return fmt.Errorf("expected shipping %q, got %q", want, c.resp.Porto)
	}
	return nil
}

func (c *orderingContext) bundleOptionHasLeft(id int64, want int) error {
	if got := c.store.stock(id); got != want {
		return fmt.Errorf("expected %d left of bundle option %d, got %d", want, id, got)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	oc := &orderingContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		oc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the catalog:$`, oc.theCatalog)
	ctx.Step(`^I filled in my contact details$`, oc.iFilledInMyContactDetails)
	ctx.Step(`^I left out my email address$`, oc.iLeftOutMyEmailAddress)
	ctx.Step(`^bundle option (\d+) has inventory (\d+)$`, oc.bundleOptionHasInventory)

	// When steps
	ctx.Step(`^I select (\d+) of item (\d+) bundle (\d+)$`, oc.iSelect)
	ctx.Step(`^I collect the order in person$`, oc.iCollectTheOrderInPerson)
	ctx.Step(`^I ask for the price$`, oc.iAskForThePrice)
	ctx.Step(`^I place the order$`, oc.iPlaceTheOrder)

	// Then steps
	ctx.Step(`^the order is accepted$`, oc.theOrderIsAccepted)
	ctx.Step(`^the order is rejected as out of stock$`, oc.theOrderIsRejectedAsOutOfStock)
	ctx.Step(`^I am asked to fill in the required fields$`, oc.iAmAskedToFillInTheRequiredFields)
	ctx.Step(`^the order form flags missing stock$`, oc.theOrderFormFlagsMissingStock)
	ctx.Step(`^the price is "([^"]*)"$`, oc.thePriceIs)
	ctx.Step(`^the shipping is "([^"]*)"$`, oc.theShippingIs)
	ctx.Step(`^bundle option (\d+) has (\d+) left$`, oc.bundleOptionHasLeft)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"ordering.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
