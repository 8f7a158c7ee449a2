package order

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// BundleSubmission is the value submitted for one (item, bundle) pair. It is either a
// ScalarBundleSubmission or a NestedBundleOptionSubmission.
type BundleSubmission interface {
	isBundleSubmission()
}

// ScalarBundleSubmission is the single-quantity form field `<item>[<bundle>]`. The bundle
// option is found through the option selected per option group.
type ScalarBundleSubmission struct {
	Quantity int
}

// NestedBundleOptionSubmission carries quantities keyed by bundle option id, from
// `<item>[<bundle>][<bundleOption>]` fields.
type NestedBundleOptionSubmission struct {
	Quantities map[int64]int
}

func (ScalarBundleSubmission) isBundleSubmission()       {}
func (NestedBundleOptionSubmission) isBundleSubmission() {}

// Submission is a parsed order form post.
type Submission struct {
	// Bundles is keyed by item id, then bundle id.
	Bundles map[int64]map[int64]BundleSubmission
	// SelectedOptions is keyed by item id, then option group id.
	SelectedOptions map[int64]map[int64]int64
	CollectInPerson bool
	Customer        map[string]string
}

const collectInPersonField = "collectionByTheCustomer"

var (
	quantityField = regexp.MustCompile(`^(\d+)\[(\d+)\](?:\[(\d+)\])?$`)
	optionField   = regexp.MustCompile(`^item_(\d+)_option_(\d+)$`)
)

// ParseForm reads a form post. Quantities that are not integers count as zero. When a
// bundle is submitted in both shapes, the nested one wins. Only the named customer
// fields are kept.
func ParseForm(form url.Values, customerFields []string) Submission {
	sub := Submission{
		Bundles:         map[int64]map[int64]BundleSubmission{},
		SelectedOptions: map[int64]map[int64]int64{},
		Customer:        make(map[string]string, len(customerFields)),
	}
	_, sub.CollectInPerson = form[collectInPersonField]

	for key, values := range form {
		if m := quantityField.FindStringSubmatch(key); m != nil {
			itemID, _ := strconv.ParseInt(m[1], 10, 64)
			bundleID, _ := strconv.ParseInt(m[2], 10, 64)
			qty := atoi(first(values))
			if m[3] == "" {
				sub.addScalar(itemID, bundleID, qty)
				continue
			}
			boID, _ := strconv.ParseInt(m[3], 10, 64)
			sub.addNested(itemID, bundleID, boID, qty)
			continue
		}
		if m := optionField.FindStringSubmatch(key); m != nil {
			itemID, _ := strconv.ParseInt(m[1], 10, 64)
			groupID, _ := strconv.ParseInt(m[2], 10, 64)
			optionID, err := strconv.ParseInt(strings.TrimSpace(first(values)), 10, 64)
			if err != nil {
				continue
			}
			if sub.SelectedOptions[itemID] == nil {
				sub.SelectedOptions[itemID] = map[int64]int64{}
			}
			sub.SelectedOptions[itemID][groupID] = optionID
		}
	}

	for _, name := range customerFields {
		sub.Customer[name] = strings.TrimSpace(form.Get(name))
	}
	return sub
}

func (s *Submission) bundles(itemID int64) map[int64]BundleSubmission {
	if s.Bundles[itemID] == nil {
		s.Bundles[itemID] = map[int64]BundleSubmission{}
	}
	return s.Bundles[itemID]
}

func (s *Submission) addScalar(itemID, bundleID int64, qty int) {
	bundles := s.bundles(itemID)
	if _, nested := bundles[bundleID].(NestedBundleOptionSubmission); nested {
		return
	}
	bundles[bundleID] = ScalarBundleSubmission{Quantity: qty}
}

func (s *Submission) addNested(itemID, bundleID, boID int64, qty int) {
	bundles := s.bundles(itemID)
	nested, ok := bundles[bundleID].(NestedBundleOptionSubmission)
	if !ok {
		nested = NestedBundleOptionSubmission{Quantities: map[int64]int{}}
		bundles[bundleID] = nested
	}
	nested.Quantities[boID] = qty
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
