// Package schema defines the fixed registry of receipt templates and the
// stage composition rules of the order wizard.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// MaxStageFields is the hard ceiling on input fields per wizard stage.
// Optional field groups that do not fit next to the mandatory fields of
// the second stage are deferred to a third stage instead.
const MaxStageFields = 5

// Schema describes which optional field groups a template requires and
// which document resource it renders into.
type Schema struct {
	ID       string
	Document string

	NeedsStyleID           bool
	NeedsColour            bool
	NeedsTaxes             bool
	NeedsReference         bool
	NeedsFirstName         bool
	NeedsWholeName         bool
	NeedsQuantity          bool
	NeedsShippingAddress   bool
	NeedsCurrency          bool
	NeedsPhoneNumber       bool
	NeedsCardEnd           bool
	NeedsEstimatedDelivery bool

	// Deferred moves the currency, phone, card-suffix and
	// estimated-delivery groups to a final third stage because the
	// second stage cannot hold them next to its mandatory fields.
	Deferred bool
}

// DisplayName returns the capitalized template identifier used in
// outbound subjects and status text.
func (s Schema) DisplayName() string {
	if s.ID == "" {
		return ""
	}
	return strings.ToUpper(s.ID[:1]) + s.ID[1:]
}

// NotFoundError is returned by Lookup for unknown template identifiers.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.ID)
}

var registry = map[string]Schema{
	"stockx": {
		ID:           "stockx",
		Document:     "stockx.html",
		NeedsStyleID: true,
	},
	"apple": {
		ID:                   "apple",
		Document:             "apple.html",
		NeedsQuantity:        true,
		NeedsShippingAddress: true,
	},
	"balenciaga": {
		ID:             "balenciaga",
		Document:       "balenciaga.html",
		NeedsColour:    true,
		NeedsFirstName: true,
	},
	"bape": {
		ID:            "bape",
		Document:      "bape.html",
		NeedsStyleID:  true,
		NeedsTaxes:    true,
		NeedsCurrency: true,
		Deferred:      true,
	},
	"dior": {
		ID:         "dior",
		Document:   "dior.html",
		NeedsTaxes: true,
	},
	"lv": {
		ID:             "lv",
		Document:       "lv.html",
		NeedsReference: true,
	},
	"moncler": {
		ID:                     "moncler",
		Document:               "moncler.html",
		NeedsColour:            true,
		NeedsEstimatedDelivery: true,
		NeedsCardEnd:           true,
		Deferred:               true,
	},
	"nike": {
		ID:            "nike",
		Document:      "nike.html",
		NeedsCurrency: true,
		NeedsCardEnd:  true,
	},
	"stussy": {
		ID:           "stussy",
		Document:     "stussy.html",
		NeedsStyleID: true,
		NeedsTaxes:   true,
	},
	"trapstar": {
		ID:           "trapstar",
		Document:     "trapstar.html",
		NeedsStyleID: true,
	},
}

// Lookup returns the schema for a template identifier.
func Lookup(id string) (Schema, error) {
	s, ok := registry[id]
	if !ok {
		return Schema{}, &NotFoundError{ID: id}
	}
	return s, nil
}

// IDs returns all registered template identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
