package schema

// Field keys used across the wizard stages. The keys double as field
// names in the transport payloads.
const (
	FieldBrand             = "brand"
	FieldProduct           = "product"
	FieldSize              = "size"
	FieldPrice             = "price"
	FieldEmail             = "email"
	FieldDate              = "date"
	FieldImageURL          = "image_url"
	FieldStyleID           = "style_id"
	FieldColour            = "colour"
	FieldTaxes             = "taxes"
	FieldReference         = "reference"
	FieldFirstName         = "first_name"
	FieldWholeName         = "whole_name"
	FieldQuantity          = "quantity"
	FieldCurrency          = "currency"
	FieldPhoneNumber       = "phone_number"
	FieldCardEnd           = "card_end"
	FieldEstimatedDelivery = "estimated_delivery"

	FieldFullName   = "full_name"
	FieldUserEmail  = "user_email"
	FieldStreet     = "street"
	FieldCity       = "city"
	FieldPostalCode = "postal_code"
	FieldCountry    = "country"
)

// Field describes a single input requested from the user during a stage.
type Field struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// group binds an optional field to the schema flag that requests it.
// Deferrable groups move to the third stage when the schema defers.
type group struct {
	field      Field
	requiredIf func(Schema) bool
	deferrable bool
}

var optionalGroups = []group{
	{
		field:      Field{Key: FieldStyleID, Label: "Style ID", Placeholder: "e.g. DZ5485-612", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsStyleID },
	},
	{
		field:      Field{Key: FieldColour, Label: "Colour", Placeholder: "e.g. Black, White", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsColour },
	},
	{
		field:      Field{Key: FieldTaxes, Label: "Taxes (number only, no $)", Placeholder: "e.g. 15.00", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsTaxes },
	},
	{
		field:      Field{Key: FieldReference, Label: "Reference number", Placeholder: "e.g. REF123456", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsReference },
	},
	{
		field:      Field{Key: FieldFirstName, Label: "First name", Placeholder: "e.g. Jan", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsFirstName },
	},
	{
		field:      Field{Key: FieldWholeName, Label: "Full name", Placeholder: "e.g. Jan Kowalski", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsWholeName },
	},
	{
		field:      Field{Key: FieldQuantity, Label: "Quantity", Placeholder: "e.g. 1", Required: true, Default: "1"},
		requiredIf: func(s Schema) bool { return s.NeedsQuantity },
	},
	{
		field:      Field{Key: FieldCurrency, Label: "Currency (e.g. USD, EUR, GBP)", Placeholder: "e.g. USD", Required: true, Default: "USD"},
		requiredIf: func(s Schema) bool { return s.NeedsCurrency },
		deferrable: true,
	},
	{
		field:      Field{Key: FieldPhoneNumber, Label: "Phone number", Placeholder: "e.g. +48 123 456 789", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsPhoneNumber },
		deferrable: true,
	},
	{
		field:      Field{Key: FieldCardEnd, Label: "Last 4 digits of the card", Placeholder: "e.g. 1234", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsCardEnd },
		deferrable: true,
	},
	{
		field:      Field{Key: FieldEstimatedDelivery, Label: "Estimated delivery date", Placeholder: "e.g. 25/12/2024", Required: true},
		requiredIf: func(s Schema) bool { return s.NeedsEstimatedDelivery },
		deferrable: true,
	},
}

// Stage1Fields returns the product fields collected first, identical for
// every template.
func Stage1Fields() []Field {
	return []Field{
		{Key: FieldBrand, Label: "Brand", Placeholder: "e.g. Nike", Required: true},
		{Key: FieldProduct, Label: "Product name", Placeholder: "e.g. Air Jordan 1 Retro High", Required: true},
		{Key: FieldSize, Label: "Size (optional)", Placeholder: "e.g. 42 or US 10"},
		{Key: FieldPrice, Label: "Price (number only, no $)", Placeholder: "e.g. 250.00", Required: true},
	}
}

// Stage2Fields returns the second-stage fields for a template: the three
// mandatory fields plus every non-deferred optional group the schema
// requests, up to the stage ceiling.
func Stage2Fields(s Schema) []Field {
	fields := []Field{
		{Key: FieldEmail, Label: "Email", Placeholder: "e.g. customer@example.com", Required: true},
		{Key: FieldDate, Label: "Order date", Placeholder: "e.g. 22/12/2024", Required: true},
		{Key: FieldImageURL, Label: "Image link (public URL)", Placeholder: "https://i.imgur.com/abc123.jpg", Required: true},
	}

	for _, g := range optionalGroups {
		if len(fields) >= MaxStageFields {
			break
		}
		if !g.requiredIf(s) {
			continue
		}
		if g.deferrable && s.Deferred {
			continue
		}
		fields = append(fields, g.field)
	}

	return fields
}

// Stage3Fields returns the deferred fields for a template. Empty unless
// the schema defers.
func Stage3Fields(s Schema) []Field {
	if !s.Deferred {
		return nil
	}

	var fields []Field
	for _, g := range optionalGroups {
		if len(fields) >= MaxStageFields {
			break
		}
		if g.deferrable && g.requiredIf(s) {
			fields = append(fields, g.field)
		}
	}

	return fields
}

// SettingsStage1Fields returns the first part of the settings flow. All
// fields are optional except the email, which is validated on submit.
func SettingsStage1Fields() []Field {
	return []Field{
		{Key: FieldFullName, Label: "Full name", Placeholder: "e.g. Jan Kowalski"},
		{Key: FieldUserEmail, Label: "Email address", Placeholder: "e.g. jan@example.com", Required: true},
		{Key: FieldStreet, Label: "Street and number", Placeholder: "e.g. 123 Main St, Apt 45"},
		{Key: FieldCity, Label: "City", Placeholder: "e.g. Warsaw"},
		{Key: FieldPostalCode, Label: "Postal code", Placeholder: "e.g. 00-001"},
	}
}

// SettingsStage2Fields returns the second part of the settings flow.
func SettingsStage2Fields() []Field {
	return []Field{
		{Key: FieldCountry, Label: "Country", Placeholder: "e.g. Poland"},
	}
}
