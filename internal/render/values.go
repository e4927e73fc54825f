package render

import (
	"math"
	"strconv"
)

// Fixed order charges, applied to every completed run.
const (
	ProcessingFee = 5.95
	ShippingCost  = 12.95
)

// Fallback literals used when neither the stored profile nor the wizard
// collected a value.
const (
	defaultFirstName   = "Jan"
	defaultWholeName   = "Jan Kowalski"
	defaultCustomer    = "Customer"
	defaultStreet      = "Shipping Address Line 1"
	defaultBillStreet  = "Billing Address Line 1"
	defaultCityPostal  = "City, Postal Code"
	defaultCountry     = "Country"
	defaultPhoneNumber = "+1 234 567 890"
	defaultCardEnd     = "1234"
)

// Order holds the validated fields of a completed wizard run.
type Order struct {
	Template string
	Brand    string
	Product  string
	Size     string
	Price    float64
	Quantity float64
	Taxes    float64

	Email    string
	Date     string
	ImageURL string

	StyleID           string
	Colour            string
	Reference         string
	FirstName         string
	WholeName         string
	Currency          string
	PhoneNumber       string
	CardEnd           string
	EstimatedDelivery string
}

// Customer is the stored profile used as the primary source for name and
// address tokens. A nil *Customer means no profile is on record.
type Customer struct {
	FullName   string
	Email      string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// Totals are the derived charges of an order.
type Totals struct {
	Subtotal float64
	Fee      float64
	Shipping float64
	Taxes    float64
	Total    float64
}

// ComputeTotals derives the order totals: subtotal is unit price times
// quantity, total adds the fixed fee, shipping and taxes, rounded to two
// decimal places for display.
func ComputeTotals(price, quantity, taxes float64) Totals {
	subtotal := price * quantity
	total := subtotal + ProcessingFee + ShippingCost + taxes
	return Totals{
		Subtotal: subtotal,
		Fee:      ProcessingFee,
		Shipping: ShippingCost,
		Taxes:    taxes,
		Total:    math.Round(total*100) / 100,
	}
}

// Values builds the token value table for an order. Fields the schema
// never collected are empty in o and fall back to their fixed defaults
// here; name and address tokens fall back through profile value, then
// wizard value, then literal default.
func Values(o Order, profile *Customer, orderNumber string) map[string]string {
	t := ComputeTotals(o.Price, o.Quantity, o.Taxes)

	productName := o.Brand + " " + o.Product
	firstName := firstNonEmpty(profileName(profile), o.FirstName, defaultFirstName)
	wholeName := firstNonEmpty(profileName(profile), o.WholeName, defaultWholeName)
	shipName := firstNonEmpty(profileName(profile), o.FirstName, o.WholeName, defaultCustomer)
	billName := firstNonEmpty(profileName(profile), o.WholeName, o.FirstName, defaultCustomer)
	shipJan := firstNonEmpty(profileName(profile), o.FirstName, o.WholeName, defaultWholeName)
	billJan := firstNonEmpty(profileName(profile), o.WholeName, o.FirstName, defaultWholeName)

	street := defaultStreet
	billStreet := defaultBillStreet
	if profile != nil && profile.Street != "" {
		street = profile.Street
		billStreet = profile.Street
	}
	cityPostal := defaultCityPostal
	if profile != nil && (profile.City != "" || profile.PostalCode != "") {
		cityPostal = profile.City + ", " + profile.PostalCode
	}
	country := defaultCountry
	if profile != nil && profile.Country != "" {
		country = profile.Country
	}

	return map[string]string{
		"PRODUCT_IMAGE":    o.ImageURL,
		"PRODUCT_LINK":     o.ImageURL,
		"PRODUCT_NAME":     productName,
		"PRODUCTNAME":      productName,
		"PRODUCT_SUBTOTAL": money(t.Subtotal),
		"PRODUCT_QTY":      "Qty " + quantityStr(o.Quantity),
		"PRODUCT_PRICE":    money(o.Price),
		"PRODUCTPRICE":     money(o.Price),
		"PRODUCT_COLOUR":   o.Colour,
		"PRODUCTSTYLE":     o.StyleID,
		"PRODUCTSIZE":      o.Size,
		"PRODUCT":          o.Product,
		"STYLE_ID":         o.StyleID,
		"STYLE":            o.StyleID,
		"SIZE":             o.Size,
		"PRICE":            money(o.Price),
		"FEE":              money(t.Fee),
		"SHIPPING":         money(t.Shipping),
		"TAXES":            money(t.Taxes),
		"TOTAL":            money(t.Total),
		"ORDER_TOTAL":      money(t.Total),
		"CARTTOTAL":        money(t.Total),
		"DATE":             o.Date,
		"ORDERDATE":        o.Date,
		"ORDER_NUMBER":     orderNumber,
		"ORDERNUMBER":      orderNumber,
		"COLOUR":           o.Colour,
		"REFERENCE":        o.Reference,
		"FIRSTNAME":        firstName,
		"FIRST_NAME":       firstName,
		"WHOLE_NAME":       wholeName,
		"WHOLENAME":        wholeName,
		"EMAIL":            o.Email,
		"QUANTITY":         quantityStr(o.Quantity),
		"CURRENCY_STR":     o.Currency,
		"CURRENCY":         o.Currency,
		"PHONE_NUMBER":     firstNonEmpty(o.PhoneNumber, defaultPhoneNumber),
		"CARD_END":         firstNonEmpty(o.CardEnd, defaultCardEnd),
		"ESTIMATED_DELIVERY": o.EstimatedDelivery,

		"ADDRESS1": shipName,
		"ADDRESS2": street,
		"ADDRESS3": cityPostal,
		"ADDRESS4": country,
		"ADDRESS5": "",

		"BILLING1": billName,
		"BILLING2": billStreet,
		"BILLING3": cityPostal,
		"BILLING4": country,
		"BILLING5": "",

		"SHIPPING1": shipName,
		"SHIPPING2": street,
		"SHIPPING3": cityPostal,
		"SHIPPING4": country,
		"SHIPPING5": "",

		"SHIPPING_JAN": shipJan,
		"BILLING_JAN":  billJan,
	}
}

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

func quantityStr(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func profileName(p *Customer) string {
	if p == nil {
		return ""
	}
	return p.FullName
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
