package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one SKU line of a purchase order. UnitCost is unknown until
// the enrichment stage resolves it against the order-management system.
type LineItem struct {
	SKU      string
	Quantity int
	UnitCost decimal.NullDecimal
}

// Resolved reports whether the line has an authoritative unit cost
func (li LineItem) Resolved() bool {
	return li.UnitCost.Valid
}

// Amount returns unit cost times quantity
func (li LineItem) Amount() decimal.Decimal {
	return li.UnitCost.Decimal.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Order is the unit of work for one reconciliation run. Subtotal and Tax are
// null until enrichment; Shipping comes from the order source.
type Order struct {
	// OrderID is the partner-prefixed business key used as the invoice
	// DocNumber
	OrderID             string
	PurchaseOrderNumber string
	ExternalOrderID     string

	Subtotal decimal.NullDecimal
	Tax      decimal.NullDecimal
	Shipping decimal.Decimal

	Items []LineItem

	TrackingNumber string
	ShipDate       time.Time
	Address        string
	City           string
	State          string
	Country        string
	PostalCode     string

	PartnerCode string
	PartnerName string
}

// BuildOrderID derives the partner-prefixed business key from a purchase
// order number, prefixing the partner code only when it is not already there
func BuildOrderID(partnerCode, poNumber string) string {
	if strings.HasPrefix(poNumber, partnerCode) {
		return poNumber
	}
	return partnerCode + poNumber
}

// FullyEnriched reports whether every financial field is populated. An order
// is either fully enriched or excluded from invoicing; nothing in between is
// allowed to reach the invoice builder.
func (o *Order) FullyEnriched() bool {
	if !o.Subtotal.Valid || !o.Tax.Valid {
		return false
	}

	for _, item := range o.Items {
		if !item.Resolved() {
			return false
		}
	}

	return true
}

// ItemSubtotal sums the resolved unit costs across all line items. This is
// the figure persisted back to the order source as the order subtotal.
func (o *Order) ItemSubtotal() decimal.Decimal {
	sum := decimal.Zero

	for _, item := range o.Items {
		sum = sum.Add(item.UnitCost.Decimal)
	}

	return sum
}
