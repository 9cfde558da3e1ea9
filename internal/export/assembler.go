package export

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

const rowDateFormat = "2006/01/02"

// Partner-facing labels for the aag layout
const (
	aagCustomerLabel = "auto_accessories_garage"
	aagCarrierLabel  = "FEDEX_GROUND"
)

// Row maps a column name to its rendered value. Serialization order comes
// from the format's header list, not from the row itself.
type Row map[string]string

// Assembler accumulates the export rows for one partner group. Rows are
// append-only; the table is assembled once and serialized once.
type Assembler struct {
	formatName string
	headers    []string
	rows       []Row
	logger     logger.Logger
}

// NewAssembler creates an assembler for one partner group using the column
// set registered for the group's file format
func NewAssembler(headers map[string][]string, group *models.PartnerGroup, logger logger.Logger) *Assembler {
	return &Assembler{
		formatName: group.FileFormatName,
		headers:    headers[group.FileFormatName],
		logger:     logger,
	}
}

// Headers returns the column set for this assembler's format
func (a *Assembler) Headers() []string {
	return a.headers
}

// Rows returns the accumulated rows
func (a *Assembler) Rows() []Row {
	return a.rows
}

// Populate appends the export rows for one invoiced order. It returns false
// on any data-shape problem (unknown format, unregistered columns, order not
// fully enriched); the orchestrator treats false as an export failure that
// requires invoice compensation.
func (a *Assembler) Populate(order *models.Order) bool {
	if len(a.headers) == 0 {
		a.logger.Error("No export columns registered for format", "format", a.formatName)
		return false
	}

	if !order.FullyEnriched() {
		a.logger.Error("Refusing to export a partially enriched order", "orderID", order.OrderID)
		return false
	}

	switch a.formatName {
	case "default":
		a.populateDefault(order)
	case "aag":
		a.populateAAG(order)
	default:
		a.logger.Error("Unknown export format", "format", a.formatName)
		return false
	}

	return true
}

// populateDefault emits one row per line item, each carrying the order-level
// invoice aggregates alongside that item's SKU, quantity and unit cost
func (a *Assembler) populateDefault(order *models.Order) {
	subtotal := order.Subtotal.Decimal.Sub(order.Tax.Decimal).Round(2)

	for _, item := range order.Items {
		a.rows = append(a.rows, Row{
			"po_number":               order.PurchaseOrderNumber,
			"invoice_number":          order.OrderID,
			"invoice_date":            order.ShipDate.Format(rowDateFormat),
			"invoice_total_amount":    order.Subtotal.Decimal.StringFixed(2),
			"invoice_subtotal_amount": subtotal.StringFixed(2),
			"invoice_tax_amount":      order.Tax.Decimal.StringFixed(2),
			"line_item_sku":           item.SKU,
			"line_item_quantity":      itoa(item.Quantity),
			"line_item_unit_cost":     item.UnitCost.Decimal.StringFixed(2),
		})
	}
}

// populateAAG emits one row per line item plus one synthetic Taxes row and
// one synthetic SHIPPING row, all carrying the shared order-level fields
func (a *Assembler) populateAAG(order *models.Order) {
	for _, item := range order.Items {
		a.rows = append(a.rows, a.aagRow(order, item.SKU, item.Quantity, item.Amount()))
	}

	a.rows = append(a.rows, a.aagRow(order, "Taxes", 1, order.Tax.Decimal))
	a.rows = append(a.rows, a.aagRow(order, "SHIPPING", 1, order.Shipping))
}

func (a *Assembler) aagRow(order *models.Order, item string, qty int, price decimal.Decimal) Row {
	return Row{
		"Invoice Number": order.OrderID,
		"SONumber":       order.PurchaseOrderNumber,
		"Date":           order.ShipDate.Format(rowDateFormat),
		"Customer":       aagCustomerLabel,
		"CarrierName":    aagCarrierLabel,
		"TrackingNumber": order.TrackingNumber,
		"item":           item,
		"qty":            itoa(qty),
		"price":          price.StringFixed(2),
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
