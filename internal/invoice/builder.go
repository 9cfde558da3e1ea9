package invoice

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/invoice-reconciler/internal/clients"
	"github.com/vaidashi/invoice-reconciler/internal/config"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

const dateFormat = "2006-01-02"

// API is the slice of the accounting service the builder needs
type API interface {
	GetItemRef(ctx context.Context, id string) (clients.Ref, error)
	GetClassRef(ctx context.Context, id string) (clients.Ref, error)
	GetCustomerRef(ctx context.Context, id string) (clients.Ref, error)
	GetTermRef(ctx context.Context, id string) (clients.Ref, error)
	FindInvoice(ctx context.Context, docNumber string) (*clients.Invoice, error)
	CreateInvoice(ctx context.Context, invoice *clients.Invoice) (*clients.Invoice, error)
	DeleteInvoice(ctx context.Context, invoice *clients.Invoice) error
}

// Builder constructs and submits invoices for fully enriched orders
type Builder struct {
	api    API
	cfg    config.BooksConfig
	logger logger.Logger
}

// NewBuilder creates a new Builder. The catalog reference ids come from
// configuration, never constants.
func NewBuilder(api API, cfg config.BooksConfig, logger logger.Logger) *Builder {
	return &Builder{
		api:    api,
		cfg:    cfg,
		logger: logger,
	}
}

// CheckExists returns the existing invoice for an order id, or nil when none
// exists. Lookup errors are logged and reported as nil: the subsequent
// create will fail loudly if the service is actually down.
func (b *Builder) CheckExists(ctx context.Context, orderID string) *clients.Invoice {
	found, err := b.api.FindInvoice(ctx, orderID)

	if err != nil {
		b.logger.Error("Failed to check for existing invoice", "error", err, "orderID", orderID)
		return nil
	}

	return found
}

// Create builds and submits one invoice for a fully enriched order. It
// returns false on any failure; the orchestrator treats that as unable to
// invoice, never as a crash.
func (b *Builder) Create(ctx context.Context, order *models.Order, mappings models.VendorMappings) bool {
	if !order.FullyEnriched() {
		b.logger.Error("Refusing to invoice a partially enriched order", "orderID", order.OrderID)
		return false
	}

	mapping, ok := mappings[order.PartnerName]

	if !ok {
		b.logger.Error("No vendor mapping for partner", "partner", order.PartnerName, "orderID", order.OrderID)
		return false
	}

	itemRef, err := b.api.GetItemRef(ctx, b.cfg.ProductItemID)

	if err != nil {
		b.logger.Error("Failed to resolve product item reference", "error", err, "orderID", order.OrderID)
		return false
	}

	taxRef, err := b.api.GetItemRef(ctx, b.cfg.TaxItemID)

	if err != nil {
		b.logger.Error("Failed to resolve tax item reference", "error", err, "orderID", order.OrderID)
		return false
	}

	shippingRef, err := b.api.GetItemRef(ctx, b.cfg.ShippingItemID)

	if err != nil {
		b.logger.Error("Failed to resolve shipping item reference", "error", err, "orderID", order.OrderID)
		return false
	}

	classRef, err := b.api.GetClassRef(ctx, b.cfg.ClassID)

	if err != nil {
		b.logger.Error("Failed to resolve class reference", "error", err, "orderID", order.OrderID)
		return false
	}

	customerRef, err := b.api.GetCustomerRef(ctx, mapping.CustomerID)

	if err != nil {
		b.logger.Error("Failed to resolve customer reference", "error", err,
			"orderID", order.OrderID, "customerID", mapping.CustomerID)
		return false
	}

	termRef, err := b.api.GetTermRef(ctx, b.cfg.TermID)

	if err != nil {
		b.logger.Error("Failed to resolve term reference", "error", err, "orderID", order.OrderID)
		return false
	}

	date := order.ShipDate.Format(dateFormat)
	lines := make([]clients.InvoiceLine, 0, len(order.Items)+2)

	for _, item := range order.Items {
		lines = append(lines, salesLine(item, itemRef, classRef, date))
	}

	// Exactly one synthetic tax line and one synthetic shipping line
	lines = append(lines, syntheticLine("Taxes", order.Tax.Decimal, taxRef, classRef, date))
	lines = append(lines, syntheticLine("Shipping", order.Shipping, shippingRef, classRef, date))

	inv := &clients.Invoice{
		DocNumber:    order.OrderID,
		TxnDate:      date,
		ShipDate:     date,
		TrackingNum:  order.TrackingNumber,
		Line:         lines,
		CustomerRef:  customerRef,
		SalesTermRef: termRef,
		ShipMethodRef: clients.Ref{
			Value: mapping.ShipMethod,
			Name:  mapping.ShipMethod,
		},
		ShipAddr: &clients.Address{
			Line1:                  order.Address,
			City:                   order.City,
			CountrySubDivisionCode: order.State,
			Country:                order.Country,
			PostalCode:             order.PostalCode,
		},
		BillEmail: &clients.EmailAddress{Address: mapping.Email},
	}

	if _, err := b.api.CreateInvoice(ctx, inv); err != nil {
		b.logger.Error("Failed to create invoice", "error", err, "orderID", order.OrderID)
		return false
	}

	b.logger.Info("Created invoice", "orderID", order.OrderID)
	return true
}

// Delete removes an invoice as compensation for a downstream failure
func (b *Builder) Delete(ctx context.Context, inv *clients.Invoice) bool {
	if inv == nil {
		return false
	}

	if err := b.api.DeleteInvoice(ctx, inv); err != nil {
		b.logger.Error("Failed to delete invoice", "error", err, "docNumber", inv.DocNumber)
		return false
	}

	b.logger.Info("Deleted invoice", "docNumber", inv.DocNumber)
	return true
}

func salesLine(item models.LineItem, itemRef, classRef clients.Ref, date string) clients.InvoiceLine {
	return clients.InvoiceLine{
		Amount:      item.Amount(),
		DetailType:  "SalesItemLineDetail",
		Description: item.SKU,
		SalesItemLineDetail: clients.SalesItemLineDetail{
			ServiceDate: date,
			UnitPrice:   item.UnitCost.Decimal,
			Qty:         item.Quantity,
			ItemRef:     itemRef,
			ClassRef:    classRef,
		},
	}
}

func syntheticLine(description string, amount decimal.Decimal, itemRef, classRef clients.Ref, date string) clients.InvoiceLine {
	return clients.InvoiceLine{
		Amount:      amount,
		DetailType:  "SalesItemLineDetail",
		Description: description,
		SalesItemLineDetail: clients.SalesItemLineDetail{
			ServiceDate: date,
			UnitPrice:   amount,
			Qty:         1,
			ItemRef:     itemRef,
			ClassRef:    classRef,
		},
	}
}
