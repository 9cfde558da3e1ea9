package pipeline

import (
	"context"

	"github.com/vaidashi/invoice-reconciler/internal/clients"
	"github.com/vaidashi/invoice-reconciler/internal/export"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// InvoiceBuilder is the slice of the invoice builder the orchestrator drives
type InvoiceBuilder interface {
	CheckExists(ctx context.Context, orderID string) *clients.Invoice
	Create(ctx context.Context, order *models.Order, mappings models.VendorMappings) bool
	Delete(ctx context.Context, inv *clients.Invoice) bool
}

// Orchestrator classifies each order of a partner group into one of the
// three terminal outcomes and keeps the accounting service and the export
// table from diverging
type Orchestrator struct {
	builder InvoiceBuilder
	logger  logger.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(builder InvoiceBuilder, logger logger.Logger) *Orchestrator {
	return &Orchestrator{
		builder: builder,
		logger:  logger,
	}
}

// ReconcileGroup processes one partner group in source order. Per-order
// failures are recorded, never raised; only the outcome buckets and the
// assembler's rows leave this method.
func (o *Orchestrator) ReconcileGroup(
	ctx context.Context,
	group *models.PartnerGroup,
	mappings models.VendorMappings,
	assembler *export.Assembler,
	outcomes *models.RunOutcomes,
) {
	for _, order := range group.Orders {
		o.reconcileOrder(ctx, order, mappings, assembler, outcomes)
	}
}

func (o *Orchestrator) reconcileOrder(
	ctx context.Context,
	order *models.Order,
	mappings models.VendorMappings,
	assembler *export.Assembler,
	outcomes *models.RunOutcomes,
) {
	// Idempotency probe: a previous run may already have invoiced this order
	if existing := o.builder.CheckExists(ctx, order.OrderID); existing != nil {
		o.logger.Info("Order already invoiced", "orderID", order.OrderID)
		outcomes.Record(order, models.OutcomeAlreadyInvoiced)
		return
	}

	if !o.builder.Create(ctx, order, mappings) {
		outcomes.Record(order, models.OutcomeUnableToInvoice)
		return
	}

	if !assembler.Populate(order) {
		// Compensation: the invoice exists but its export row cannot be
		// emitted, so the invoice has to go
		o.logger.Warn("Export population failed, deleting just-created invoice",
			"orderID", order.OrderID)

		justCreated := o.builder.CheckExists(ctx, order.OrderID)

		if !o.builder.Delete(ctx, justCreated) {
			o.logger.Error("Compensating delete failed, invoice may be orphaned",
				"orderID", order.OrderID)
		}

		outcomes.Record(order, models.OutcomeUnableToInvoice)
		return
	}

	outcomes.Record(order, models.OutcomeInvoiced)
}
