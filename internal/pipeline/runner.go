package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vaidashi/invoice-reconciler/internal/export"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/internal/notify"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// OrderSource is the repository contract the run driver consumes
type OrderSource interface {
	FetchInvoiceableOrders(ctx context.Context) ([]*models.PartnerGroup, error)
	FetchCSVHeaders(ctx context.Context) (map[string][]string, error)
	FetchVendorMapping(ctx context.Context) (models.VendorMappings, error)
	PersistInvoiceStatus(ctx context.Context, orders []*models.Order) error
}

// Enricher resolves authoritative pricing for the grouped orders
type Enricher interface {
	Enrich(ctx context.Context, groups []*models.PartnerGroup) []*models.PartnerGroup
}

// TableWriter serializes one partner's export table
type TableWriter interface {
	Save(a *export.Assembler, folder string) (string, error)
}

// FileUploader pushes export files to the transfer channel
type FileUploader interface {
	Upload(ctx context.Context, paths []string)
}

// Runner drives one batch run end to end: fetch, enrich, reconcile, export,
// upload, report. A returned error is fatal to the run; per-order failures
// are absorbed into the outcome buckets instead.
type Runner struct {
	runID        string
	source       OrderSource
	enricher     Enricher
	orchestrator *Orchestrator
	writer       TableWriter
	uploader     FileUploader
	notifier     notify.Notifier
	logger       logger.Logger
}

// NewRunner creates a new Runner
func NewRunner(
	runID string,
	source OrderSource,
	enricher Enricher,
	orchestrator *Orchestrator,
	writer TableWriter,
	uploader FileUploader,
	notifier notify.Notifier,
	logger logger.Logger,
) *Runner {
	return &Runner{
		runID:        runID,
		source:       source,
		enricher:     enricher,
		orchestrator: orchestrator,
		writer:       writer,
		uploader:     uploader,
		notifier:     notifier,
		logger:       logger,
	}
}

// Run executes one reconciliation batch
func (r *Runner) Run(ctx context.Context) error {
	headers, err := r.source.FetchCSVHeaders(ctx)

	if err != nil {
		return fmt.Errorf("failed to fetch export headers: %w", err)
	}

	mappings, err := r.source.FetchVendorMapping(ctx)

	if err != nil {
		return fmt.Errorf("failed to fetch vendor mapping: %w", err)
	}

	groups, err := r.source.FetchInvoiceableOrders(ctx)

	if err != nil {
		return fmt.Errorf("failed to fetch invoiceable orders: %w", err)
	}

	groups = r.enricher.Enrich(ctx, groups)

	if len(groups) == 0 {
		r.logger.Info("No orders ready to be invoiced", "runID", r.runID)
		notify.BestEffort(r.notifier, r.logger,
			"Invoicing ran successfully",
			"There are no orders to invoice.")
		return nil
	}

	outcomes := models.NewRunOutcomes()
	var filePaths []string

	for _, group := range groups {
		r.logger.Info("Reconciling partner group",
			"runID", r.runID,
			"partner", group.Key.PartnerCode,
			"orders", len(group.Orders))

		assembler := export.NewAssembler(headers, group, r.logger)
		r.orchestrator.ReconcileGroup(ctx, group, mappings, assembler, outcomes)

		path, err := r.writer.Save(assembler, group.Key.ExportFolder)

		if err != nil {
			return fmt.Errorf("failed to write export file for %s: %w", group.Key.PartnerCode, err)
		}

		if path != "" {
			filePaths = append(filePaths, path)
		}
	}

	r.uploader.Upload(ctx, filePaths)

	if outcomes.HasExceptions() {
		notify.BestEffort(r.notifier, r.logger,
			"Invoicing exceptions report", composeExceptionReport(outcomes))
	}

	if err := r.source.PersistInvoiceStatus(ctx, outcomes.Invoiced); err != nil {
		return fmt.Errorf("failed to persist invoice status: %w", err)
	}

	notify.BestEffort(r.notifier, r.logger,
		"Invoicing ran successfully", r.composeSummary(outcomes, len(filePaths)))

	return nil
}

func (r *Runner) composeSummary(outcomes *models.RunOutcomes, files int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s completed.\n", r.runID)
	fmt.Fprintf(&b, "Orders invoiced or confirmed: %d\n", len(outcomes.Invoiced))
	fmt.Fprintf(&b, "Partners already invoiced: %d\n", len(outcomes.AlreadyInvoiced))
	fmt.Fprintf(&b, "Partners with failures: %d\n", len(outcomes.UnableToInvoice))
	fmt.Fprintf(&b, "Export files written: %d\n", files)

	return b.String()
}

func composeExceptionReport(outcomes *models.RunOutcomes) string {
	var b strings.Builder

	if len(outcomes.UnableToInvoice) > 0 {
		b.WriteString("The following orders could not be invoiced:\n")
		writeBucket(&b, outcomes.UnableToInvoice)
	}

	if len(outcomes.AlreadyInvoiced) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("The following orders were already invoiced and were skipped:\n")
		writeBucket(&b, outcomes.AlreadyInvoiced)
	}

	return b.String()
}

func writeBucket(b *strings.Builder, bucket map[string][]string) {
	partners := make([]string, 0, len(bucket))

	for partner := range bucket {
		partners = append(partners, partner)
	}

	sort.Strings(partners)

	for _, partner := range partners {
		fmt.Fprintf(b, "\t%s: %s\n", partner, strings.Join(bucket[partner], ", "))
	}
}
