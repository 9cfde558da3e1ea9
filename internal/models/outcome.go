package models

// Outcome is the terminal classification of one order within a run. Orders
// excluded during enrichment never reach classification.
type Outcome int

const (
	OutcomeInvoiced Outcome = iota
	OutcomeAlreadyInvoiced
	OutcomeUnableToInvoice
)

// String returns a readable outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeInvoiced:
		return "invoiced"
	case OutcomeAlreadyInvoiced:
		return "already_invoiced"
	case OutcomeUnableToInvoice:
		return "unable_to_invoice"
	default:
		return "unknown"
	}
}

// RunOutcomes accumulates the three outcome buckets for one run. Invoiced
// keeps full order records because status reporting needs the enriched
// financial values; the other two buckets only need the purchase order
// numbers for the error report.
type RunOutcomes struct {
	Invoiced        []*Order
	AlreadyInvoiced map[string][]string
	UnableToInvoice map[string][]string
}

// NewRunOutcomes creates empty outcome buckets for a run
func NewRunOutcomes() *RunOutcomes {
	return &RunOutcomes{
		AlreadyInvoiced: make(map[string][]string),
		UnableToInvoice: make(map[string][]string),
	}
}

// Record classifies one order into its terminal bucket. Already-invoiced
// orders also join the invoiced list because their status still needs to be
// reported back to the order source.
func (r *RunOutcomes) Record(order *Order, outcome Outcome) {
	switch outcome {
	case OutcomeInvoiced:
		r.Invoiced = append(r.Invoiced, order)
	case OutcomeAlreadyInvoiced:
		r.AlreadyInvoiced[order.PartnerCode] = append(
			r.AlreadyInvoiced[order.PartnerCode], order.PurchaseOrderNumber)
		r.Invoiced = append(r.Invoiced, order)
	case OutcomeUnableToInvoice:
		r.UnableToInvoice[order.PartnerCode] = append(
			r.UnableToInvoice[order.PartnerCode], order.PurchaseOrderNumber)
	}
}

// HasExceptions reports whether any order needs a mention in the error report
func (r *RunOutcomes) HasExceptions() bool {
	return len(r.AlreadyInvoiced) > 0 || len(r.UnableToInvoice) > 0
}
