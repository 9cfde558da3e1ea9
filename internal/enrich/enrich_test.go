package enrich

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/invoice-reconciler/internal/clients"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/apperrors"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

type fakeOrderFetcher struct {
	responses map[string]*clients.OrderResponse
	errs      map[string]error
	calls     []string
}

func (f *fakeOrderFetcher) GetOrder(ctx context.Context, externalOrderID string) (*clients.OrderResponse, error) {
	f.calls = append(f.calls, externalOrderID)

	if err, ok := f.errs[externalOrderID]; ok {
		return nil, err
	}

	if resp, ok := f.responses[externalOrderID]; ok {
		return resp, nil
	}

	return nil, apperrors.NewNotFoundError("order not found")
}

type recordingNotifier struct {
	subjects []string
	bodies   []string
}

func (r *recordingNotifier) Notify(subject, body string) error {
	r.subjects = append(r.subjects, subject)
	r.bodies = append(r.bodies, body)
	return nil
}

func newGroup(orders ...*models.Order) *models.PartnerGroup {
	return &models.PartnerGroup{
		Key:            models.GroupKey{PartnerCode: "AAG", ExportFolder: "aag_folder"},
		FileFormatName: "aag",
		Orders:         orders,
	}
}

func orderWithItems(po, externalID string, items ...models.LineItem) *models.Order {
	return &models.Order{
		OrderID:             "AAG" + po,
		PurchaseOrderNumber: po,
		ExternalOrderID:     externalID,
		PartnerCode:         "AAG",
		PartnerName:         "Auto Accessories Garage",
		Items:               items,
	}
}

func TestEnrichResolvesPricing(t *testing.T) {
	fetcher := &fakeOrderFetcher{
		responses: map[string]*clients.OrderResponse{
			"sc-1": {
				TotalInfo: clients.OrderTotals{
					Tax:        decimal.NewFromInt(5),
					GrandTotal: decimal.NewFromInt(25),
				},
				OrderItems: []clients.OrderItem{
					{SKU: "SKU1", LineTotal: decimal.NewFromInt(20)},
				},
			},
		},
	}
	notifier := &recordingNotifier{}
	stage := NewStage(fetcher, notifier, logger.NewLogger("error"))

	order := orderWithItems("A1001", "sc-1", models.LineItem{SKU: "SKU1", Quantity: 2})
	groups := stage.Enrich(context.Background(), []*models.PartnerGroup{newGroup(order)})

	require.Len(t, groups, 1)
	require.Len(t, groups[0].Orders, 1)

	enriched := groups[0].Orders[0]
	assert.True(t, enriched.Tax.Decimal.Equal(decimal.NewFromInt(5)))
	assert.True(t, enriched.Subtotal.Decimal.Equal(decimal.NewFromInt(25)))

	require.True(t, enriched.Items[0].Resolved())
	assert.True(t, enriched.Items[0].UnitCost.Decimal.Equal(decimal.NewFromInt(10)))
	assert.True(t, enriched.FullyEnriched())
	assert.Empty(t, notifier.subjects)
}

func TestEnrichDropsOrderWithUnmatchedSKU(t *testing.T) {
	fetcher := &fakeOrderFetcher{
		responses: map[string]*clients.OrderResponse{
			"sc-2": {
				TotalInfo: clients.OrderTotals{
					Tax:        decimal.NewFromInt(1),
					GrandTotal: decimal.NewFromInt(10),
				},
				OrderItems: []clients.OrderItem{
					{SKU: "OTHER", LineTotal: decimal.NewFromInt(10)},
				},
			},
		},
	}
	notifier := &recordingNotifier{}
	stage := NewStage(fetcher, notifier, logger.NewLogger("error"))

	order := orderWithItems("A1002", "sc-2", models.LineItem{SKU: "SKU2", Quantity: 1})
	groups := stage.Enrich(context.Background(), []*models.PartnerGroup{newGroup(order)})

	// A single bad line item invalidates the whole order, and the empty
	// group is pruned
	assert.Empty(t, groups)

	require.Len(t, notifier.subjects, 1)
	assert.Contains(t, notifier.subjects[0], "SKU2")
	assert.Contains(t, notifier.subjects[0], "A1002")
}

func TestEnrichDropsOrderWithZeroQuantityItem(t *testing.T) {
	fetcher := &fakeOrderFetcher{
		responses: map[string]*clients.OrderResponse{
			"sc-zero": {
				TotalInfo: clients.OrderTotals{
					Tax:        decimal.NewFromInt(5),
					GrandTotal: decimal.NewFromInt(25),
				},
				OrderItems: []clients.OrderItem{
					{SKU: "SKU1", LineTotal: decimal.NewFromInt(20)},
				},
			},
			"sc-good": {
				TotalInfo: clients.OrderTotals{
					Tax:        decimal.NewFromInt(2),
					GrandTotal: decimal.NewFromInt(12),
				},
				OrderItems: []clients.OrderItem{
					{SKU: "SKU9", LineTotal: decimal.NewFromInt(10)},
				},
			},
		},
	}
	notifier := &recordingNotifier{}
	stage := NewStage(fetcher, notifier, logger.NewLogger("error"))

	// A quantity of zero has no derivable unit cost; the order is dropped
	// instead of panicking the stage, and the rest of the batch continues
	zeroQty := orderWithItems("D1", "sc-zero", models.LineItem{SKU: "SKU1", Quantity: 0})
	good := orderWithItems("D2", "sc-good", models.LineItem{SKU: "SKU9", Quantity: 1})

	groups := stage.Enrich(context.Background(), []*models.PartnerGroup{newGroup(zeroQty, good)})

	require.Len(t, groups, 1)
	require.Len(t, groups[0].Orders, 1)
	assert.Equal(t, "D2", groups[0].Orders[0].PurchaseOrderNumber)

	require.Len(t, notifier.subjects, 1)
	assert.Contains(t, notifier.subjects[0], "SKU1")
	assert.Contains(t, notifier.subjects[0], "D1")
	assert.Contains(t, notifier.bodies[0], "No invoice was created")
}

func TestEnrichDropsOrderNotFound(t *testing.T) {
	fetcher := &fakeOrderFetcher{}
	notifier := &recordingNotifier{}
	stage := NewStage(fetcher, notifier, logger.NewLogger("error"))

	order := orderWithItems("A1003", "sc-3", models.LineItem{SKU: "SKU1", Quantity: 1})
	groups := stage.Enrich(context.Background(), []*models.PartnerGroup{newGroup(order)})

	assert.Empty(t, groups)
	require.Len(t, notifier.subjects, 1)
	assert.Contains(t, notifier.subjects[0], "A1003")
	assert.Contains(t, notifier.bodies[0], "No invoice was created")
}

func TestEnrichTransportErrorIsNonFatal(t *testing.T) {
	fetcher := &fakeOrderFetcher{
		errs: map[string]error{
			"sc-bad": apperrors.NewTransportError("connection reset"),
		},
		responses: map[string]*clients.OrderResponse{
			"sc-good": {
				TotalInfo: clients.OrderTotals{
					Tax:        decimal.NewFromInt(2),
					GrandTotal: decimal.NewFromInt(12),
				},
				OrderItems: []clients.OrderItem{
					{SKU: "SKU9", LineTotal: decimal.NewFromInt(10)},
				},
			},
		},
	}
	notifier := &recordingNotifier{}
	stage := NewStage(fetcher, notifier, logger.NewLogger("error"))

	bad := orderWithItems("B1", "sc-bad", models.LineItem{SKU: "SKU1", Quantity: 1})
	good := orderWithItems("B2", "sc-good", models.LineItem{SKU: "SKU9", Quantity: 1})

	groups := stage.Enrich(context.Background(), []*models.PartnerGroup{newGroup(bad, good)})

	// The failing order is excluded, the rest of the batch continues
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Orders, 1)
	assert.Equal(t, "B2", groups[0].Orders[0].PurchaseOrderNumber)
	assert.Len(t, notifier.subjects, 1)
}

func TestEnrichKeepsSourceOrder(t *testing.T) {
	fetcher := &fakeOrderFetcher{
		responses: map[string]*clients.OrderResponse{
			"sc-1": {OrderItems: []clients.OrderItem{{SKU: "A", LineTotal: decimal.NewFromInt(5)}}},
			"sc-2": {OrderItems: []clients.OrderItem{{SKU: "A", LineTotal: decimal.NewFromInt(5)}}},
		},
	}
	stage := NewStage(fetcher, &recordingNotifier{}, logger.NewLogger("error"))

	first := orderWithItems("C1", "sc-1", models.LineItem{SKU: "A", Quantity: 1})
	second := orderWithItems("C2", "sc-2", models.LineItem{SKU: "A", Quantity: 1})

	groups := stage.Enrich(context.Background(), []*models.PartnerGroup{newGroup(first, second)})

	require.Len(t, groups, 1)
	require.Len(t, groups[0].Orders, 2)
	assert.Equal(t, "C1", groups[0].Orders[0].PurchaseOrderNumber)
	assert.Equal(t, "C2", groups[0].Orders[1].PurchaseOrderNumber)
	assert.Equal(t, []string{"sc-1", "sc-2"}, fetcher.calls)
}
