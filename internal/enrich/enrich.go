package enrich

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/invoice-reconciler/internal/clients"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/internal/notify"
	"github.com/vaidashi/invoice-reconciler/pkg/apperrors"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// OrderFetcher fetches the authoritative financial record for an order
type OrderFetcher interface {
	GetOrder(ctx context.Context, externalOrderID string) (*clients.OrderResponse, error)
}

// Stage resolves authoritative pricing for each order. Orders that cannot be
// fully resolved are excluded; partial enrichment is never a terminal state.
type Stage struct {
	orders   OrderFetcher
	notifier notify.Notifier
	logger   logger.Logger
}

// NewStage creates a new enrichment stage
func NewStage(orders OrderFetcher, notifier notify.Notifier, logger logger.Logger) *Stage {
	return &Stage{
		orders:   orders,
		notifier: notifier,
		logger:   logger,
	}
}

// Enrich returns a new group slice in which every surviving order carries
// order-level tax and subtotal and a resolved unit cost on every line item.
// Orders that fail lookup or SKU matching are dropped with a notification;
// groups left empty are pruned. Failures never abort the stage.
func (s *Stage) Enrich(ctx context.Context, groups []*models.PartnerGroup) []*models.PartnerGroup {
	enriched := make([]*models.PartnerGroup, 0, len(groups))

	for _, group := range groups {
		kept := make([]*models.Order, 0, len(group.Orders))

		for _, order := range group.Orders {
			if s.enrichOrder(ctx, order) {
				kept = append(kept, order)
			}
		}

		if len(kept) == 0 {
			s.logger.Info("Pruning partner group with no enrichable orders",
				"partner", group.Key.PartnerCode)
			continue
		}

		enriched = append(enriched, &models.PartnerGroup{
			Key:            group.Key,
			FileFormatName: group.FileFormatName,
			Orders:         kept,
		})
	}

	return enriched
}

func (s *Stage) enrichOrder(ctx context.Context, order *models.Order) bool {
	response, err := s.orders.GetOrder(ctx, order.ExternalOrderID)

	if err != nil {
		s.logger.Warn("Dropping order that could not be fetched",
			"po", order.PurchaseOrderNumber,
			"externalOrderID", order.ExternalOrderID,
			"error", err)

		if apperrors.IsNotFound(err) {
			notify.BestEffort(s.notifier, s.logger,
				fmt.Sprintf("Order %s not found in the order-management system", order.PurchaseOrderNumber),
				fmt.Sprintf("The API was not able to retrieve %s using the external order id %s. No invoice was created.",
					order.PurchaseOrderNumber, order.ExternalOrderID))
		} else {
			notify.BestEffort(s.notifier, s.logger,
				fmt.Sprintf("Unable to get price data for order %s", order.PurchaseOrderNumber),
				fmt.Sprintf("An unexpected error occurred while fetching %s. No invoice was created.\nError: %v",
					order.PurchaseOrderNumber, err))
		}

		return false
	}

	order.Tax = decimal.NewNullDecimal(response.TotalInfo.Tax)
	order.Subtotal = decimal.NewNullDecimal(response.TotalInfo.GrandTotal)

	for i := range order.Items {
		if order.Items[i].Quantity <= 0 {
			s.logger.Warn("Dropping order with non-positive item quantity",
				"po", order.PurchaseOrderNumber,
				"sku", order.Items[i].SKU,
				"quantity", order.Items[i].Quantity)

			notify.BestEffort(s.notifier, s.logger,
				fmt.Sprintf("Item %s on order %s has an invalid quantity",
					order.Items[i].SKU, order.PurchaseOrderNumber),
				fmt.Sprintf("The order has a line item with quantity %d, so a unit cost cannot be derived. No invoice was created.",
					order.Items[i].Quantity))

			return false
		}

		if !s.resolveItem(&order.Items[i], response.OrderItems) {
			s.logger.Warn("Dropping order with unmatched SKU",
				"po", order.PurchaseOrderNumber,
				"sku", order.Items[i].SKU)

			notify.BestEffort(s.notifier, s.logger,
				fmt.Sprintf("Item %s on order %s was not found in the order-management system",
					order.Items[i].SKU, order.PurchaseOrderNumber),
				"There is a mismatch between the SKUs the order has in the database and the ones the order-management system has. No invoice was created.")

			return false
		}
	}

	return true
}

// resolveItem assigns the unit cost from the first product whose SKU
// matches. A single unmatched item invalidates the whole order.
func (s *Stage) resolveItem(item *models.LineItem, products []clients.OrderItem) bool {
	for _, product := range products {
		if product.SKU == item.SKU {
			qty := decimal.NewFromInt(int64(item.Quantity))
			item.UnitCost = decimal.NewNullDecimal(product.LineTotal.Div(qty))
			return true
		}
	}

	return false
}
