package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/invoice-reconciler/internal/database"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrDatabase = errors.New("database error")
)

// OrderRepository is the order source: it exposes the shipped, not yet
// invoiced orders together with the partner configuration the pipeline needs
type OrderRepository struct {
	db       *database.Database
	logger   logger.Logger
	excluded map[string]bool
}

// NewOrderRepository creates a new OrderRepository. Orders and mappings for
// the excluded partner codes are never returned.
func NewOrderRepository(db *database.Database, excludedCodes []string, logger logger.Logger) *OrderRepository {
	excluded := make(map[string]bool, len(excludedCodes))

	for _, code := range excludedCodes {
		excluded[code] = true
	}

	return &OrderRepository{
		db:       db,
		logger:   logger,
		excluded: excluded,
	}
}

type invoiceableOrderRow struct {
	ID                  int64           `db:"id"`
	PurchaseOrderNumber string          `db:"purchase_order_number"`
	ExternalOrderID     string          `db:"external_order_id"`
	ShippingCost        decimal.Decimal `db:"shipping_cost"`
	TrackingNumber      string          `db:"tracking_number"`
	TrackingDate        time.Time       `db:"tracking_date"`
	Address             string          `db:"address"`
	City                string          `db:"city"`
	State               string          `db:"state"`
	Country             string          `db:"country"`
	PostalCode          string          `db:"postal_code"`
	PartnerCode         string          `db:"code"`
	PartnerName         string          `db:"name"`
	FTPFolderName       string          `db:"ftp_folder_name"`
	FileFormatName      string          `db:"file_format_name"`
}

type orderItemRow struct {
	SKU      string `db:"sku"`
	Quantity int    `db:"quantity"`
}

// FetchInvoiceableOrders returns the shipped, untracked-for-invoicing orders
// grouped by trading partner, in source order within each group
func (r *OrderRepository) FetchInvoiceableOrders(ctx context.Context) ([]*models.PartnerGroup, error) {
	query := `
		SELECT
			po.id,
			po.purchase_order_number,
			po.external_order_id,
			po.shipping_cost,
			po.tracking_number,
			po.tracking_date,
			po.address,
			po.city,
			po.state,
			po.country,
			po.postal_code,
			d.code,
			d.name,
			d.ftp_folder_name,
			ff.name AS file_format_name
		FROM purchase_orders po
		JOIN dropshippers d ON po.dropshipper_id = d.id
		JOIN dropshipper_file_formats dff ON dff.dropshipper_id = d.id
		JOIN file_formats ff ON ff.id = dff.format_id
		WHERE po.tracking_number IS NOT NULL
		  AND ff.type = 'invoice'
		  AND po.is_invoiced = FALSE
		ORDER BY po.id
	`

	var rows []invoiceableOrderRow
	err := r.db.DB.SelectContext(ctx, &rows, query)

	if err != nil {
		r.logger.Error("Failed to fetch invoiceable orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	var groups []*models.PartnerGroup
	groupIndex := make(map[models.GroupKey]*models.PartnerGroup)

	for _, row := range rows {
		if r.excluded[row.PartnerCode] {
			continue
		}

		items, err := r.fetchOrderItems(ctx, row.ID)

		if err != nil {
			return nil, err
		}

		order := &models.Order{
			OrderID:             models.BuildOrderID(row.PartnerCode, row.PurchaseOrderNumber),
			PurchaseOrderNumber: row.PurchaseOrderNumber,
			ExternalOrderID:     row.ExternalOrderID,
			Shipping:            row.ShippingCost.Round(2),
			Items:               items,
			TrackingNumber:      row.TrackingNumber,
			ShipDate:            row.TrackingDate,
			Address:             row.Address,
			City:                row.City,
			State:               row.State,
			Country:             row.Country,
			PostalCode:          row.PostalCode,
			PartnerCode:         row.PartnerCode,
			PartnerName:         row.PartnerName,
		}

		key := models.GroupKey{PartnerCode: row.PartnerCode, ExportFolder: row.FTPFolderName}

		group, ok := groupIndex[key]
		if !ok {
			group = &models.PartnerGroup{Key: key, FileFormatName: row.FileFormatName}
			groupIndex[key] = group
			groups = append(groups, group)
		}

		group.Orders = append(group.Orders, order)
	}

	r.logger.Info("Fetched invoiceable orders", "orders", len(rows), "partners", len(groups))
	return groups, nil
}

func (r *OrderRepository) fetchOrderItems(ctx context.Context, purchaseOrderID int64) ([]models.LineItem, error) {
	query := `
		SELECT sku, quantity
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`

	var rows []orderItemRow
	err := r.db.DB.SelectContext(ctx, &rows, query, purchaseOrderID)

	if err != nil {
		r.logger.Error("Failed to fetch order items", "error", err, "purchaseOrderID", purchaseOrderID)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	items := make([]models.LineItem, 0, len(rows))

	for _, row := range rows {
		items = append(items, models.LineItem{SKU: row.SKU, Quantity: row.Quantity})
	}

	return items, nil
}

// FetchCSVHeaders returns the export column set per file format name,
// ordered by header position
func (r *OrderRepository) FetchCSVHeaders(ctx context.Context) (map[string][]string, error) {
	query := `
		SELECT f.name AS file_format_name, fh.header_name
		FROM file_formats f
		JOIN file_format_headers fh ON fh.format_id = f.id
		WHERE f.type = 'invoice'
		ORDER BY f.name, fh.position
	`

	type headerRow struct {
		FileFormatName string `db:"file_format_name"`
		HeaderName     string `db:"header_name"`
	}

	var rows []headerRow
	err := r.db.DB.SelectContext(ctx, &rows, query)

	if err != nil {
		r.logger.Error("Failed to fetch csv headers", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	headers := make(map[string][]string)

	for _, row := range rows {
		headers[row.FileFormatName] = append(headers[row.FileFormatName], row.HeaderName)
	}

	return headers, nil
}

// FetchVendorMapping returns the per-partner ship method, billing email and
// accounting customer id, keyed by partner display name
func (r *OrderRepository) FetchVendorMapping(ctx context.Context) (models.VendorMappings, error) {
	query := `
		SELECT code, name, ship_method, invoice_email, books_customer_id
		FROM dropshippers
	`

	type vendorRow struct {
		Code       string `db:"code"`
		Name       string `db:"name"`
		ShipMethod string `db:"ship_method"`
		Email      string `db:"invoice_email"`
		CustomerID string `db:"books_customer_id"`
	}

	var rows []vendorRow
	err := r.db.DB.SelectContext(ctx, &rows, query)

	if err != nil {
		r.logger.Error("Failed to fetch vendor mapping", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	mappings := make(models.VendorMappings, len(rows))

	for _, row := range rows {
		if r.excluded[row.Code] {
			continue
		}

		mappings[row.Name] = models.VendorMapping{
			ShipMethod: row.ShipMethod,
			Email:      row.Email,
			CustomerID: row.CustomerID,
		}
	}

	return mappings, nil
}

// PersistInvoiceStatus writes the final financial figures back to the order
// source and marks each order invoiced, in one transaction. Item prices are
// the unit costs resolved during enrichment.
func (r *OrderRepository) PersistInvoiceStatus(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	orderQuery := `
		UPDATE purchase_orders
		SET subtotal = $1,
		    shipping_cost = $2,
		    tax = $3,
		    total = $4,
		    is_invoiced = TRUE,
		    invoiced_at = $5
		WHERE purchase_order_number = $6
	`

	itemQuery := `
		UPDATE purchase_order_items
		SET price = $1
		WHERE purchase_order_id = (
			SELECT id FROM purchase_orders WHERE purchase_order_number = $2
		) AND sku = $3
	`

	now := models.GetCurrentTime()

	for _, order := range orders {
		_, err = tx.ExecContext(
			ctx,
			orderQuery,
			order.ItemSubtotal(),
			order.Shipping,
			order.Tax.Decimal,
			order.Subtotal.Decimal,
			now,
			order.PurchaseOrderNumber,
		)

		if err != nil {
			r.logger.Error("Failed to update invoice status", "error", err, "po", order.PurchaseOrderNumber)
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		for _, item := range order.Items {
			_, err = tx.ExecContext(ctx, itemQuery, item.UnitCost.Decimal, order.PurchaseOrderNumber, item.SKU)

			if err != nil {
				r.logger.Error("Failed to update item price", "error", err, "po", order.PurchaseOrderNumber, "sku", item.SKU)
				return fmt.Errorf("%w: %v", ErrDatabase, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	r.logger.Info("Persisted invoice status", "orders", len(orders))
	return nil
}
