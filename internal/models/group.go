package models

// GroupKey identifies a partner group: one trading partner and the folder
// its export files land in
type GroupKey struct {
	PartnerCode  string
	ExportFolder string
}

// PartnerGroup is a batch of orders for one trading partner, plus the name
// of the export schema its files use
type PartnerGroup struct {
	Key            GroupKey
	FileFormatName string
	Orders         []*Order
}

// VendorMapping is the per-partner configuration needed to build an invoice
type VendorMapping struct {
	ShipMethod string
	Email      string
	CustomerID string
}

// VendorMappings maps a partner display name to its mapping
type VendorMappings map[string]VendorMapping
