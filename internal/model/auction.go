package model

import "time"

// AuctionRecord is one cleared auction result from the NESO EAC datasets.
//
// DeliveryStart and DeliveryEnd are UTC instants as published; the unstacker
// converts them to civil time.
type AuctionRecord struct {
	DeliveryStart time.Time
	DeliveryEnd   time.Time
	ServiceType   string // "Response", "Balancing Reserve"
	Product       string // e.g. "DCL", "DRH", "PBR"

	// Prices in GBP/MW/h, volumes in MW.
	ClearingPrice float64
	ClearedVolume float64
}

// Duration is the delivery length of the auctioned product.
func (r AuctionRecord) Duration() time.Duration {
	return r.DeliveryEnd.Sub(r.DeliveryStart)
}

// Record is one raw row from the NESO datastore, keyed by normalised field name.
type Record map[string]any
