package features

import (
	"errors"
	"fmt"
	"sort"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
)

// ValueKind selects which auction value is pivoted into columns.
type ValueKind string

const (
	KindPrice  ValueKind = "price"
	KindVolume ValueKind = "volume"
)

// ErrUnsupportedValueKind is returned for a value kind other than price or volume.
// Unstack still returns an empty frame alongside it so callers can carry on.
var ErrUnsupportedValueKind = errors.New("unsupported auction value kind")

// AuctionColumns returns the pivoted column names for products.
func AuctionColumns(products []string, kind ValueKind) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = efa.AuctionColumn(p, string(kind))
	}
	return out
}

// Unstack pivots long-format auction records into one column per product,
// indexed by civil delivery start.
//
// Records sharing (delivery start, product) after civil conversion are
// deduplicated keeping the first one seen. Product columns are sorted by name
// and the index ascends.
func Unstack(records []model.AuctionRecord, kind ValueKind, clock *efa.Clock) (*model.Frame, error) {
	var pick func(model.AuctionRecord) float64
	switch kind {
	case KindPrice:
		pick = func(r model.AuctionRecord) float64 { return r.ClearingPrice }
	case KindVolume:
		pick = func(r model.AuctionRecord) float64 { return r.ClearedVolume }
	default:
		return model.Empty(), fmt.Errorf("%w: %q (expected %q or %q)", ErrUnsupportedValueKind, kind, KindPrice, KindVolume)
	}
	if len(records) == 0 {
		return model.Empty(), nil
	}

	type key struct {
		start   int64
		product string
	}
	seen := make(map[key]struct{}, len(records))
	byProduct := map[string][]model.Point{}
	for _, r := range records {
		start := clock.ToCivil(r.DeliveryStart)
		k := key{start: start.UnixNano(), product: r.Product}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		byProduct[r.Product] = append(byProduct[r.Product], model.Point{Time: start, Value: pick(r)})
	}

	products := make([]string, 0, len(byProduct))
	for p := range byProduct {
		products = append(products, p)
	}
	sort.Strings(products)

	series := make([]model.Series, 0, len(products))
	for _, p := range products {
		series = append(series, model.Series{Name: efa.AuctionColumn(p, string(kind)), Points: byProduct[p]})
	}
	return model.FromSeries(false, series...), nil
}

