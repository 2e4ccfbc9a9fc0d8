package data

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dcl-forecast/internal/model"
)

// timeLayouts are the timestamp shapes seen across NESO datasets.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// NormaliseFields returns copies of records with every key passed through fn.
func NormaliseFields(records []model.Record, fn func(string) string) []model.Record {
	out := make([]model.Record, len(records))
	for i, r := range records {
		n := make(model.Record, len(r))
		for k, v := range r {
			n[fn(k)] = v
		}
		out[i] = n
	}
	return out
}

// ParseNumber reads a numeric field. Null and empty values are missing, not errors.
func ParseNumber(r model.Record, field string) (float64, error) {
	v, ok := r[field]
	if !ok {
		return 0, fmt.Errorf("field %q not present", field)
	}
	var text string
	switch x := v.(type) {
	case nil:
		return model.Missing(), nil
	case json.Number:
		text = x.String()
	case string:
		text = strings.TrimSpace(x)
		if text == "" {
			return model.Missing(), nil
		}
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("field %q: unsupported type %T", field, v)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// ParseTime reads a timestamp field as a wall-clock value in UTC.
func ParseTime(r model.Record, field string) (time.Time, error) {
	v, ok := r[field]
	if !ok {
		return time.Time{}, fmt.Errorf("field %q not present", field)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q: expected string, got %T", field, v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("field %q: unrecognised timestamp %q", field, s)
}

// ParseString reads a text field.
func ParseString(r model.Record, field string) (string, error) {
	v, ok := r[field]
	if !ok {
		return "", fmt.Errorf("field %q not present", field)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("field %q: expected string, got %T", field, v)
}

// ParseClock reads an HHMM integer field such as CP_ST_TIME (e.g. 1630) into an
// offset from midnight.
func ParseClock(r model.Record, field string) (time.Duration, error) {
	v, err := ParseNumber(r, field)
	if err != nil {
		return 0, err
	}
	if model.IsMissing(v) {
		return 0, fmt.Errorf("field %q is empty", field)
	}
	hhmm, err := strconv.Atoi(strconv.FormatFloat(v, 'f', 0, 64))
	if err != nil || hhmm < 0 {
		return 0, fmt.Errorf("field %q: invalid clock value %v", field, v)
	}
	h, m := hhmm/100, hhmm%100
	if h > 24 || m >= 60 {
		return 0, fmt.Errorf("field %q: invalid clock value %04d", field, hhmm)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// ParseAuctionRecords decodes EAC auction rows whose keys are already snake_case.
func ParseAuctionRecords(records []model.Record) ([]model.AuctionRecord, error) {
	out := make([]model.AuctionRecord, 0, len(records))
	for i, r := range records {
		var (
			a   model.AuctionRecord
			err error
		)
		if a.DeliveryStart, err = ParseTime(r, "delivery_start"); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if a.DeliveryEnd, err = ParseTime(r, "delivery_end"); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if a.ServiceType, err = ParseString(r, "service_type"); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if a.Product, err = ParseString(r, "auction_product"); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if a.ClearingPrice, err = ParseNumber(r, "clearing_price"); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, ok := r["cleared_volume"]; ok {
			if a.ClearedVolume, err = ParseNumber(r, "cleared_volume"); err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
		} else {
			a.ClearedVolume = model.Missing()
		}
		out = append(out, a)
	}
	return out, nil
}
