package efa

import (
	"strconv"
	"strings"
	"unicode"
)

// Column names are part of the contract with the model-training side, so every
// engineered name goes through one of these functions.

// StatColumn names an aggregated column, e.g. "forecastdemand_min".
func StatColumn(source, stat string) string {
	return strings.ToLower(source + "_" + stat)
}

// AuctionColumn names a pivoted auction column, e.g. "dcl_price".
func AuctionColumn(product, kind string) string {
	return strings.ToLower(product + "_" + kind)
}

// LagColumn names a lagged column, e.g. "dcl_price_lag_6".
func LagColumn(parameter string, lag int) string {
	return parameter + "_lag_" + strconv.Itoa(lag)
}

// SnakeCase converts a camelCase API field name to snake_case:
// "deliveryStart" -> "delivery_start". Runs of capitals are split per letter,
// so "EFA" -> "e_f_a".
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// FieldName normalises a free-text column header: lower case, spaces to
// underscores, leading underscores and slashes removed.
// "National Surplus" -> "national_surplus", "_id" -> "id".
func FieldName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.TrimLeft(s, "_")
	return strings.ReplaceAll(s, "/", "")
}
