package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is one observation of a product fetched from the catalog.
type ProductSnapshot struct {
	ProductID        string    `validate:"required"`
	CapturedAt       time.Time `validate:"required"`
	Href             string
	ShopName         *string
	ProductName      *string
	Price            decimal.NullDecimal // null when the price could not be determined
	AvailabilityNote *string             // out-of-stock tip shown on the page
}

// Unavailable reports whether this observation marks the product as sold out.
// A negative price is the catalog's sentinel for "unavailable"; an availability
// note alone is enough as well.
func (s ProductSnapshot) Unavailable() bool {
	return (s.Price.Valid && s.Price.Decimal.IsNegative()) || s.AvailabilityNote != nil
}

// RealPrice returns the observed price when it is an actual price (zero included).
func (s ProductSnapshot) RealPrice() decimal.NullDecimal {
	if s.Price.Valid && !s.Price.Decimal.IsNegative() {
		return s.Price
	}

	return decimal.NullDecimal{}
}

// ProductRecord is the durable per-product state.
type ProductRecord struct {
	ProductID   string
	Href        *string
	ShopName    *string
	ProductName *string
	MinPrice    decimal.NullDecimal
	Unavailable bool
	UpdatedAt   time.Time
}

// DisplayName returns the product name if known, or the id otherwise.
func (r ProductRecord) DisplayName() string {
	if r.ProductName != nil && *r.ProductName != "" {
		return *r.ProductName
	}

	return r.ProductID
}

// PriceHistoryEntry is an append-only price observation.
type PriceHistoryEntry struct {
	ProductID  string
	Price      decimal.NullDecimal
	CapturedAt time.Time
}

// SamePrice reports whether two nullable prices are equal. Two missing prices are equal.
func SamePrice(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}

	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// FetchResult is the outcome of fetching one product id.
type FetchResult struct {
	ProductID string
	Snapshot  *ProductSnapshot
	Err       error
}
