package models

import "github.com/shopspring/decimal"

// ReconciliationPlan is the set of writes required to bring stored state
// in line with a batch of observations.
type ReconciliationPlan struct {
	Inserts        []ProductRecord
	Updates        []ProductRecord
	HistoryAppends []PriceHistoryEntry
	Drops          []PriceDrop
}

// IsEmpty reports whether applying the plan would write nothing.
func (p ReconciliationPlan) IsEmpty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0 && len(p.HistoryAppends) == 0
}

// Records returns inserts followed by updates.
func (p ReconciliationPlan) Records() []ProductRecord {
	records := make([]ProductRecord, 0, len(p.Inserts)+len(p.Updates))
	records = append(records, p.Inserts...)

	return append(records, p.Updates...)
}

// PriceDrop describes an existing product whose running minimum went down.
type PriceDrop struct {
	ProductID   string
	ProductName string
	Href        string
	Previous    decimal.Decimal
	Current     decimal.Decimal
}
