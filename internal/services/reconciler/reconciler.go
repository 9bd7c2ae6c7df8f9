// Package reconciler turns fresh product observations and previously stored
// state into the writes needed to keep price history and running minimums
// consistent. It performs no I/O.
package reconciler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidObservation is returned when an observation breaks the caller contract.
var ErrInvalidObservation = errors.New("invalid observation")

var validate = validator.New()

// Reconcile computes the plan for a batch of observations against previous state.
//
// When the same product id is observed more than once, the last observation wins.
// Products present in previous but not observed are left untouched.
func Reconcile(
	previous map[string]models.ProductRecord,
	observations []models.ProductSnapshot,
) (models.ReconciliationPlan, error) {
	const opn = "reconciler.Reconcile"

	for idx, obs := range observations {
		if err := validate.Struct(obs); err != nil {
			return models.ReconciliationPlan{}, fmt.Errorf(
				"%s: observation %d (product %q): %w: %w", opn, idx, obs.ProductID, ErrInvalidObservation, err,
			)
		}
	}

	latest := make(map[string]models.ProductSnapshot, len(observations))
	for _, obs := range observations {
		latest[obs.ProductID] = obs
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var plan models.ReconciliationPlan
	for _, id := range ids {
		obs := latest[id]

		plan.HistoryAppends = append(plan.HistoryAppends, models.PriceHistoryEntry{
			ProductID:  id,
			Price:      obs.Price,
			CapturedAt: obs.CapturedAt,
		})

		prior, found := previous[id]
		if !found {
			plan.Inserts = append(plan.Inserts, newRecord(obs))
			continue
		}

		next, changed := applyObservation(prior, obs)
		if !changed {
			continue
		}
		plan.Updates = append(plan.Updates, next)

		if prior.MinPrice.Valid && next.MinPrice.Decimal.LessThan(prior.MinPrice.Decimal) {
			plan.Drops = append(plan.Drops, models.PriceDrop{
				ProductID:   id,
				ProductName: next.DisplayName(),
				Href:        derefString(next.Href),
				Previous:    prior.MinPrice.Decimal,
				Current:     next.MinPrice.Decimal,
			})
		}
	}

	return plan, nil
}

// MinRealPrice folds a price history into its running minimum, ignoring
// missing and sentinel prices.
func MinRealPrice(history []models.PriceHistoryEntry) decimal.NullDecimal {
	var minPrice decimal.NullDecimal
	for _, entry := range history {
		minPrice = lowerMin(minPrice, realPrice(entry.Price))
	}

	return minPrice
}

func newRecord(obs models.ProductSnapshot) models.ProductRecord {
	record := models.ProductRecord{
		ProductID:   obs.ProductID,
		ShopName:    obs.ShopName,
		ProductName: obs.ProductName,
		MinPrice:    obs.RealPrice(),
		Unavailable: obs.Unavailable(),
		UpdatedAt:   obs.CapturedAt,
	}
	if obs.Href != "" {
		href := obs.Href
		record.Href = &href
	}

	return record
}

// applyObservation returns the record updated by obs and whether anything changed.
func applyObservation(prior models.ProductRecord, obs models.ProductSnapshot) (models.ProductRecord, bool) {
	next := prior
	next.MinPrice = lowerMin(prior.MinPrice, obs.RealPrice())
	next.Unavailable = obs.Unavailable()

	changed := !models.SamePrice(prior.MinPrice, next.MinPrice) || prior.Unavailable != next.Unavailable

	var hrefChanged, shopChanged, nameChanged bool
	if obs.Href != "" {
		href := obs.Href
		next.Href, hrefChanged = mergeString(prior.Href, &href)
	}
	next.ShopName, shopChanged = mergeString(prior.ShopName, obs.ShopName)
	next.ProductName, nameChanged = mergeString(prior.ProductName, obs.ProductName)

	changed = changed || hrefChanged || shopChanged || nameChanged
	if changed {
		next.UpdatedAt = obs.CapturedAt
	}

	return next, changed
}

// lowerMin returns the smaller of the current minimum and a candidate real price.
func lowerMin(current, candidate decimal.NullDecimal) decimal.NullDecimal {
	if !candidate.Valid {
		return current
	}
	if !current.Valid || candidate.Decimal.LessThan(current.Decimal) {
		return candidate
	}

	return current
}

func realPrice(price decimal.NullDecimal) decimal.NullDecimal {
	if price.Valid && !price.Decimal.IsNegative() {
		return price
	}

	return decimal.NullDecimal{}
}

// mergeString keeps the prior value when nothing was observed.
func mergeString(prior, observed *string) (*string, bool) {
	if observed == nil {
		return prior, false
	}
	if prior != nil && *prior == *observed {
		return prior, false
	}

	return observed, true
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
