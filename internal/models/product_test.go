package models_test

import (
	"testing"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProductSnapshot_Availability(t *testing.T) {
	note := "temporarily unavailable"

	testCases := []struct {
		name            string
		snapshot        models.ProductSnapshot
		wantUnavailable bool
		wantReal        bool
	}{
		{name: "no price", snapshot: models.ProductSnapshot{}, wantUnavailable: false, wantReal: false},
		{
			name:            "sentinel price",
			snapshot:        models.ProductSnapshot{Price: decimal.NewNullDecimal(decimal.NewFromInt(-1))},
			wantUnavailable: true,
			wantReal:        false,
		},
		{
			name:     "zero price",
			snapshot: models.ProductSnapshot{Price: decimal.NewNullDecimal(decimal.Zero)},
			wantReal: true,
		},
		{
			name: "note only",
			snapshot: models.ProductSnapshot{
				Price:            decimal.NewNullDecimal(decimal.NewFromInt(12)),
				AvailabilityNote: &note,
			},
			wantUnavailable: true,
			wantReal:        true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantUnavailable, tc.snapshot.Unavailable())
			assert.Equal(t, tc.wantReal, tc.snapshot.RealPrice().Valid)
		})
	}
}

func TestProductRecord_DisplayName(t *testing.T) {
	name := "Phone"

	assert.Equal(t, "Phone", models.ProductRecord{ProductID: "1", ProductName: &name}.DisplayName())
	assert.Equal(t, "1", models.ProductRecord{ProductID: "1"}.DisplayName())
}

func TestSamePrice(t *testing.T) {
	tests := []struct {
		name string
		a, b decimal.NullDecimal
		want bool
	}{
		{name: "both missing", want: true},
		{name: "one missing", a: decimal.NewNullDecimal(decimal.NewFromInt(1)), want: false},
		{
			name: "equal with different scale",
			a:    decimal.NewNullDecimal(decimal.RequireFromString("1999.00")),
			b:    decimal.NewNullDecimal(decimal.RequireFromString("1999")),
			want: true,
		},
		{
			name: "different",
			a:    decimal.NewNullDecimal(decimal.RequireFromString("0")),
			b:    decimal.NewNullDecimal(decimal.RequireFromString("0.01")),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.SamePrice(tt.a, tt.b))
			assert.Equal(t, tt.want, models.SamePrice(tt.b, tt.a))
		})
	}
}

func TestRunState_String(t *testing.T) {
	assert.Equal(t, "committing", models.StateCommitting.String())
	assert.Equal(t, "unknown", models.RunState(42).String())
}
