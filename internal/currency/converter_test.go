package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsdevblog/panel-ledger/internal/domain"
)

func testTable() Table {
	return NewTable([]Rate{
		{Code: "EUR", Rate: decimal.RequireFromString("0.9")},
		{Code: "RUB", Rate: decimal.RequireFromString("92.5")},
		{Code: "BDT", Rate: decimal.RequireFromString("109.75")},
	})
}

func TestConvert(t *testing.T) {
	table := testTable()

	cases := []struct {
		name   string
		amount string
		from   string
		to     string
		want   string
	}{
		{
			name:   "same currency",
			amount: "10.55",
			from:   "EUR",
			to:     "EUR",
			want:   "10.55",
		}, {
			name:   "usd to other",
			amount: "100",
			from:   "USD",
			to:     "RUB",
			want:   "9250",
		}, {
			name:   "other to usd",
			amount: "9250",
			from:   "RUB",
			to:     "USD",
			want:   "100",
		}, {
			name:   "cross via usd",
			amount: "92.5",
			from:   "RUB",
			to:     "EUR",
			want:   "0.9",
		}, {
			name:   "case insensitive codes",
			amount: "1",
			from:   "usd",
			to:     "eur",
			want:   "0.9",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Convert(decimal.RequireFromString(tc.amount), tc.from, tc.to, table)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tc.want).Equal(got),
				"want %s, got %s", tc.want, got)
		})
	}
}

func TestConvert_MissingRate(t *testing.T) {
	table := testTable()
	amount := decimal.RequireFromString("42.42")

	// сумма возвращается как есть, а не нулем.
	got, err := Convert(amount, "USD", "XXX", table)
	require.ErrorIs(t, err, domain.ErrMissingRate)
	assert.True(t, amount.Equal(got))

	got, err = Convert(amount, "XXX", "EUR", table)
	require.ErrorIs(t, err, domain.ErrMissingRate)
	assert.True(t, amount.Equal(got))
}

// TestConvert_RoundTrip проверяет что конвертация туда-обратно возвращает
// исходную сумму в пределах допуска округления.
func TestConvert_RoundTrip(t *testing.T) {
	table := testTable()
	codes := []string{"USD", "EUR", "RUB", "BDT"}
	amount := decimal.RequireFromString("123.45")
	tolerance := decimal.RequireFromString("0.01")

	for _, from := range codes {
		for _, to := range codes {
			converted, err := Convert(amount, from, to, table)
			require.NoError(t, err)
			back, backErr := Convert(converted, to, from, table)
			require.NoError(t, backErr)

			drift := back.Sub(amount).Abs()
			assert.True(t, drift.LessThanOrEqual(tolerance),
				"%s -> %s -> %s drift %s", from, to, from, drift)
		}
	}
}

func TestNewTable(t *testing.T) {
	table := NewTable([]Rate{
		{Code: "eur", Rate: decimal.RequireFromString("0.9")},
		{Code: "BAD", Rate: decimal.Zero},
		{Code: "NEG", Rate: decimal.RequireFromString("-1")},
	})

	assert.True(t, table["USD"].Equal(decimal.NewFromInt(1)))
	_, hasEUR := table["EUR"]
	assert.True(t, hasEUR)
	_, hasBad := table["BAD"]
	assert.False(t, hasBad)
	_, hasNeg := table["NEG"]
	assert.False(t, hasNeg)
}
