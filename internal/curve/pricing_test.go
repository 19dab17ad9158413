package curve

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice_BuyRegression(t *testing.T) {
	r := Reserves{Token: 1_000_000_000, Lamport: 30_000_000_000}

	q, err := Price(r, 1_000_000_000, Buy, 1.0)
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000_000), q.Fee)
	assert.Equal(t, uint64(990_000_000), q.AmountInAfterFee)
	// 1e9 - ceil(3e19 / 30_990_000_000) = 1e9 - 968_054_212
	assert.Equal(t, uint64(31_945_788), q.AmountOut)
}

func TestPrice_SellAfterBuyLosesValue(t *testing.T) {
	start := Reserves{Token: 1_000_000_000, Lamport: 30_000_000_000}

	buy, err := Price(start, 1_000_000_000, Buy, 1.0)
	require.NoError(t, err)

	afterBuy := Reserves{
		Token:   start.Token - buy.AmountOut,
		Lamport: start.Lamport + buy.AmountInAfterFee,
	}
	sell, err := Price(afterBuy, buy.AmountOut, Sell, 1.0)
	require.NoError(t, err)

	assert.Equal(t, uint64(319_457), sell.Fee)
	assert.Equal(t, uint64(31_626_331), sell.AmountInAfterFee)
	assert.Equal(t, uint64(980_413_197), sell.AmountOut)
	assert.Less(t, sell.AmountOut, buy.AmountIn)
}

func TestPrice_SellFractionalFee(t *testing.T) {
	q, err := Price(Reserves{Token: 1_000_000_000_000, Lamport: 5_000_000_000}, 2_000_000, Sell, 0.25)
	require.NoError(t, err)

	assert.Equal(t, uint64(5_000), q.Fee)
	assert.Equal(t, uint64(1_995_000), q.AmountInAfterFee)
	assert.Equal(t, uint64(9_974), q.AmountOut)
}

func TestPrice_ZeroAmount(t *testing.T) {
	for _, d := range []Direction{Buy, Sell} {
		q, err := Price(Reserves{Token: 1_000, Lamport: 1_000}, 0, d, 1)
		require.NoError(t, err)
		assert.Zero(t, q.AmountOut)
		assert.Zero(t, q.Fee)
	}
}

func TestPrice_EmptyReserves(t *testing.T) {
	cases := []Reserves{
		{Token: 0, Lamport: 1_000},
		{Token: 1_000, Lamport: 0},
		{},
	}
	for _, r := range cases {
		_, err := Price(r, 10, Buy, 1)
		assert.ErrorIs(t, err, ErrEmptyReserves)
	}
}

func TestPrice_InvalidFee(t *testing.T) {
	r := Reserves{Token: 1_000, Lamport: 1_000}
	for _, fee := range []float64{-0.5, 100, 150, math.NaN(), math.Inf(1)} {
		_, err := Price(r, 10, Sell, fee)
		assert.ErrorIs(t, err, ErrInvalidFee, "fee %v", fee)
	}
}

func TestPrice_NearMaxReservesDoesNotWrap(t *testing.T) {
	r := Reserves{Token: math.MaxUint64, Lamport: math.MaxUint64}

	q, err := Price(r, 1_000, Buy, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(999), q.AmountOut)

	q, err = Price(r, math.MaxUint64, Sell, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, q.AmountOut, r.Lamport)
}

func TestPrice_NeverPaysMoreThanExactFormula(t *testing.T) {
	reserves := []Reserves{
		{Token: 1_000_000_000, Lamport: 30_000_000_000},
		{Token: 1_073_000_000_000_000, Lamport: 30_000_000_000},
		{Token: 7, Lamport: 3},
		{Token: math.MaxUint64 / 3, Lamport: math.MaxUint64 / 5},
	}
	amounts := []uint64{1, 13, 999_999, 1_000_000_000, 123_456_789_012}

	for _, r := range reserves {
		for _, amount := range amounts {
			for _, d := range []Direction{Buy, Sell} {
				q, err := Price(r, amount, d, 0.95)
				require.NoError(t, err)

				x, y := r.Token, r.Lamport
				if d == Sell {
					x, y = r.Lamport, r.Token
				}
				// exact: out <= x - x*y/(y+in)  <=>  out*(y+in) <= x*in
				in := new(big.Int).SetUint64(q.AmountInAfterFee)
				lhs := new(big.Int).Mul(new(big.Int).SetUint64(q.AmountOut), new(big.Int).Add(new(big.Int).SetUint64(y), in))
				rhs := new(big.Int).Mul(new(big.Int).SetUint64(x), in)
				assert.True(t, lhs.Cmp(rhs) <= 0, "reserves %+v amount %d %s", r, amount, d)

				// pool product never shrinks: (x-out)*(y+in) >= x*y
				after := new(big.Int).Mul(
					new(big.Int).SetUint64(x-q.AmountOut),
					new(big.Int).Add(new(big.Int).SetUint64(y), in))
				before := new(big.Int).Mul(new(big.Int).SetUint64(x), new(big.Int).SetUint64(y))
				assert.True(t, after.Cmp(before) >= 0)
			}
		}
	}
}

func TestFeeAmount(t *testing.T) {
	tests := []struct {
		amount  uint64
		percent float64
		want    uint64
	}{
		{1_000_000_000, 1.0, 10_000_000},
		{999, 0.25, 2},
		{1, 99.99, 0},
		{100, 0.1, 0},
		{1_000, 0.1, 1},
		{math.MaxUint64, 50, math.MaxUint64 / 2},
		{12_345, 0, 0},
	}
	for _, tt := range tests {
		got, err := FeeAmount(tt.amount, tt.percent)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "amount %d percent %v", tt.amount, tt.percent)
	}
}
