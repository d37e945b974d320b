package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestApplyDeltaAdd(t *testing.T) {
	after, change, err := applyDelta(dec("5.125"), dec("2.0004"), DirectionAdd, DefaultPolicy())
	require.NoError(t, err)
	require.True(t, after.Equal(dec("7.125")))
	require.True(t, change.Equal(dec("2")))
}

func TestApplyDeltaSubtract(t *testing.T) {
	after, change, err := applyDelta(dec("10"), dec("4.5"), DirectionSubtract, DefaultPolicy())
	require.NoError(t, err)
	require.True(t, after.Equal(dec("5.5")))
	require.True(t, change.Equal(dec("-4.5")))
}

func TestApplyDeltaClampsAtZero(t *testing.T) {
	after, change, err := applyDelta(dec("2"), dec("3"), DirectionSubtract, DefaultPolicy())
	require.NoError(t, err)
	require.True(t, after.IsZero())
	require.True(t, change.Equal(dec("-2")))
}

func TestApplyDeltaStrictRejectsShortfall(t *testing.T) {
	_, _, err := applyDelta(dec("2"), dec("3"), DirectionSubtract, Policy{ClampAtZero: false})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestApplyDeltaNormalizesDirtyCurrentStock(t *testing.T) {
	after, change, err := applyDelta(dec("1.00049"), dec("0.5"), DirectionAdd, DefaultPolicy())
	require.NoError(t, err)
	require.True(t, after.Equal(dec("1.5")))
	require.True(t, change.Equal(dec("0.5")))
}

func TestApplyDeltaChangeMatchesDifference(t *testing.T) {
	cases := []struct {
		current, qty string
		dir          Direction
	}{
		{"0.001", "0.0004", DirectionAdd},
		{"100", "99.9995", DirectionSubtract},
		{"0.5", "0.5", DirectionSubtract},
		{"3.333", "6.666", DirectionSubtract},
	}
	for _, tc := range cases {
		after, change, err := applyDelta(dec(tc.current), dec(tc.qty), tc.dir, DefaultPolicy())
		require.NoError(t, err)
		require.True(t, after.Sub(Round3(dec(tc.current))).Equal(change),
			"current=%s qty=%s dir=%s", tc.current, tc.qty, tc.dir)
		require.False(t, after.IsNegative())
	}
}

func TestRound3(t *testing.T) {
	require.True(t, Round3(dec("0.0005")).Equal(dec("0.001")))
	require.True(t, Round3(dec("0.0004")).Equal(decimal.Zero))
	require.True(t, Round3(dec("-0.0005")).Equal(dec("-0.001")))
	require.True(t, Round3(dec("12.3")).Equal(dec("12.3")))
}
