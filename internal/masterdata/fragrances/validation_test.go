package fragrances

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidateFormula(t *testing.T) {
	svc := NewService(nil)

	base := Fragrance{Name: "Rose Base", Unit: "kg"}
	require.NoError(t, svc.validate(base))

	dup := base
	dup.Formula = []Component{
		{MaterialID: 1, QtyPerKg: decimal.NewFromFloat(0.2)},
		{MaterialID: 1, QtyPerKg: decimal.NewFromFloat(0.3)},
	}
	require.Error(t, svc.validate(dup))

	zero := base
	zero.Formula = []Component{{MaterialID: 2, QtyPerKg: decimal.Zero}}
	require.Error(t, svc.validate(zero))

	ok := base
	ok.Formula = []Component{
		{MaterialID: 1, QtyPerKg: decimal.NewFromFloat(0.2)},
		{MaterialID: 2, QtyPerKg: decimal.NewFromFloat(0.8)},
	}
	require.NoError(t, svc.validate(ok))
}
