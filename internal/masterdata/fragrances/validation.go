package fragrances

import (
	"errors"
	"strings"
)

func (s *Service) validate(f Fragrance) error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("fragrance name is required")
	}
	if strings.TrimSpace(f.Unit) == "" {
		return errors.New("fragrance unit is required")
	}
	if f.SafetyStockLevel.IsNegative() {
		return errors.New("safety stock level must not be negative")
	}
	if f.CostPerUnit.IsNegative() {
		return errors.New("cost per unit must not be negative")
	}
	seen := make(map[int64]bool, len(f.Formula))
	for _, c := range f.Formula {
		if c.MaterialID <= 0 {
			return errors.New("formula component requires a material")
		}
		if !c.QtyPerKg.IsPositive() {
			return errors.New("formula component quantity must be positive")
		}
		if seen[c.MaterialID] {
			return errors.New("formula lists a material twice")
		}
		seen[c.MaterialID] = true
	}
	return nil
}
