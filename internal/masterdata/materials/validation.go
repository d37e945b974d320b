package materials

import (
	"errors"
	"strings"
)

func (s *Service) validate(m Material) error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("material name is required")
	}
	if strings.TrimSpace(m.Unit) == "" {
		return errors.New("material unit is required")
	}
	if m.SafetyStockLevel.IsNegative() {
		return errors.New("safety stock level must not be negative")
	}
	if m.CostPerUnit.IsNegative() {
		return errors.New("cost per unit must not be negative")
	}
	return nil
}
