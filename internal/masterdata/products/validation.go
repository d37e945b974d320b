package products

import (
	"errors"
	"strings"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if p.FillVolume.IsNegative() {
		return errors.New("fill volume must not be negative")
	}
	if p.UnitPrice.IsNegative() {
		return errors.New("unit price must not be negative")
	}
	return nil
}
