package suppliers

import (
	"fmt"
	"strings"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

func (s *Service) validate(sup Supplier) error {
	if strings.TrimSpace(sup.Code) == "" {
		return fmt.Errorf("suppliers: code is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(sup.Name) == "" {
		return fmt.Errorf("suppliers: name is required: %w", shared.ErrValidation)
	}
	if sup.Email != "" && !strings.Contains(sup.Email, "@") {
		return fmt.Errorf("suppliers: email looks invalid: %w", shared.ErrValidation)
	}
	if sup.LeadTimeDays < 0 {
		return fmt.Errorf("suppliers: lead time cannot be negative: %w", shared.ErrValidation)
	}
	if sup.MinimumOrderKg < 0 {
		return fmt.Errorf("suppliers: minimum order cannot be negative: %w", shared.ErrValidation)
	}
	return nil
}
