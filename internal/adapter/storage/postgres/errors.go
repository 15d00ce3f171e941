package postgres

import (
	"fmt"
	"strings"

	pgconfig "github.com/crabzie/workspace-fleet/config/storage/postgresql"
	"github.com/crabzie/workspace-fleet/internal/core/domain"
)

// mapError translates constraint violations into domain errors
func mapError(err error, subject string) error {
	switch pgconfig.ErrorCode(err) {
	case pgconfig.UniqueViolation:
		return fmt.Errorf("%w: %s already exists", domain.ErrConflict, subject)
	case pgconfig.ForeignKeyViolation:
		return fmt.Errorf("%w: %s references a missing row", domain.ErrValidation, subject)
	}
	return err
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
