// Package rls sets the per-transaction tenant variable that postgres
// row-level security policies read. On dialects without RLS the statement
// is skipped; explicit tenant predicates still apply everywhere.
package rls

import (
	"fmt"

	"gorm.io/gorm"
)

func WithTenant(tx *gorm.DB, tenantID int64) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SET LOCAL app.current_tenant_id = ?",
		fmt.Sprintf("%d", tenantID),
	).Error
}
