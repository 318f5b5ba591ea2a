package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the GORM handle shared by the session and outbox repositories.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection, which may be a transaction handle.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
