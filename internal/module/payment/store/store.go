package store

import (
	"context"

	"github.com/blogauto/server/internal/module/payment/domain"
)

// Store is durable, append-mostly persistence for transactions. Save
// writes one self-contained record; it never mutates an earlier one.
// List returns records newest first.
type Store interface {
	Save(ctx context.Context, txn *domain.Transaction) error
	List(ctx context.Context, limit int) ([]*domain.Transaction, error)
}
