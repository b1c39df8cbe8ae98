// Package store is the persistence collaborator: the pipeline itself never
// writes anything, the HTTP layer hands finished records here.
package store

import (
	"context"
	"time"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

// TransactionStore accepts reconciled transactions for saving and serves
// them back for listing/export.
type TransactionStore interface {
	Save(ctx context.Context, tx *entity.ReconciledTransaction) error
	List(ctx context.Context, from, to *time.Time) ([]entity.ReconciledTransaction, error)
	Close() error
}
