package jobs

import (
	"context"
	"time"
)

// RetentionStore is the slice of the store the retention sweep needs.
type RetentionStore interface {
	DeleteExpiredAuditEvents(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpiredClosedTransactions(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionPolicy holds the TTLs in days. Zero disables a sweep.
type RetentionPolicy struct {
	AuditDays             int
	ClosedTransactionDays int
}

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	AuditEventsDeleted  int64 `json:"auditEventsDeleted"`
	TransactionsDeleted int64 `json:"transactionsDeleted"`
}

// CleanupExpiredData deletes old audit events and closed transactions so
// that the database does not grow without bound. Open transactions are
// never deleted. now is the plant's local clock.
func CleanupExpiredData(ctx context.Context, policy RetentionPolicy, st RetentionStore, now time.Time) (RetentionStats, error) {
	var stats RetentionStats

	if policy.AuditDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.AuditDays)
		n, err := st.DeleteExpiredAuditEvents(ctx, cutoff)
		if err != nil {
			return stats, err
		}
		stats.AuditEventsDeleted = n
	}

	if policy.ClosedTransactionDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.ClosedTransactionDays)
		n, err := st.DeleteExpiredClosedTransactions(ctx, cutoff)
		if err != nil {
			return stats, err
		}
		stats.TransactionsDeleted = n
	}

	return stats, nil
}
