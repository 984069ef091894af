package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

var auditSchema = []string{`
	CREATE TABLE IF NOT EXISTS payment_order_audit_log (
	    id            BIGSERIAL PRIMARY KEY,
	    session_id    TEXT        NOT NULL,
	    order_id      TEXT,
	    action        TEXT        NOT NULL,
	    operation     TEXT        NOT NULL,
	    status_before TEXT,
	    status_after  TEXT,
	    error_code    TEXT,
	    message       TEXT,
	    metadata      JSONB,
	    performed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, `
	CREATE INDEX IF NOT EXISTS payment_order_audit_log_order_idx
	    ON payment_order_audit_log (order_id, performed_at)`, `
	CREATE INDEX IF NOT EXISTS payment_order_audit_log_session_idx
	    ON payment_order_audit_log (session_id, performed_at)`,
}

// AuditRepository appends and reads the payment order audit log.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// EnsureSchema creates the audit table and its indexes when missing, in one
// transaction.
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range auditSchema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create audit schema")
	}
	return nil
}

// Ping checks the audit database is reachable.
func (r *AuditRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Append inserts one audit entry. Entries are never updated.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO payment_order_audit_log
		    (session_id, order_id, action, operation,
		     status_before, status_after,
		     error_code, message, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6,
		        $7, $8, $9)
		RETURNING id, performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.SessionID,
		entry.OrderID,
		entry.Action,
		entry.Operation,
		entry.StatusBefore,
		entry.StatusAfter,
		entry.ErrorCode,
		entry.Message,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByOrderID returns the audit trail of an order, oldest first.
func (r *AuditRepository) GetByOrderID(ctx context.Context, orderID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, session_id, order_id, action, operation,
		       status_before, status_after, error_code, message,
		       performed_at, metadata
		FROM payment_order_audit_log
		WHERE order_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetBySessionID returns every entry recorded by one editing session.
func (r *AuditRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, session_id, order_id, action, operation,
		       status_before, status_after, error_code, message,
		       performed_at, metadata
		FROM payment_order_audit_log
		WHERE session_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get session audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc auditScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.SessionID,
		&entry.OrderID,
		&entry.Action,
		&entry.Operation,
		&entry.StatusBefore,
		&entry.StatusAfter,
		&entry.ErrorCode,
		&entry.Message,
		&entry.PerformedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}
