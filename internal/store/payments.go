package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/tuition-ledger/internal/ledger"
)

const paymentColumns = `id::text, student_id, amount, type, paid_at, paid_months, description,
	item_namespace, item_key`

const insertPayment = `INSERT INTO payment_records
	(id, student_id, amount, type, paid_at, paid_months, description, item_namespace, item_key, batch_id, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// ListPayments returns the full payment log of a student in payment order.
func (s *Store) ListPayments(ctx context.Context, studentID string) ([]ledger.PaymentRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payment_records WHERE student_id = $1 ORDER BY paid_at, recorded_at, id`,
		strings.TrimSpace(studentID))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPayment)
}

// ListPaymentsForStudents returns the logs of several students keyed by student id.
func (s *Store) ListPaymentsForStudents(ctx context.Context, studentIDs []string) (map[string][]ledger.PaymentRecord, error) {
	out := make(map[string][]ledger.PaymentRecord, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payment_records WHERE student_id = ANY($1) ORDER BY student_id, paid_at, recorded_at, id`,
		studentIDs)
	if err != nil {
		return nil, err
	}
	records, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		out[rec.StudentID] = append(out[rec.StudentID], rec)
	}
	return out, nil
}

// GetPayments returns the named records of a student. Unknown ids are skipped.
func (s *Store) GetPayments(ctx context.Context, studentID string, ids []string) ([]ledger.PaymentRecord, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		parsed = append(parsed, u)
	}
	if len(parsed) == 0 {
		return []ledger.PaymentRecord{}, nil
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payment_records WHERE student_id = $1 AND id = ANY($2) ORDER BY paid_at, recorded_at, id`,
		strings.TrimSpace(studentID), parsed)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPayment)
}

// AppendPayments inserts records atomically. Records must carry ids; batchID groups the
// rows of one submission.
func (s *Store) AppendPayments(ctx context.Context, batchID string, records []ledger.PaymentRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := uuid.Parse(batchID)
	if err != nil {
		return fmt.Errorf("batch id: %w", err)
	}
	recordedAt := s.now()
	queued := &pgx.Batch{}
	for _, rec := range records {
		args, err := paymentArgs(rec)
		if err != nil {
			return err
		}
		queued.Queue(insertPayment, append(args, batch, recordedAt)...)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	results := tx.SendBatch(ctx, queued)
	for range records {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return translate(err)
		}
	}
	if err := results.Close(); err != nil {
		return translate(err)
	}
	return tx.Commit(ctx)
}

func paymentArgs(rec ledger.PaymentRecord) ([]any, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("payment id %q: %w", rec.ID, err)
	}
	var namespace, key *string
	if rec.Item != nil {
		ns := string(rec.Item.Namespace)
		k := rec.Item.Key
		namespace, key = &ns, &k
	}
	paidMonths := rec.PaidMonths
	if paidMonths == nil {
		paidMonths = []string{}
	}
	return []any{id, rec.StudentID, rec.Amount, string(rec.Type), rec.PaidAt.UTC(), paidMonths, rec.Description, namespace, key}, nil
}

func scanPayment(row pgx.CollectableRow) (ledger.PaymentRecord, error) {
	var (
		rec       ledger.PaymentRecord
		kind      string
		paidAt    time.Time
		namespace *string
		key       *string
	)
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.Amount, &kind, &paidAt, &rec.PaidMonths, &rec.Description, &namespace, &key)
	if err != nil {
		return rec, err
	}
	rec.Type = ledger.PaymentType(kind)
	rec.PaidAt = paidAt.UTC()
	rec.Item = itemFromColumns(namespace, key)
	return rec, nil
}

// itemFromColumns rebuilds the identity tag; untagged historical rows yield nil.
func itemFromColumns(namespace, key *string) *ledger.ItemIdentity {
	if namespace == nil || key == nil {
		return nil
	}
	id := ledger.ItemIdentity{Namespace: ledger.Namespace(*namespace), Key: *key}.Normalized()
	if !id.Namespace.Valid() || id.Key == "" {
		return nil
	}
	return &id
}
