package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/tuition-ledger/internal/ledger"
)

const studentColumns = `id, classe, enrollment_type, payment_mode, selected_months, installment_count,
	selected_standard_options, selected_custom_option_ids`

// GetStudent loads the current obligation of one student.
func (s *Store) GetStudent(ctx context.Context, studentID string) (ledger.StudentObligation, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, strings.TrimSpace(studentID))
	if err != nil {
		return ledger.StudentObligation{}, err
	}
	ob, err := pgx.CollectExactlyOneRow(rows, scanStudent)
	if err != nil {
		return ledger.StudentObligation{}, translate(err)
	}
	return ob, nil
}

// ListStudentsByClasse lists every student of a class, matched case-insensitively and
// ordered by id.
func (s *Store) ListStudentsByClasse(ctx context.Context, classe string) ([]ledger.StudentObligation, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+studentColumns+` FROM students WHERE lower(classe) = lower($1) ORDER BY id`,
		strings.TrimSpace(classe))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanStudent)
}

func scanStudent(row pgx.CollectableRow) (ledger.StudentObligation, error) {
	var (
		ob       ledger.StudentObligation
		enroll   string
		mode     string
		standard []string
	)
	err := row.Scan(&ob.StudentID, &ob.Classe, &enroll, &mode, &ob.SelectedMonths, &ob.InstallmentCount,
		&standard, &ob.SelectedCustomOptionIDs)
	if err != nil {
		return ob, err
	}
	ob.EnrollmentType = ledger.EnrollmentType(enroll)
	ob.PaymentMode = ledger.PaymentMode(mode)
	ob.SelectedStandardOptions = make([]ledger.OptionKey, 0, len(standard))
	for _, key := range standard {
		ob.SelectedStandardOptions = append(ob.SelectedStandardOptions, ledger.OptionKey(key))
	}
	return ob, nil
}
