package billing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tuition-ledger/internal/events"
	"github.com/noah-isme/tuition-ledger/internal/ledger"
	"github.com/noah-isme/tuition-ledger/internal/obs"
	"github.com/noah-isme/tuition-ledger/internal/store"
)

var (
	ErrStudentNotFound = errors.New("billing: student not found")
	ErrEmptySelection  = errors.New("billing: no items selected")
	ErrItemNotOpen     = errors.New("billing: item is not open for payment")
	ErrClassUnpriced   = errors.New("billing: class has no tariff")
	ErrPaymentNotFound = errors.New("billing: payment not found")
)

// SelectionError lists the selected identities that caused a rejection.
type SelectionError struct {
	Err   error
	Items []ledger.ItemIdentity
}

func (e *SelectionError) Error() string {
	ids := make([]string, 0, len(e.Items))
	for _, id := range e.Items {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(ids, ", "))
}

func (e *SelectionError) Unwrap() error { return e.Err }

// Store is the persistence the service reads from and appends to.
type Store interface {
	GetStudent(ctx context.Context, studentID string) (ledger.StudentObligation, error)
	ListStudentsByClasse(ctx context.Context, classe string) ([]ledger.StudentObligation, error)
	ListPayments(ctx context.Context, studentID string) ([]ledger.PaymentRecord, error)
	ListPaymentsForStudents(ctx context.Context, studentIDs []string) (map[string][]ledger.PaymentRecord, error)
	GetPayments(ctx context.Context, studentID string, ids []string) ([]ledger.PaymentRecord, error)
	AppendPayments(ctx context.Context, batchID string, records []ledger.PaymentRecord) error
}

// SnapshotSource provides the reference data for one engine call.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (ledger.Snapshot, error)
}

// Locker serialises writers of one student's payment log.
type Locker interface {
	StudentKey(studentID string) string
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// EventEmitter publishes domain events.
type EventEmitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// StudentLedger is the full view of one student's account.
type StudentLedger struct {
	Schedule       ledger.Schedule       `json:"schedule"`
	Reconciliation ledger.Reconciliation `json:"reconciliation"`
	Currency       string                `json:"currency"`
	SnapshotAt     time.Time             `json:"snapshotAt"`
}

// Quote prices a selection without recording anything.
type Quote struct {
	ledger.PricedSubset
	// AlreadyPaid lists selected items the log already settles.
	AlreadyPaid []ledger.ItemIdentity `json:"alreadyPaid,omitempty"`
	Currency    string                `json:"currency"`
}

// Receipt is the outcome of a payment submission.
type Receipt struct {
	StudentID string                 `json:"studentId"`
	BatchID   string                 `json:"batchId,omitempty"`
	Currency  string                 `json:"currency"`
	Records   []ledger.PaymentRecord `json:"records"`
	Total     ledger.Money           `json:"total"`
	Ledger    ledger.Reconciliation  `json:"ledger"`
}

// ClassLedger is the reconciliation of a whole class.
type ClassLedger struct {
	Classe   string `json:"classe"`
	Currency string `json:"currency"`
	ledger.CohortReport
}

type Service struct {
	Store             Store
	Settings          SnapshotSource
	Locker            Locker
	LockTTL           time.Duration
	Events            EventEmitter
	Logger            *zerolog.Logger
	Currency          string
	CohortConcurrency int
	Now               func() time.Time
	NewID             func() string
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Settings == nil {
		return errors.New("billing service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Ledger reconciles one student against the current settings.
func (s *Service) Ledger(ctx context.Context, studentID string) (StudentLedger, error) {
	if err := s.ready(); err != nil {
		return StudentLedger{}, err
	}
	schedule, snap, payments, err := s.load(ctx, studentID)
	if err != nil {
		return StudentLedger{}, err
	}
	rec := s.reconcile(schedule, payments)
	return StudentLedger{
		Schedule:       schedule,
		Reconciliation: rec,
		Currency:       s.Currency,
		SnapshotAt:     snap.LoadedAt,
	}, nil
}

// Quote prices the selected items against the student's current schedule.
func (s *Service) Quote(ctx context.Context, studentID string, selection []ledger.ItemIdentity) (Quote, error) {
	if err := s.ready(); err != nil {
		return Quote{}, err
	}
	if len(selection) == 0 {
		return Quote{}, ErrEmptySelection
	}
	schedule, _, payments, err := s.load(ctx, studentID)
	if err != nil {
		return Quote{}, err
	}
	priced := ledger.PriceSubset(schedule.Items, selection)
	rec := ledger.ReconcileSchedule(schedule, payments)
	return Quote{
		PricedSubset: priced,
		AlreadyPaid:  paidAmong(rec, priced.Lines),
		Currency:     s.Currency,
	}, nil
}

// RecordPayments appends one payment record per selected item. Items must be part of
// the student's schedule and not yet settled.
func (s *Service) RecordPayments(ctx context.Context, studentID string, selection []ledger.ItemIdentity, paidAt time.Time) (Receipt, error) {
	if err := s.ready(); err != nil {
		return Receipt{}, err
	}
	if s.Locker == nil {
		return Receipt{}, errors.New("billing service not configured")
	}
	if len(selection) == 0 {
		return Receipt{}, ErrEmptySelection
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var receipt Receipt
	err := s.Locker.WithLock(ctx, s.Locker.StudentKey(studentID), s.LockTTL, func(ctx context.Context) error {
		schedule, _, payments, err := s.load(ctx, studentID)
		if err != nil {
			return err
		}
		priced := ledger.PriceSubset(schedule.Items, selection)
		if len(priced.Missing) > 0 {
			return &SelectionError{Err: ErrItemNotOpen, Items: priced.Missing}
		}
		before := ledger.ReconcileSchedule(schedule, payments)
		if paid := paidAmong(before, priced.Lines); len(paid) > 0 {
			return &SelectionError{Err: ErrItemNotOpen, Items: paid}
		}
		if schedule.Unpriced {
			if blocked := tariffDerived(priced.Lines); len(blocked) > 0 {
				return &SelectionError{Err: ErrClassUnpriced, Items: blocked}
			}
		}

		records := ledger.BuildPaymentRecords(schedule.Obligation.StudentID, priced.Lines, paidAt)
		for i := range records {
			records[i].ID = s.newID()
		}
		batchID := s.newID()
		if err := s.Store.AppendPayments(ctx, batchID, records); err != nil {
			if errors.Is(err, store.ErrUnknownStudent) {
				return ErrStudentNotFound
			}
			return fmt.Errorf("append payments: %w", err)
		}

		receipt = Receipt{
			StudentID: schedule.Obligation.StudentID,
			BatchID:   batchID,
			Currency:  s.Currency,
			Records:   records,
			Total:     priced.Total,
			Ledger:    s.reconcile(schedule, append(payments, records...)),
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	for _, rec := range receipt.Records {
		obs.ObservePaymentRecorded(string(rec.Item.Namespace), rec.Amount)
	}
	s.emit(ctx, events.TopicPaymentRecorded, receipt.StudentID, receipt)
	if receipt.Ledger.Settled() {
		s.emit(ctx, events.TopicLedgerSettled, receipt.StudentID, receipt.Ledger)
	}
	return receipt, nil
}

// Receipt returns previously recorded payments of a student with the current ledger.
func (s *Service) Receipt(ctx context.Context, studentID string, paymentIDs []string) (Receipt, error) {
	if err := s.ready(); err != nil {
		return Receipt{}, err
	}
	if len(paymentIDs) == 0 {
		return Receipt{}, ErrPaymentNotFound
	}
	schedule, _, payments, err := s.load(ctx, studentID)
	if err != nil {
		return Receipt{}, err
	}
	records, err := s.Store.GetPayments(ctx, schedule.Obligation.StudentID, paymentIDs)
	if err != nil {
		return Receipt{}, fmt.Errorf("get payments: %w", err)
	}
	if len(records) == 0 {
		return Receipt{}, ErrPaymentNotFound
	}
	out := Receipt{
		StudentID: schedule.Obligation.StudentID,
		Currency:  s.Currency,
		Records:   records,
		Ledger:    s.reconcile(schedule, payments),
	}
	for _, rec := range records {
		out.Total += rec.Amount
	}
	return out, nil
}

// Cohort reconciles every student of a class. An empty class yields an empty report.
func (s *Service) Cohort(ctx context.Context, classe string) (ClassLedger, error) {
	if err := s.ready(); err != nil {
		return ClassLedger{}, err
	}
	classe = strings.TrimSpace(classe)
	started := time.Now()
	snap, err := s.Settings.Snapshot(ctx)
	if err != nil {
		return ClassLedger{}, fmt.Errorf("load settings: %w", err)
	}
	students, err := s.Store.ListStudentsByClasse(ctx, classe)
	if err != nil {
		return ClassLedger{}, fmt.Errorf("list students: %w", err)
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.StudentID)
	}
	payments := map[string][]ledger.PaymentRecord{}
	if len(ids) > 0 {
		payments, err = s.Store.ListPaymentsForStudents(ctx, ids)
		if err != nil {
			return ClassLedger{}, fmt.Errorf("list payments: %w", err)
		}
	}
	members := make([]ledger.Member, 0, len(students))
	for _, st := range students {
		members = append(members, ledger.Member{Obligation: st, Payments: payments[st.StudentID]})
	}

	report := ledger.Aggregate(members, snap, s.CohortConcurrency)
	for _, rec := range report.Reconciliations {
		obs.ObserveReconciliation(!rec.Unpriced, rec.UnattributedCount)
	}
	if report.Totals.Unpriced > 0 {
		s.logger().Warn().Str("classe", classe).Int("unpriced", report.Totals.Unpriced).Msg("class has students without tariff")
	}
	obs.ObserveCohort(time.Since(started))
	return ClassLedger{Classe: classe, Currency: s.Currency, CohortReport: report}, nil
}

func (s *Service) load(ctx context.Context, studentID string) (ledger.Schedule, ledger.Snapshot, []ledger.PaymentRecord, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return ledger.Schedule{}, ledger.Snapshot{}, nil, ErrStudentNotFound
	}
	ob, err := s.Store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ledger.Schedule{}, ledger.Snapshot{}, nil, ErrStudentNotFound
		}
		return ledger.Schedule{}, ledger.Snapshot{}, nil, fmt.Errorf("get student: %w", err)
	}
	snap, err := s.Settings.Snapshot(ctx)
	if err != nil {
		return ledger.Schedule{}, ledger.Snapshot{}, nil, fmt.Errorf("load settings: %w", err)
	}
	payments, err := s.Store.ListPayments(ctx, ob.StudentID)
	if err != nil {
		return ledger.Schedule{}, ledger.Snapshot{}, nil, fmt.Errorf("list payments: %w", err)
	}
	return ledger.BuildSchedule(ob, snap), snap, payments, nil
}

func (s *Service) reconcile(schedule ledger.Schedule, payments []ledger.PaymentRecord) ledger.Reconciliation {
	rec := ledger.ReconcileSchedule(schedule, payments)
	obs.ObserveReconciliation(!rec.Unpriced, rec.UnattributedCount)
	log := s.logger()
	if rec.Unpriced {
		log.Warn().Str("student_id", rec.StudentID).Str("classe", schedule.Obligation.Classe).Msg("no tariff for class")
	}
	if rec.UnattributedCount > 0 {
		log.Warn().
			Str("student_id", rec.StudentID).
			Int("count", rec.UnattributedCount).
			Int64("amount", rec.UnattributedAmount).
			Msg("payments settle no current item")
	}
	return rec
}

func (s *Service) emit(ctx context.Context, topic, studentID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, studentID, payload); err != nil {
		s.logger().Error().Err(err).Str("topic", topic).Str("student_id", studentID).Msg("emit event")
	}
}

func paidAmong(rec ledger.Reconciliation, lines []ledger.PricedLine) []ledger.ItemIdentity {
	var out []ledger.ItemIdentity
	for _, line := range lines {
		id := line.ID.Normalized()
		if slices.ContainsFunc(rec.PaidItems, func(item ledger.PayableItem) bool { return item.ID.Normalized() == id }) {
			out = append(out, id)
		}
	}
	return out
}

func tariffDerived(lines []ledger.PricedLine) []ledger.ItemIdentity {
	var out []ledger.ItemIdentity
	for _, line := range lines {
		if line.ID.Namespace != ledger.NamespaceOption {
			out = append(out, line.ID.Normalized())
		}
	}
	return out
}
