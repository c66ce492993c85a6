package ledger

import (
	"cmp"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Member is one student of a cohort together with their slice of the payment log.
type Member struct {
	Obligation StudentObligation `json:"obligation"`
	Payments   []PaymentRecord   `json:"payments"`
}

// GridColumn lists which students settled (or still owe) one item.
type GridColumn struct {
	ID     ItemIdentity `json:"id"`
	Label  string       `json:"label"`
	Paid   []string     `json:"paid"`
	Unpaid []string     `json:"unpaid"`
}

// Grid is the per-item, per-student view used for class print-outs.
type Grid struct {
	Students []string     `json:"students"`
	Columns  []GridColumn `json:"columns"`
}

// Mark reports the state of one cell: owed is false when the student has no such item.
func (g Grid) Mark(studentID string, id ItemIdentity) (paid, owed bool) {
	want := id.Normalized()
	for _, col := range g.Columns {
		if col.ID.Normalized() != want {
			continue
		}
		for _, s := range col.Paid {
			if s == studentID {
				return true, true
			}
		}
		for _, s := range col.Unpaid {
			if s == studentID {
				return false, true
			}
		}
		return false, false
	}
	return false, false
}

// CohortTotals sums the reconciliations of a cohort.
type CohortTotals struct {
	Students   int   `json:"students"`
	Settled    int   `json:"settled"`
	Unpriced   int   `json:"unpriced"`
	TotalDue   Money `json:"totalDue"`
	TotalPaid  Money `json:"totalPaid"`
	Balance    Money `json:"balance"`
	TuitionDue Money `json:"tuitionDue"`
}

// CohortReport is the fan-out of Reconcile over a class.
type CohortReport struct {
	Reconciliations []Reconciliation `json:"reconciliations"`
	Grid            Grid             `json:"grid"`
	Totals          CohortTotals     `json:"totals"`
}

// Aggregate reconciles every member against the snapshot. Work is spread over at most
// concurrency goroutines (GOMAXPROCS when <= 0); results keep the member order.
func Aggregate(members []Member, snap Snapshot, concurrency int) CohortReport {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	recs := make([]Reconciliation, len(members))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range members {
		g.Go(func() error {
			schedule := BuildSchedule(members[i].Obligation, snap)
			recs[i] = ReconcileSchedule(schedule, members[i].Payments)
			return nil
		})
	}
	_ = g.Wait()

	report := CohortReport{Reconciliations: recs, Grid: buildGrid(recs)}
	for _, r := range recs {
		report.Totals.Students++
		if r.Settled() {
			report.Totals.Settled++
		}
		if r.Unpriced {
			report.Totals.Unpriced++
		}
		report.Totals.TotalDue += r.TotalDue
		report.Totals.TotalPaid += r.TotalPaid
		report.Totals.TuitionDue += r.TuitionDue
	}
	report.Totals.Balance = report.Totals.TotalDue - report.Totals.TotalPaid
	return report
}

func buildGrid(recs []Reconciliation) Grid {
	grid := Grid{Students: make([]string, 0, len(recs))}
	index := map[ItemIdentity]int{}
	column := func(item PayableItem) *GridColumn {
		id := item.ID.Normalized()
		if i, ok := index[id]; ok {
			return &grid.Columns[i]
		}
		index[id] = len(grid.Columns)
		grid.Columns = append(grid.Columns, GridColumn{ID: id, Label: item.Label, Paid: []string{}, Unpaid: []string{}})
		return &grid.Columns[len(grid.Columns)-1]
	}
	for _, r := range recs {
		grid.Students = append(grid.Students, r.StudentID)
		for _, item := range r.PaidItems {
			col := column(item)
			col.Paid = append(col.Paid, r.StudentID)
		}
		for _, item := range r.UnpaidItems {
			col := column(item)
			col.Unpaid = append(col.Unpaid, r.StudentID)
		}
	}
	grid.Columns = orderColumns(grid.Columns)
	return grid
}

// orderColumns puts inscription first, months in academic order, tranches by number,
// and options in first-seen order.
func orderColumns(cols []GridColumn) []GridColumn {
	rank := func(c GridColumn) (int, int) {
		switch c.ID.Namespace {
		case NamespaceInscription:
			return 0, 0
		case NamespaceMonth:
			for i, m := range AcademicMonths {
				if MonthID(m).Key == c.ID.Key {
					return 1, i
				}
			}
			return 1, len(AcademicMonths)
		case NamespaceTranche:
			n, _ := parseTrancheLabel("tranche " + c.ID.Key)
			return 2, n
		default:
			return 3, 0
		}
	}
	out := slices.Clone(cols)
	slices.SortStableFunc(out, func(a, b GridColumn) int {
		a1, a2 := rank(a)
		b1, b2 := rank(b)
		if c := cmp.Compare(a1, b1); c != 0 {
			return c
		}
		return cmp.Compare(a2, b2)
	})
	return out
}
