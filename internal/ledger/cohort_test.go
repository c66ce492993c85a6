package ledger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateCohort(t *testing.T) {
	snap := testSnapshot()
	installments := StudentObligation{StudentID: "stu-b", Classe: "CM1", PaymentMode: ModeInstallments}
	installments.SelectedCustomOptionIDs = []string{"opt-cantine"}
	members := []Member{
		{
			Obligation: monthlyStudent("Septembre"),
			Payments: []PaymentRecord{
				{StudentID: "stu-1", Amount: 22_000, Type: PaymentTuition, PaidMonths: []string{"Septembre"}},
			},
		},
		{
			Obligation: installments,
			Payments: []PaymentRecord{
				{StudentID: "stu-b", Amount: 40_000, Type: PaymentInscription},
			},
		},
		{
			Obligation: StudentObligation{StudentID: "stu-x", Classe: "Terminale", PaymentMode: ModeMonthly},
		},
	}

	report := Aggregate(members, snap, 2)
	require.Len(t, report.Reconciliations, 3)
	for i, m := range members {
		require.Equal(t, m.Obligation.StudentID, report.Reconciliations[i].StudentID)
	}

	totals := report.Totals
	require.Equal(t, 3, totals.Students)
	require.Equal(t, 1, totals.Unpriced)
	require.Equal(t, Money(260_000+275_000), totals.TotalDue)
	require.Equal(t, Money(62_000), totals.TotalPaid)
	require.Equal(t, totals.TotalDue-totals.TotalPaid, totals.Balance)
	require.Equal(t, Money(440_000), totals.TuitionDue)

	grid := report.Grid
	require.Equal(t, []string{"stu-1", "stu-b", "stu-x"}, grid.Students)
	require.Equal(t, InscriptionID, grid.Columns[0].ID)
	require.Equal(t, MonthID("Septembre"), grid.Columns[1].ID)
	last := grid.Columns[len(grid.Columns)-1]
	require.Equal(t, OptionID("opt-cantine"), last.ID)

	paid, owed := grid.Mark("stu-1", MonthID("septembre"))
	require.True(t, paid)
	require.True(t, owed)
	paid, owed = grid.Mark("stu-b", InscriptionID)
	require.True(t, paid)
	require.True(t, owed)
	paid, owed = grid.Mark("stu-1", TrancheID(1))
	require.False(t, paid)
	require.False(t, owed)
	paid, owed = grid.Mark("stu-b", TrancheID(2))
	require.False(t, paid)
	require.True(t, owed)
}

func TestAggregateColumnOrder(t *testing.T) {
	snap := testSnapshot()
	a := StudentObligation{StudentID: "a", Classe: "CM1", PaymentMode: ModeInstallments, SelectedStandardOptions: []OptionKey{OptionAssurance}}
	b := StudentObligation{StudentID: "b", Classe: "CM1", PaymentMode: ModeMonthly, SelectedCustomOptionIDs: []string{"opt-cantine"}}
	report := Aggregate([]Member{{Obligation: a}, {Obligation: b}}, snap, 0)

	var got []string
	for _, col := range report.Grid.Columns {
		got = append(got, col.ID.String())
	}
	want := []string{"inscription:inscription"}
	for _, m := range AcademicMonths {
		want = append(want, MonthID(m).String())
	}
	want = append(want, "tranche:1", "tranche:2", "option:assurance", "option:opt-cantine")
	require.Equal(t, want, got)
}

func TestAggregateKeepsOrderUnderConcurrency(t *testing.T) {
	snap := testSnapshot()
	members := make([]Member, 50)
	for i := range members {
		ob := monthlyStudent()
		ob.StudentID = fmt.Sprintf("stu-%02d", i)
		members[i] = Member{Obligation: ob, Payments: []PaymentRecord{
			{StudentID: ob.StudentID, Amount: Money(i), Type: PaymentOther},
		}}
	}

	report := Aggregate(members, snap, 4)
	for i, r := range report.Reconciliations {
		require.Equal(t, members[i].Obligation.StudentID, r.StudentID)
		require.Equal(t, Money(i), r.TotalPaid)
	}
	require.Zero(t, report.Totals.Settled)
}

func TestAggregateEmptyCohort(t *testing.T) {
	report := Aggregate(nil, testSnapshot(), 3)
	require.Empty(t, report.Reconciliations)
	require.Empty(t, report.Grid.Columns)
	require.Zero(t, report.Totals.Students)
}
