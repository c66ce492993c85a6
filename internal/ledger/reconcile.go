package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

const optionMarker = "Option:"

// Reconciliation is the derived payment status of one student.
type Reconciliation struct {
	StudentID            string        `json:"studentId"`
	TotalDue             Money         `json:"totalDue"`
	TuitionDue           Money         `json:"tuitionDue"`
	TotalPaid            Money         `json:"totalPaid"`
	TotalPaidTuitionOnly Money         `json:"totalPaidTuitionOnly"`
	Balance              Money         `json:"balance"`
	PercentComplete      float64       `json:"percentComplete"`
	UnpaidItems          []PayableItem `json:"unpaidItems"`
	PaidItems            []PayableItem `json:"paidItems"`
	// UnattributedAmount is money received that settles none of the current items.
	UnattributedAmount Money `json:"unattributedAmount"`
	UnattributedCount  int   `json:"unattributedCount"`
	Unpriced           bool  `json:"unpriced"`
}

// Settled reports whether nothing remains to pay.
func (r Reconciliation) Settled() bool {
	return len(r.UnpaidItems) == 0 && r.Balance <= 0
}

// paidKeys is the set of identities settled by a payment log.
type paidKeys struct {
	ids     map[ItemIdentity]struct{}
	options map[string]struct{}
}

func (p paidKeys) has(item PayableItem) bool {
	id := item.ID.Normalized()
	if _, ok := p.ids[id]; ok {
		return true
	}
	if id.Namespace != NamespaceOption {
		return false
	}
	if _, ok := p.options[id.Key]; ok {
		return true
	}
	_, ok := p.options[normalizeKey(item.Label)]
	return ok
}

// recordKeys derives what a single record claims to settle. Tagged records are matched
// on their identity alone; untagged ones fall back to the paidMonths/description
// conventions.
func recordKeys(rec PaymentRecord) paidKeys {
	keys := paidKeys{ids: map[ItemIdentity]struct{}{}, options: map[string]struct{}{}}
	if rec.Item != nil {
		keys.ids[rec.Item.Normalized()] = struct{}{}
		return keys
	}
	if rec.Type == PaymentInscription {
		keys.ids[InscriptionID] = struct{}{}
	}
	for _, entry := range rec.PaidMonths {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		if n, ok := parseTrancheLabel(entry); ok {
			keys.ids[TrancheID(n)] = struct{}{}
			continue
		}
		keys.ids[MonthID(entry)] = struct{}{}
	}
	if idx := strings.Index(rec.Description, optionMarker); idx >= 0 {
		if name := normalizeKey(rec.Description[idx+len(optionMarker):]); name != "" {
			keys.options[name] = struct{}{}
		}
	}
	return keys
}

// Reconcile partitions items into paid and unpaid against the payment log and
// aggregates the totals. Records of other students are ignored.
func Reconcile(studentID string, items []PayableItem, payments []PaymentRecord) Reconciliation {
	rec := Reconciliation{
		StudentID:   studentID,
		UnpaidItems: make([]PayableItem, 0, len(items)),
		PaidItems:   make([]PayableItem, 0, len(items)),
	}
	for _, item := range items {
		rec.TotalDue += item.Amount
		if isTuition(item.ID.Namespace) {
			rec.TuitionDue += item.Amount
		}
	}

	all := paidKeys{ids: map[ItemIdentity]struct{}{}, options: map[string]struct{}{}}
	for _, p := range payments {
		if studentID != "" && p.StudentID != "" && p.StudentID != studentID {
			continue
		}
		rec.TotalPaid += p.Amount
		if p.Type == PaymentTuition {
			rec.TotalPaidTuitionOnly += p.Amount
		}
		keys := recordKeys(p)
		if !keys.settlesAny(items) {
			rec.UnattributedAmount += p.Amount
			rec.UnattributedCount++
		}
		for id := range keys.ids {
			all.ids[id] = struct{}{}
		}
		for name := range keys.options {
			all.options[name] = struct{}{}
		}
	}

	for _, item := range items {
		if all.has(item) {
			rec.PaidItems = append(rec.PaidItems, item)
		} else {
			rec.UnpaidItems = append(rec.UnpaidItems, item)
		}
	}
	rec.Balance = rec.TotalDue - rec.TotalPaid
	rec.PercentComplete = percentComplete(rec.TotalPaidTuitionOnly, rec.TuitionDue)
	return rec
}

func (p paidKeys) settlesAny(items []PayableItem) bool {
	for _, item := range items {
		if p.has(item) {
			return true
		}
	}
	return false
}

func percentComplete(paid, due Money) float64 {
	if due <= 0 {
		return 100
	}
	pct := decimal.NewFromInt(paid).Mul(hundred).Div(decimal.NewFromInt(due))
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	return pct.Round(2).InexactFloat64()
}

// ReconcileSchedule reconciles a schedule and carries its unpriced flag.
func ReconcileSchedule(s Schedule, payments []PaymentRecord) Reconciliation {
	rec := Reconcile(s.Obligation.StudentID, s.Items, payments)
	rec.Unpriced = s.Unpriced
	return rec
}
