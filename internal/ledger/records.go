package ledger

import (
	"strconv"
	"time"
)

// BuildPaymentRecords turns priced lines into one payment record per item. Each record
// carries its item identity plus the paidMonths/description conventions so that older
// readers of the log still recognise it.
func BuildPaymentRecords(studentID string, lines []PricedLine, paidAt time.Time) []PaymentRecord {
	out := make([]PaymentRecord, 0, len(lines))
	for _, line := range lines {
		id := line.ID.Normalized()
		rec := PaymentRecord{
			StudentID: studentID,
			Amount:    line.Amount,
			PaidAt:    paidAt,
			Item:      &id,
		}
		switch id.Namespace {
		case NamespaceInscription:
			rec.Type = PaymentInscription
			rec.Description = "Inscription"
		case NamespaceMonth:
			rec.Type = PaymentTuition
			rec.PaidMonths = []string{line.Label}
			rec.Description = "Mensualité: " + line.Label
		case NamespaceTranche:
			rec.Type = PaymentTuition
			label := line.Label
			if n, err := strconv.Atoi(id.Key); err == nil {
				label = TrancheLabel(n)
			}
			rec.PaidMonths = []string{label}
			rec.Description = label
		case NamespaceOption:
			rec.Type = PaymentOther
			rec.Description = optionMarker + " " + line.Label
		default:
			rec.Type = PaymentOther
		}
		out = append(out, rec)
	}
	return out
}
