package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AcademicMonths is the canonical ten-month school year in calendar order.
var AcademicMonths = []string{
	"Septembre",
	"Octobre",
	"Novembre",
	"Décembre",
	"Janvier",
	"Février",
	"Mars",
	"Avril",
	"Mai",
	"Juin",
}

// monthsPerYear is the fixed divisor for monthly pricing, independent of how many
// months a student selected.
const monthsPerYear = 10

var hundred = decimal.NewFromInt(100)

// Schedule is the enumerated obligation of a student against one snapshot.
type Schedule struct {
	Obligation StudentObligation `json:"obligation"`
	Tariff     Tariff            `json:"tariff"`
	Items      []PayableItem     `json:"items"`
	// Unpriced is set when the class has no tariff and tuition items are priced at zero.
	Unpriced bool `json:"unpriced"`
}

// BuildSchedule resolves the student's tariff from the snapshot and enumerates items.
func BuildSchedule(ob StudentObligation, snap Snapshot) Schedule {
	tariff, known := snap.Tariffs.Resolve(ob.Classe)
	return Schedule{
		Obligation: ob,
		Tariff:     tariff,
		Items:      EnumerateItems(ob, tariff, snap.Plan, snap.Catalog),
		Unpriced:   !known,
	}
}

// EnumerateItems produces the canonical, identity-unique list of payable items for the
// academic year. The order is stable: inscription, tuition items, standard options,
// custom options.
func EnumerateItems(ob StudentObligation, tariff Tariff, plan PlanConfig, catalog OptionCatalog) []PayableItem {
	items := make([]PayableItem, 0, 1+monthsPerYear+len(ob.SelectedStandardOptions)+len(ob.SelectedCustomOptionIDs))
	seen := make(map[ItemIdentity]struct{}, cap(items))
	emit := func(item PayableItem) {
		if _, dup := seen[item.ID]; dup {
			return
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}

	inscription := decimal.NewFromInt(tariff.InscriptionFee)
	if ob.EnrollmentType == EnrollmentRenewal {
		inscription = inscription.Div(decimal.NewFromInt(2))
	}
	emit(PayableItem{ID: InscriptionID, Label: "Inscription", Amount: roundMoney(inscription), Due: true})

	switch ob.PaymentMode {
	case ModeMonthly:
		selected := monthSelection(ob.SelectedMonths)
		monthly := roundMoney(decimal.NewFromInt(tariff.AnnualTuitionFee).Div(decimal.NewFromInt(monthsPerYear)))
		for _, month := range AcademicMonths {
			id := MonthID(month)
			_, due := selected[id.Key]
			emit(PayableItem{ID: id, Label: month, Amount: monthly, Due: due || len(selected) == 0})
		}
	case ModeInstallments:
		annual := decimal.NewFromInt(tariff.AnnualTuitionFee)
		for i, tier := range plan.InstallmentTiers {
			if tier.Number <= 0 {
				continue
			}
			label := strings.TrimSpace(tier.Name)
			if label == "" {
				label = TrancheLabel(tier.Number)
			}
			emit(PayableItem{
				ID:     TrancheID(tier.Number),
				Label:  label,
				Amount: roundMoney(annual.Mul(tier.PercentageOfAnnual).Div(hundred)),
				Due:    ob.InstallmentCount <= 0 || i < ob.InstallmentCount,
			})
		}
	}

	for _, key := range ob.SelectedStandardOptions {
		if strings.TrimSpace(string(key)) == "" {
			continue
		}
		emit(PayableItem{ID: OptionID(string(key)), Label: key.Label(), Amount: standardPrice(catalog, key), Due: true})
	}
	for _, id := range ob.SelectedCustomOptionIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		item := PayableItem{ID: OptionID(id), Label: strings.TrimSpace(id), Due: true}
		if opt, ok := catalog.CustomByID(id); ok {
			item.Amount = opt.Price
			if name := strings.TrimSpace(opt.Name); name != "" {
				item.Label = name
			}
		}
		emit(item)
	}
	return items
}

func monthSelection(months []string) map[string]struct{} {
	out := make(map[string]struct{}, len(months))
	for _, m := range months {
		if key := normalizeKey(m); key != "" {
			out[key] = struct{}{}
		}
	}
	return out
}

func standardPrice(catalog OptionCatalog, key OptionKey) Money {
	if price, ok := catalog.Standard[key]; ok {
		return price
	}
	want := normalizeKey(string(key))
	for k, price := range catalog.Standard {
		if normalizeKey(string(k)) == want {
			return price
		}
	}
	return 0
}

// roundMoney rounds to the nearest currency unit, halves away from zero.
func roundMoney(d decimal.Decimal) Money {
	return d.Round(0).IntPart()
}
