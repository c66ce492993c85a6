package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// EnrollmentType distinguishes first inscriptions from renewals.
type EnrollmentType string

const (
	EnrollmentNew     EnrollmentType = "new"
	EnrollmentRenewal EnrollmentType = "renewal"
)

// PaymentMode selects how annual tuition is split into payable items.
type PaymentMode string

const (
	ModeMonthly      PaymentMode = "monthly"
	ModeInstallments PaymentMode = "installments"
)

// PaymentType classifies a recorded payment.
type PaymentType string

const (
	PaymentInscription PaymentType = "inscription"
	PaymentTuition     PaymentType = "tuition"
	PaymentOther       PaymentType = "other"
)

// Namespace partitions payable items so that keys from different families never collide.
type Namespace string

const (
	NamespaceInscription Namespace = "inscription"
	NamespaceMonth       Namespace = "month"
	NamespaceTranche     Namespace = "tranche"
	NamespaceOption      Namespace = "option"
)

// Valid reports whether the namespace is one of the known families.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceInscription, NamespaceMonth, NamespaceTranche, NamespaceOption:
		return true
	default:
		return false
	}
}

// ErrInvalidIdentity is returned when an item identity cannot be parsed.
var ErrInvalidIdentity = errors.New("ledger: invalid item identity")

// ItemIdentity identifies one obligation. Two items are the same obligation iff
// their normalised identities are equal.
type ItemIdentity struct {
	Namespace Namespace
	Key       string
}

// InscriptionID is the identity of the single inscription item.
var InscriptionID = ItemIdentity{Namespace: NamespaceInscription, Key: string(NamespaceInscription)}

// MonthID returns the identity of the tuition month with the given name.
func MonthID(name string) ItemIdentity {
	return ItemIdentity{Namespace: NamespaceMonth, Key: normalizeKey(name)}
}

// TrancheID returns the identity of installment tranche n.
func TrancheID(n int) ItemIdentity {
	return ItemIdentity{Namespace: NamespaceTranche, Key: fmt.Sprintf("%d", n)}
}

// OptionID returns the identity of a standard option key or custom option id.
func OptionID(key string) ItemIdentity {
	return ItemIdentity{Namespace: NamespaceOption, Key: normalizeKey(key)}
}

// String renders the identity as "namespace:key".
func (id ItemIdentity) String() string {
	return string(id.Namespace) + ":" + id.Key
}

// Normalized returns the identity with its key folded for comparison.
func (id ItemIdentity) Normalized() ItemIdentity {
	return ItemIdentity{Namespace: Namespace(strings.ToLower(strings.TrimSpace(string(id.Namespace)))), Key: normalizeKey(id.Key)}
}

// ParseItemIdentity parses the "namespace:key" form produced by String.
func ParseItemIdentity(value string) (ItemIdentity, error) {
	ns, key, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return ItemIdentity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, value)
	}
	id := ItemIdentity{Namespace: Namespace(ns), Key: key}.Normalized()
	if !id.Namespace.Valid() || id.Key == "" {
		return ItemIdentity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, value)
	}
	return id, nil
}

// MarshalText renders identities as "namespace:key" on the wire.
func (id ItemIdentity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the "namespace:key" wire form.
func (id *ItemIdentity) UnmarshalText(text []byte) error {
	parsed, err := ParseItemIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Tariff holds the per-class base amounts.
type Tariff struct {
	Classe           string `json:"classe" validate:"required"`
	InscriptionFee   Money  `json:"inscriptionFee" validate:"gte=0"`
	AnnualTuitionFee Money  `json:"annualTuitionFee" validate:"gte=0"`
}

// TariffTable maps class names to tariffs.
type TariffTable map[string]Tariff

// InstallmentTier is one school-wide tranche definition.
type InstallmentTier struct {
	Number             int             `json:"number" validate:"gt=0"`
	Name               string          `json:"name"`
	PercentageOfAnnual decimal.Decimal `json:"percentageOfAnnual"`
}

// PlanConfig is the school-wide payment plan configuration.
type PlanConfig struct {
	InstallmentTiers []InstallmentTier `json:"installmentTiers" validate:"dive"`
	MonthlyDueDay    int               `json:"monthlyDueDay" validate:"gte=0,lte=31"`
}

// PercentTotal sums the tier percentages. Configurations are not required to total 100.
func (p PlanConfig) PercentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, tier := range p.InstallmentTiers {
		total = total.Add(tier.PercentageOfAnnual)
	}
	return total
}

// OptionKey names a fixed standard option.
type OptionKey string

const (
	OptionTenueScolaire OptionKey = "tenueScolaire"
	OptionCarteScolaire OptionKey = "carteScolaire"
	OptionCooperative   OptionKey = "cooperative"
	OptionTenueEPS      OptionKey = "tenueEPS"
	OptionAssurance     OptionKey = "assurance"
)

// StandardOptions lists the fixed options in display order.
var StandardOptions = []OptionKey{
	OptionTenueScolaire,
	OptionCarteScolaire,
	OptionCooperative,
	OptionTenueEPS,
	OptionAssurance,
}

var standardOptionLabels = map[OptionKey]string{
	OptionTenueScolaire: "Tenue scolaire",
	OptionCarteScolaire: "Carte scolaire",
	OptionCooperative:   "Coopérative",
	OptionTenueEPS:      "Tenue EPS",
	OptionAssurance:     "Assurance",
}

// Label returns the display label of a standard option.
func (k OptionKey) Label() string {
	if label, ok := standardOptionLabels[k]; ok {
		return label
	}
	return string(k)
}

// CustomOption is a school-defined supplementary option. ID is stable; Name may change.
type CustomOption struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Price Money  `json:"price" validate:"gte=0"`
}

// OptionCatalog prices standard and custom options.
type OptionCatalog struct {
	Standard map[OptionKey]Money `json:"standard"`
	Custom   []CustomOption      `json:"custom" validate:"dive"`
}

// CustomByID returns the custom option with the given id.
func (c OptionCatalog) CustomByID(id string) (CustomOption, bool) {
	want := normalizeKey(id)
	for _, opt := range c.Custom {
		if normalizeKey(opt.ID) == want {
			return opt, true
		}
	}
	return CustomOption{}, false
}

// Snapshot bundles the reference data every engine call reads.
type Snapshot struct {
	Tariffs  TariffTable   `json:"tariffs"`
	Plan     PlanConfig    `json:"plan"`
	Catalog  OptionCatalog `json:"catalog"`
	LoadedAt time.Time     `json:"loadedAt"`
}

// StudentObligation is the plan a student has chosen, assembled from the profile at read time.
type StudentObligation struct {
	StudentID               string         `json:"studentId"`
	EnrollmentType          EnrollmentType `json:"enrollmentType"`
	Classe                  string         `json:"classe"`
	PaymentMode             PaymentMode    `json:"paymentMode"`
	SelectedMonths          []string       `json:"selectedMonths,omitempty"`
	InstallmentCount        int            `json:"installmentCount,omitempty"`
	SelectedStandardOptions []OptionKey    `json:"selectedStandardOptions,omitempty"`
	SelectedCustomOptionIDs []string       `json:"selectedCustomOptionIds,omitempty"`
}

// PayableItem is one priced obligation unit.
type PayableItem struct {
	ID     ItemIdentity `json:"id"`
	Label  string       `json:"label"`
	Amount Money        `json:"amount"`
	// Due marks items the student's selection currently expects; it never affects price.
	Due bool `json:"due"`
}

// PaymentRecord is one entry of the append-only payment log.
type PaymentRecord struct {
	ID          string        `json:"id"`
	StudentID   string        `json:"studentId"`
	Amount      Money         `json:"amount"`
	Type        PaymentType   `json:"type"`
	PaidAt      time.Time     `json:"paidAt"`
	PaidMonths  []string      `json:"paidMonths,omitempty"`
	Description string        `json:"description,omitempty"`
	Item        *ItemIdentity `json:"item,omitempty"`
}
