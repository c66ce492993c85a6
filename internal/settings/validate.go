package settings

import (
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/tuition-ledger/internal/ledger"
)

// ErrInvalidSettings wraps structural problems that make a snapshot unusable.
var ErrInvalidSettings = errors.New("settings: invalid snapshot")

// Warning is a non-fatal finding about the reference data.
type Warning struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

var fullPlan = decimal.NewFromInt(100)

// Validate checks field constraints and reports drift that the engine tolerates, such
// as tier percentages not summing to 100.
func Validate(v *validator.Validate, snap ledger.Snapshot) ([]Warning, error) {
	if v == nil {
		v = validator.New()
	}
	var errs []error
	for name, tariff := range snap.Tariffs {
		if err := v.Struct(tariff); err != nil {
			errs = append(errs, fmt.Errorf("tariff %q: %w", name, err))
		}
	}
	if err := v.Struct(snap.Plan); err != nil {
		errs = append(errs, fmt.Errorf("plan: %w", err))
	}
	if err := v.Struct(snap.Catalog); err != nil {
		errs = append(errs, fmt.Errorf("option catalog: %w", err))
	}
	for key, price := range snap.Catalog.Standard {
		if price < 0 {
			errs = append(errs, fmt.Errorf("standard option %q: negative price", key))
		}
	}
	for _, tier := range snap.Plan.InstallmentTiers {
		if tier.PercentageOfAnnual.IsNegative() {
			errs = append(errs, fmt.Errorf("tier %d: negative percentage", tier.Number))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}

	var warnings []Warning
	if tiers := snap.Plan.InstallmentTiers; len(tiers) > 0 {
		if total := snap.Plan.PercentTotal(); !total.Equal(fullPlan) {
			warnings = append(warnings, Warning{
				Check:   "plan_percent_total",
				Message: fmt.Sprintf("installment tiers sum to %s%% of annual tuition", total.String()),
			})
		}
		seen := map[int]bool{}
		for _, tier := range tiers {
			if seen[tier.Number] {
				warnings = append(warnings, Warning{
					Check:   "plan_duplicate_tier",
					Message: fmt.Sprintf("tier %d defined more than once; the first definition wins", tier.Number),
				})
			}
			seen[tier.Number] = true
		}
	}
	customIDs := map[string]bool{}
	for _, opt := range snap.Catalog.Custom {
		id := strings.ToLower(strings.TrimSpace(opt.ID))
		if customIDs[id] {
			warnings = append(warnings, Warning{
				Check:   "catalog_duplicate_custom_option",
				Message: fmt.Sprintf("custom option %q defined more than once", opt.ID),
			})
		}
		customIDs[id] = true
	}
	return warnings, nil
}
