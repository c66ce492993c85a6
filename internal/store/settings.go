package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/tuition-ledger/internal/ledger"
)

const (
	selectTariffs = `SELECT classe, inscription_fee, annual_tuition_fee FROM tariffs ORDER BY classe`
	selectTiers   = `SELECT number, name, percentage_of_annual::text FROM installment_tiers ORDER BY number`
	selectPlan    = `SELECT monthly_due_day FROM plan_settings WHERE id = 1`
	selectStdOpts = `SELECT option_key, price FROM standard_option_prices ORDER BY option_key`
	selectCustom  = `SELECT id, name, price FROM custom_options ORDER BY created_at, id`
)

// ReadSettings loads tariffs, the installment plan and the option catalog in one
// consistent read.
func (s *Store) ReadSettings(ctx context.Context) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{LoadedAt: s.now()}
	err := s.readOnly(ctx, func(tx pgx.Tx) error {
		var err error
		if snap.Tariffs, err = readTariffs(ctx, tx); err != nil {
			return fmt.Errorf("read tariffs: %w", err)
		}
		if snap.Plan, err = readPlan(ctx, tx); err != nil {
			return fmt.Errorf("read plan: %w", err)
		}
		if snap.Catalog, err = readCatalog(ctx, tx); err != nil {
			return fmt.Errorf("read option catalog: %w", err)
		}
		return nil
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

func readTariffs(ctx context.Context, tx pgx.Tx) (ledger.TariffTable, error) {
	rows, err := tx.Query(ctx, selectTariffs)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Tariff, error) {
		var t ledger.Tariff
		err := row.Scan(&t.Classe, &t.InscriptionFee, &t.AnnualTuitionFee)
		return t, err
	})
	if err != nil {
		return nil, err
	}
	table := make(ledger.TariffTable, len(list))
	for _, t := range list {
		table[t.Classe] = t
	}
	return table, nil
}

func readPlan(ctx context.Context, tx pgx.Tx) (ledger.PlanConfig, error) {
	var plan ledger.PlanConfig
	if err := tx.QueryRow(ctx, selectPlan).Scan(&plan.MonthlyDueDay); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return plan, err
	}
	rows, err := tx.Query(ctx, selectTiers)
	if err != nil {
		return plan, err
	}
	plan.InstallmentTiers, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.InstallmentTier, error) {
		var (
			tier ledger.InstallmentTier
			pct  string
		)
		if err := row.Scan(&tier.Number, &tier.Name, &pct); err != nil {
			return tier, err
		}
		parsed, err := decimal.NewFromString(pct)
		if err != nil {
			return tier, fmt.Errorf("tier %d percentage %q: %w", tier.Number, pct, err)
		}
		tier.PercentageOfAnnual = parsed
		return tier, nil
	})
	return plan, err
}

func readCatalog(ctx context.Context, tx pgx.Tx) (ledger.OptionCatalog, error) {
	catalog := ledger.OptionCatalog{Standard: map[ledger.OptionKey]ledger.Money{}}
	rows, err := tx.Query(ctx, selectStdOpts)
	if err != nil {
		return catalog, err
	}
	var (
		key   string
		price int64
	)
	_, err = pgx.ForEachRow(rows, []any{&key, &price}, func() error {
		catalog.Standard[ledger.OptionKey(key)] = price
		return nil
	})
	if err != nil {
		return catalog, err
	}
	rows, err = tx.Query(ctx, selectCustom)
	if err != nil {
		return catalog, err
	}
	catalog.Custom, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.CustomOption, error) {
		var opt ledger.CustomOption
		err := row.Scan(&opt.ID, &opt.Name, &opt.Price)
		return opt, err
	})
	return catalog, err
}
