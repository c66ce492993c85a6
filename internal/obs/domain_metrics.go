package obs

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// LedgerReconciliationsTotal counts reconciliations, split by whether the class had a tariff.
	LedgerReconciliationsTotal *prometheus.CounterVec
	// LedgerPaymentsRecordedTotal counts appended payment records per item namespace.
	LedgerPaymentsRecordedTotal *prometheus.CounterVec
	// LedgerPaymentAmountTotal sums recorded amounts per item namespace, in currency units.
	LedgerPaymentAmountTotal *prometheus.CounterVec
	// LedgerUnattributedPaymentsTotal counts payment records that settle no current item.
	LedgerUnattributedPaymentsTotal prometheus.Counter
	// LedgerCohortDuration records class-wide aggregation latency in milliseconds.
	LedgerCohortDuration prometheus.Histogram
	// SettingsCacheTotal counts settings snapshot lookups by outcome (hit, miss, error).
	SettingsCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers ledger Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		LedgerReconciliationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_reconciliations_total",
			Help:      "Count of student reconciliations by pricing state.",
		}, []string{"priced"})
		LedgerPaymentsRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_payments_recorded_total",
			Help:      "Count of payment records appended to the log.",
		}, []string{"namespace"})
		LedgerPaymentAmountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_payment_amount_total",
			Help:      "Sum of recorded payment amounts in currency units.",
		}, []string{"namespace"})
		LedgerUnattributedPaymentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_unattributed_payments_total",
			Help:      "Payment records seen during reconciliation that settle no current item.",
		})
		LedgerCohortDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_cohort_duration_ms",
			Help:      "Latency of class-wide ledger aggregation in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		})
		SettingsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_cache_total",
			Help:      "Settings snapshot cache lookups by outcome.",
		}, []string{"result"})

		mustRegisterCollector(reg, LedgerReconciliationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				LedgerReconciliationsTotal = v
			}
		})
		mustRegisterCollector(reg, LedgerPaymentsRecordedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				LedgerPaymentsRecordedTotal = v
			}
		})
		mustRegisterCollector(reg, LedgerPaymentAmountTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				LedgerPaymentAmountTotal = v
			}
		})
		mustRegisterCollector(reg, LedgerUnattributedPaymentsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				LedgerUnattributedPaymentsTotal = v
			}
		})
		mustRegisterCollector(reg, LedgerCohortDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				LedgerCohortDuration = v
			}
		})
		mustRegisterCollector(reg, SettingsCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettingsCacheTotal = v
			}
		})
	})
}

// ObserveReconciliation records one reconciliation. Safe to call before registration.
func ObserveReconciliation(priced bool, unattributed int) {
	if LedgerReconciliationsTotal != nil {
		LedgerReconciliationsTotal.WithLabelValues(strconv.FormatBool(priced)).Inc()
	}
	if LedgerUnattributedPaymentsTotal != nil && unattributed > 0 {
		LedgerUnattributedPaymentsTotal.Add(float64(unattributed))
	}
}

// ObservePaymentRecorded records one appended payment record.
func ObservePaymentRecorded(namespace string, amount int64) {
	if LedgerPaymentsRecordedTotal != nil {
		LedgerPaymentsRecordedTotal.WithLabelValues(namespace).Inc()
	}
	if LedgerPaymentAmountTotal != nil && amount > 0 {
		LedgerPaymentAmountTotal.WithLabelValues(namespace).Add(float64(amount))
	}
}

// ObserveCohort records the latency of one class-wide aggregation.
func ObserveCohort(d time.Duration) {
	if LedgerCohortDuration != nil {
		LedgerCohortDuration.Observe(DurationMillis(d))
	}
}

// ObserveSettingsCache records a settings cache lookup outcome.
func ObserveSettingsCache(result string) {
	if SettingsCacheTotal != nil {
		SettingsCacheTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
