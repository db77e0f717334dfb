package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StoreReasonDeadlineExceeded     = "deadline_exceeded"
	StoreReasonLockTimeout          = "db_lock_timeout"
	StoreReasonSerializationFailure = "serialization_failure"
	StoreReasonUniqueViolation      = "unique_violation"
	StoreReasonNotFound             = "not_found"
	StoreReasonUnknown              = "unknown"
)

const (
	ResourceAssignment    = "patient_assignment"
	ResourceSessionNote   = "session_note"
	ResourceClinicalEntry = "clinical_entry"
	ResourceMoodEntry     = "mood_entry"
	ResourceInvitation    = "invitation"
	ResourcePlanChange    = "plan_change_request"
)

// StoreMetrics tracks write contention on the clinical tables. Unique
// violations here are expected: they are how concurrent writers lose races.
type StoreMetrics struct {
	writes      *prometheus.CounterVec
	writeErrors *prometheus.CounterVec
	txDuration  *prometheus.HistogramVec
	lockWait    *prometheus.HistogramVec
}

// NewStoreMetrics registers the store collectors on registerer. Collectors
// already registered by an earlier call are reused.
func NewStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "carelog"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carelog_store_writes_total",
		Help:        "Committed writes per clinical resource.",
		ConstLabels: constLabels,
	}, []string{"resource", "operation"})
	writeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carelog_store_write_errors_total",
		Help:        "Rejected writes per clinical resource by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"resource", "reason"})
	txDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "carelog_store_tx_duration_seconds",
		Help:        "Transaction latency per clinical resource.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "carelog_store_lock_wait_seconds",
		Help:        "Row lock wait time for SELECT FOR UPDATE contention.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"resource"})

	return &StoreMetrics{
		writes:      registerCounterVec(registerer, writes),
		writeErrors: registerCounterVec(registerer, writeErrors),
		txDuration:  registerHistogramVec(registerer, txDuration),
		lockWait:    registerHistogramVec(registerer, lockWait),
	}
}

func registerCounterVec(registerer prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogramVec(registerer prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(h); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return h
}

// IncWrite counts a committed write.
func (m *StoreMetrics) IncWrite(resource, operation string) {
	if m == nil || m.writes == nil {
		return
	}
	m.writes.WithLabelValues(resource, operation).Inc()
}

// IncWriteError counts a rejected write, classified by ClassifyStoreError.
func (m *StoreMetrics) IncWriteError(resource string, err error) {
	if m == nil || m.writeErrors == nil || err == nil {
		return
	}
	m.writeErrors.WithLabelValues(resource, ClassifyStoreError(err)).Inc()
}

func (m *StoreMetrics) ObserveTx(resource string, duration time.Duration) {
	if m == nil || m.txDuration == nil {
		return
	}
	m.txDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

func (m *StoreMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyStoreError maps storage errors to low-cardinality reasons.
func ClassifyStoreError(err error) string {
	if err == nil {
		return StoreReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StoreReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoreReasonNotFound
	}
	if hasPGCode(err, "55P03") {
		return StoreReasonLockTimeout
	}
	if hasPGCode(err, "40001") {
		return StoreReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return StoreReasonUniqueViolation
	}
	return StoreReasonUnknown
}

// IsStoreErrorRetryable reports whether a transaction may be retried as-is.
func IsStoreErrorRetryable(err error) bool {
	return hasPGCode(err, "40001") || hasPGCode(err, "55P03")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
