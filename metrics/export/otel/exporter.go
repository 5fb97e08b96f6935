package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is satisfied by *go2fa.Engine.
type MetricsSource interface {
	MetricsSnapshot() go2fa.MetricsSnapshot
	AuditDropped() uint64
}

// Attribute keys carried by the 2FA instruments.
const (
	OutcomeKey = attribute.Key("outcome")
	FactorKey  = attribute.Key("factor")
	FaultKey   = attribute.Key("fault")
	BoundKey   = attribute.Key("le")
)

// point maps one engine counter onto an attribute set of a shared instrument.
type point struct {
	id    go2fa.MetricID
	attrs attribute.Set
}

func outcome(id go2fa.MetricID, value string, extra ...attribute.KeyValue) point {
	kvs := append([]attribute.KeyValue{OutcomeKey.String(value)}, extra...)
	return point{id: id, attrs: attribute.NewSet(kvs...)}
}

type instrumentDef struct {
	name        string
	unit        string
	description string
	points      []point
}

// instruments groups the engine counters by 2FA concern. Every counter in
// internaldefs.CounterDefs appears exactly once.
var instruments = []instrumentDef{
	{
		name:        "go2fa.enrollments",
		unit:        "{enrollment}",
		description: "Enrollment steps: started, confirmed, rejected at confirmation, or pending secret expired.",
		points: []point{
			outcome(go2fa.MetricEnrollmentStarted, "started"),
			outcome(go2fa.MetricEnrollmentConfirmed, "confirmed"),
			outcome(go2fa.MetricEnrollmentFailed, "failed"),
			outcome(go2fa.MetricPendingExpired, "expired"),
		},
	},
	{
		name:        "go2fa.verifications",
		unit:        "{verification}",
		description: "Second-factor checks. Accepted checks name the factor that matched.",
		points: []point{
			outcome(go2fa.MetricVerifyTOTPSuccess, "success", FactorKey.String(string(go2fa.FactorTOTP))),
			outcome(go2fa.MetricVerifyBackupCodeSuccess, "success", FactorKey.String(string(go2fa.FactorBackupCode))),
			outcome(go2fa.MetricVerifyFailure, "failure"),
		},
	},
	{
		name:        "go2fa.totp.replays",
		unit:        "{code}",
		description: "TOTP codes refused because their time step was already accepted.",
		points:      []point{{id: go2fa.MetricReplayDetected, attrs: attribute.NewSet()}},
	},
	{
		name:        "go2fa.backup_codes.regenerations",
		unit:        "{regeneration}",
		description: "Backup code set replacements. A success invalidates every earlier code.",
		points: []point{
			outcome(go2fa.MetricBackupCodesRegenerated, "success"),
			outcome(go2fa.MetricBackupCodesRegenerateFailed, "failure"),
		},
	},
	{
		name:        "go2fa.disables",
		unit:        "{request}",
		description: "Requests to turn 2FA off. A success wipes the secret and every backup code.",
		points: []point{
			outcome(go2fa.MetricDisableSuccess, "success"),
			outcome(go2fa.MetricDisableFailure, "failure"),
		},
	},
	{
		name:        "go2fa.profile_store.faults",
		unit:        "{fault}",
		description: "Profile writes retried on a version conflict and backend calls that failed.",
		points: []point{
			{id: go2fa.MetricStoreConflict, attrs: attribute.NewSet(FaultKey.String("conflict"))},
			{id: go2fa.MetricStoreError, attrs: attribute.NewSet(FaultKey.String("error"))},
		},
	},
}

type observed struct {
	def        instrumentDef
	instrument metric.Int64ObservableCounter
}

// Exporter owns the callback registration; Close unregisters it.
type Exporter struct {
	source       MetricsSource
	registration metric.Registration
	counters     []observed
	latency      metric.Int64ObservableGauge
	latencySets  []attribute.Set
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers the 2FA instruments on meter. Operation latency is a
// gauge of cumulative bucket counts keyed by "le", the last bound being +Inf.
func NewExporter(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source, latencySets: latencyBounds()}
	observables := make([]metric.Observable, 0, len(instruments)+2)

	for _, def := range instruments {
		ins, err := meter.Int64ObservableCounter(def.name,
			metric.WithUnit(def.unit),
			metric.WithDescription(def.description),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", def.name, err)
		}
		e.counters = append(e.counters, observed{def: def, instrument: ins})
		observables = append(observables, ins)
	}

	latency, err := meter.Int64ObservableGauge("go2fa.operation.latency",
		metric.WithUnit("{operation}"),
		metric.WithDescription("Engine operations that reached the profile store, counted at or below each latency bound in seconds."),
	)
	if err != nil {
		return nil, fmt.Errorf("create go2fa.operation.latency: %w", err)
	}
	e.latency = latency
	observables = append(observables, latency)

	dropped, err := meter.Int64ObservableCounter("go2fa.audit.dropped",
		metric.WithUnit("{event}"),
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create go2fa.audit.dropped: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		for _, p := range c.def.points {
			o.ObserveInt64(c.instrument, int64(snap.Counters[p.id]), metric.WithAttributeSet(p.attrs))
		}
	}
	cumulative := internaldefs.CumulativeBuckets(snap.Histograms[go2fa.MetricOperationLatency])
	for i, set := range e.latencySets {
		o.ObserveInt64(e.latency, int64(cumulative[i]), metric.WithAttributeSet(set))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func latencyBounds() []attribute.Set {
	sets := make([]attribute.Set, 0, len(internaldefs.HistogramBounds)+1)
	for _, b := range internaldefs.HistogramBounds {
		sets = append(sets, attribute.NewSet(BoundKey.String(strconv.FormatFloat(b, 'g', -1, 64))))
	}
	return append(sets, attribute.NewSet(BoundKey.String("+Inf")))
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
