package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("otel: nil meter")
	ErrNilSource = errors.New("otel: nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() phoneauth.MetricsSnapshot
	AuditDropped() uint64
	AuditFailed() uint64
}

type counterInstrument struct {
	id  phoneauth.MetricID
	ins metric.Int64ObservableCounter
}

type histogramInstruments struct {
	id      phoneauth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine counters as observable OpenTelemetry
// instruments. Histograms are flattened into one cumulative gauge per bucket.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []counterInstrument
	histograms   []histogramInstruments
	auditDropped metric.Int64ObservableCounter
	auditFailed  metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter for engine.
func NewOTelExporter(meter metric.Meter, engine *phoneauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	observables, err := e.createInstruments(meter)
	if err != nil {
		return nil, err
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) createInstruments(meter metric.Meter) ([]metric.Observable, error) {
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, ins: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := histogramInstruments{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Cumulative bucket count."))
			if err != nil {
				return nil, fmt.Errorf("otel: gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("otel: gauge %s_count: %w", def.Name, err)
		}
		h.count = count
		observables = append(observables, count)
		e.histograms = append(e.histograms, h)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."))
	if err != nil {
		return nil, fmt.Errorf("otel: counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped

	failed, err := meter.Int64ObservableCounter(internaldefs.AuditFailedName,
		metric.WithDescription("Audit events lost to a panicking sink."))
	if err != nil {
		return nil, fmt.Errorf("otel: counter %s: %w", internaldefs.AuditFailedName, err)
	}
	e.auditFailed = failed
	return append(observables, dropped, failed), nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(v))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	o.ObserveInt64(e.auditFailed, int64(e.source.AuditFailed()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
