// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := DefaultConfig()
	assert.Equal(t, "dcopsim", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterPrometheus, cfg.MetricExporter)
	assert.Equal(t, 0.25, cfg.SampleRate)
}

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		trace   string
		metric  string
		wantErr error
	}{
		{"none", ExporterNone, ExporterNone, nil},
		{"empty means none", "", "", nil},
		{"stdout", ExporterStdout, ExporterStdout, nil},
		{"unknown trace exporter", "zipkin", ExporterNone, ErrUnknownExporter},
		{"unknown metric exporter", ExporterNone, "statsd", ErrUnknownExporter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TraceExporter, cfg.MetricExporter = tt.trace, tt.metric

			shutdown, err := Init(context.Background(), cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_PrometheusHandlerServesMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter, cfg.MetricExporter = ExporterNone, ExporterPrometheus

	for i := 0; i < 2; i++ {
		shutdown, err := Init(context.Background(), cfg)
		require.NoError(t, err, "repeated Init must not collide")
		t.Cleanup(func() { _ = shutdown(context.Background()) })
	}

	m, err := NewMetrics(otel.Meter("telemetry_test"))
	require.NoError(t, err)
	m.RoundsTotal.Add(context.Background(), 3)

	handler := MetricsHandler()
	require.NotNil(t, handler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dcop_rounds_total")
}

func TestNewMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.StallsTotal.Add(ctx, 1)
	m.Cost.Record(ctx, 2)
	m.RoundMessages.Record(ctx, 12)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names["dcop_stalls_total"])
	assert.True(t, names["dcop_cost"])
	assert.True(t, names["dcop_round_messages"])
}

func TestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "Simulation.Round")
	assert.NotEmpty(t, TraceID(ctx))
	AddSpanEvent(span, "stalled", attribute.Int("pending", 2))
	RecordError(span, errors.New("boom"), attribute.String("phase", "tick"))
	span.End()

	_, ok := StartSpan(context.Background(), "Simulation.Run")
	SetSpanOK(ok)
	ok.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Events(), 2, "custom event plus the recorded error")
	assert.Equal(t, codes.Ok, ended[1].Status().Code)

	assert.Empty(t, TraceID(context.Background()))
	RecordError(nil, errors.New("ignored"))
	RecordError(span, nil)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
