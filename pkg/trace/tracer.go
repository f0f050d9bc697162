// Package trace wires lightweight OpenTelemetry tracing around run phases.
// Spans are not shipped anywhere; they are recorded in-process and exported
// as a per-run timing report next to the run report.
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// REPORT_FILE_NAME is the timing report written into the run output
// directory on shutdown.
const REPORT_FILE_NAME = "trace-report.json"

var (
	tracer    trace.Tracer
	recorder  *spanRecorder
	reportDir string
)

type spanRecorder struct {
	spans []spanRecord
}

type spanRecord struct {
	Name     string
	Duration time.Duration
	Start    time.Time
	End      time.Time
	SpanID   string
	ParentID string
}

// SpanInfo is one phase in the exported timing report, with nested child
// phases.
type SpanInfo struct {
	Name       string     `json:"name"`
	DurationMs float64    `json:"durationMs"`
	Start      string     `json:"start"`
	End        string     `json:"end"`
	Children   []SpanInfo `json:"children,omitempty"`
}

// TimingReport is the JSON document exported after a traced run.
type TimingReport struct {
	Spans           []SpanInfo `json:"spans"`
	TotalDurationMs float64    `json:"totalDurationMs"`
	Timestamp       string     `json:"timestamp"`
}

// InitTracer initializes OpenTelemetry tracing. Disabled tracing returns a
// no-op shutdown so callers never need to branch.
func InitTracer(serviceName string, enabled bool, outDir string) (func(), error) {
	if !enabled {
		return func() {}, nil
	}

	recorder = &spanRecorder{spans: make([]spanRecord, 0)}
	reportDir = outDir

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(&recordingSpanProcessor{recorder: recorder}),
	)

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(serviceName)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
		_ = ExportReport()
	}

	return shutdown, nil
}

// StartSpan starts a new span, or passes the context through untouched when
// tracing is disabled.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name)
}

// recordingSpanProcessor keeps ended spans in memory for the timing report.
type recordingSpanProcessor struct {
	recorder *spanRecorder
}

func (p *recordingSpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {}

func (p *recordingSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if p.recorder == nil {
		return
	}
	parentID := ""
	if s.Parent().IsValid() {
		parentID = s.Parent().SpanID().String()
	}
	p.recorder.spans = append(p.recorder.spans, spanRecord{
		Name:     s.Name(),
		Duration: s.EndTime().Sub(s.StartTime()),
		Start:    s.StartTime(),
		End:      s.EndTime(),
		SpanID:   s.SpanContext().SpanID().String(),
		ParentID: parentID,
	})
}

func (p *recordingSpanProcessor) Shutdown(ctx context.Context) error   { return nil }
func (p *recordingSpanProcessor) ForceFlush(ctx context.Context) error { return nil }

// ExportReport writes the timing report into the configured directory.
// Nothing is written when tracing was disabled or no span ended.
func ExportReport() error {
	if recorder == nil || len(recorder.spans) == 0 || reportDir == "" {
		return nil
	}

	roots := buildHierarchy(recorder.spans)

	totalDurationMs := 0.0
	for _, span := range roots {
		totalDurationMs += span.DurationMs
	}

	report := TimingReport{
		Spans:           roots,
		TotalDurationMs: totalDurationMs,
		Timestamp:       time.Now().Format(time.RFC3339Nano),
	}

	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal timing report: %w", err)
	}

	reportPath := filepath.Join(reportDir, REPORT_FILE_NAME)
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing report: %w", err)
	}

	return nil
}

// buildHierarchy nests flat span records under their parents. Children are
// attached before roots are collected so late-ending parents still carry
// their subtrees.
func buildHierarchy(records []spanRecord) []SpanInfo {
	spanMap := make(map[string]*SpanInfo, len(records))
	for _, record := range records {
		spanMap[record.SpanID] = &SpanInfo{
			Name:       record.Name,
			DurationMs: float64(record.Duration.Microseconds()) / 1000.0,
			Start:      record.Start.Format(time.RFC3339Nano),
			End:        record.End.Format(time.RFC3339Nano),
		}
	}

	for _, record := range records {
		if record.ParentID == "" {
			continue
		}
		if parent, exists := spanMap[record.ParentID]; exists {
			parent.Children = append(parent.Children, *spanMap[record.SpanID])
		}
	}

	var roots []SpanInfo
	for _, record := range records {
		if record.ParentID == "" {
			roots = append(roots, *spanMap[record.SpanID])
		}
	}

	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Start < roots[j].Start
	})

	return roots
}
