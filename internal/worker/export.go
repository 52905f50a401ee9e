package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/mtlprog/livefolio/internal/domain"
)

// ResultSource provides the current valuation.
type ResultSource interface {
	Result() domain.ValuationResult
}

// Exporter writes a valuation somewhere outside the process.
type Exporter interface {
	Export(ctx context.Context, result domain.ValuationResult) error
}

// ExportWorker exports the current valuation on a cron schedule.
type ExportWorker struct {
	source    ResultSource
	schedule  cron.Schedule
	exporters []Exporter
}

// NewExportWorker creates an ExportWorker. schedule is a standard 5-field cron expression or a
// descriptor such as "@hourly" or "@every 15m".
func NewExportWorker(source ResultSource, schedule string, exporters ...Exporter) (*ExportWorker, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing export schedule %q: %w", schedule, err)
	}
	return &ExportWorker{
		source:    source,
		schedule:  sched,
		exporters: exporters,
	}, nil
}

// Run schedules exports until the context is cancelled, then waits for a running export to finish.
func (w *ExportWorker) Run(ctx context.Context) {
	slog.Info("ExportWorker: starting", "exporters", len(w.exporters))

	c := cron.New()
	c.Schedule(w.schedule, cron.FuncJob(func() { w.ExportOnce(ctx) }))
	c.Start()

	<-ctx.Done()
	slog.Info("ExportWorker: shutting down")
	<-c.Stop().Done()
}

// ExportOnce runs every exporter against the current valuation. Exporter failures are logged
// and do not stop the remaining exporters. It returns the number of successful exports.
func (w *ExportWorker) ExportOnce(ctx context.Context) int {
	result := w.source.Result()
	if result.SnapshotAt.IsZero() {
		slog.Warn("ExportWorker: no holdings snapshot yet, skipping export")
		return 0
	}

	ok := 0
	for _, e := range w.exporters {
		if err := e.Export(ctx, result); err != nil {
			slog.Error("ExportWorker: export failed", "exporter", fmt.Sprintf("%T", e), "error", err)
			continue
		}
		ok++
	}
	slog.Info("ExportWorker: export completed", "sequence", result.Sequence, "succeeded", ok, "total", len(w.exporters))
	return ok
}
