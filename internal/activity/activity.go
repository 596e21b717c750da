// Package activity records how many rows each datastore reads, the
// figure usage is billed on.
package activity

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/leengari/cardinaldb/internal/logging"
)

// SystemDatastore holds engine metadata and is never billed
const SystemDatastore = ".systemdb"

// Log counts rows read per datastore. Totals are kept in memory and
// exported through the otel counter cardinaldb.rows.read.
type Log struct {
	rowsRead metric.Int64Counter
	logger   *slog.Logger

	mu     sync.Mutex
	totals map[string]int64
}

// New creates an activity log on the global meter provider
func New(logger *slog.Logger) (*Log, error) {
	meter := otel.Meter("github.com/leengari/cardinaldb/internal/activity")
	counter, err := meter.Int64Counter("cardinaldb.rows.read",
		metric.WithDescription("Rows returned by SELECT statements"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}
	return &Log{
		rowsRead: counter,
		logger:   logging.OrDefault(logger).With("component", "activity"),
		totals:   make(map[string]int64),
	}, nil
}

// Log records that a SELECT on ds returned rows rows
func (l *Log) Log(ctx context.Context, ds string, rows int) {
	if ds == SystemDatastore {
		return
	}
	l.rowsRead.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("cardinaldb.datastore", ds)))

	l.mu.Lock()
	l.totals[ds] += int64(rows)
	total := l.totals[ds]
	l.mu.Unlock()

	l.logger.Debug("rows read", "ds", ds, "rows", rows, "total", total)
}

// Total returns the rows read from ds since start
func (l *Log) Total(ds string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[ds]
}
