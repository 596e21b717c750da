package engine

import (
	"log/slog"

	"github.com/leengari/cardinaldb/internal/logging"
)

// LoggingObserver writes every session event to a logger at debug level
type LoggingObserver struct {
	logger *slog.Logger
}

func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logging.OrDefault(logger)}
}

func (lo *LoggingObserver) OnEvent(event Event) {
	lo.logger.Debug("query_lifecycle",
		"event", event.Type,
		"tx_id", event.TxID,
		"timestamp", event.Timestamp,
		"data", event.Data,
	)
}
