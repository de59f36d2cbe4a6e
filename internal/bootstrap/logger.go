package bootstrap

import (
	"path/filepath"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/logging"
)

// InitLogger builds the process-wide structured logger: console + OTel
// bridge + the session's logs/events-<date>.jsonl tee, and
// installs it as the package-level global logger.
func InitLogger(cfg *Config, runDate string) core.ILogger {
	eventLogPath := filepath.Join(cfg.App.SessionDir, "logs", "events-"+runDate+".jsonl")

	logger, err := logging.NewZapLoggerWithEventLog(cfg.System.LogLevel, eventLogPath)
	if err != nil {
		// Event log directory could not be created; still run with
		// console+OTel logging rather than fail startup over it.
		logger, _ = logging.NewZapLogger(cfg.System.LogLevel)
	}

	logging.SetGlobalLogger(logger)
	return logger
}
