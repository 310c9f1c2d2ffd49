package observability

import (
	"github.com/danmuck/ledgerlink/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime logging profile and tags the global
// logger with app and node.
func InitLogger(app, node string) zerolog.Logger {
	logging.ConfigureRuntime()
	ctx := log.Logger.With().Str("app", app)
	if node != "" {
		ctx = ctx.Str("node", node)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
