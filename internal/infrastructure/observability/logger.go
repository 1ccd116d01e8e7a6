package observability

import (
	"io"
	"os"
	"strings"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/rs/zerolog"
)

func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	logLevel := parseLogLevel(level)

	return zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func WithContext(logger zerolog.Logger, ctx map[string]any) zerolog.Logger {
	l := logger.With()
	for k, v := range ctx {
		l = l.Interface(k, v)
	}
	return l.Logger()
}

// ForNotification returns a child logger carrying the correlation fields of a
// notification. Nothing from the additional data is logged.
func ForNotification(logger zerolog.Logger, n *notification.Notification) zerolog.Logger {
	item := n.NotificationRequestItem
	return logger.With().
		Str("merchant_reference", item.MerchantReference).
		Str("psp_reference", item.PSPReference).
		Str("event_code", item.EventCode).
		Bool("success", bool(item.Success)).
		Str("merchant_account", item.MerchantAccountCode).
		Logger()
}
