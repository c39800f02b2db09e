package agent

import (
	"context"
	"log/slog"
	"time"
)

// KeyFetcher reads the translation credential from the CRUD service.
type KeyFetcher interface {
	FetchAPIKey(ctx context.Context) (string, error)
}

const fetchKeyTimeout = 5 * time.Second

// ResolveAPIKey prefers the key stored by the CRUD service and falls back to
// the configured keys in order. It never fails: an empty result leaves the
// translator unconfigured and every request gets ReplyTranslationFailed.
func ResolveAPIKey(ctx context.Context, f KeyFetcher, logger *slog.Logger, fallbacks ...string) string {
	if f != nil {
		ctx, cancel := context.WithTimeout(ctx, fetchKeyTimeout)
		defer cancel()

		key, err := f.FetchAPIKey(ctx)
		if err == nil {
			logger.Info("llm api key loaded from crud service")
			return key
		}
		logger.Warn("crud service has no llm api key, using local configuration", "error", err)
	}

	for _, key := range fallbacks {
		if key != "" {
			return key
		}
	}
	logger.Error("no llm api key configured")
	return ""
}
