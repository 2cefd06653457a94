package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/buildforge/buildforge/pkg/persistence"
	"github.com/buildforge/buildforge/pkg/persistence/file"
	"github.com/buildforge/buildforge/pkg/persistence/postgresql"
)

// NewPersistence picks the store from the URL scheme: postgres:// for
// PostgreSQL, anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewStore(ctx, logger, databaseURL)
	default:
		return file.NewStore(databaseURL), nil
	}
}
