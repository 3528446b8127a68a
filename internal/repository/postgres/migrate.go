package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the tables and indexes the store needs. It is idempotent.
func Migrate(ctx context.Context, db *DB) error {
	statements := strings.Split(schemaSQL, ";")
	applied := 0
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", applied+1, err)
		}
		applied++
	}
	log.Info().Int("statements", applied).Msg("schema migrated")
	return nil
}
