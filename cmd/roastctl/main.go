package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/app"
	"github.com/andresuchdata/roastery/internal/config"
	"github.com/andresuchdata/roastery/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

type appKey struct{}

func newDriverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "driver",
		Usage:   "Store driver: postgres, pgx or memory",
		EnvVars: []string{"DB_DRIVER"},
	}
}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string",
		EnvVars: []string{"DATABASE_URL"},
	}
}

// withApp wires the command's Before/After to open and close the application.
func withApp(cmd *cli.Command, migrate bool) *cli.Command {
	cmd.Flags = append([]cli.Flag{newDriverFlag(), newDBURLFlag()}, cmd.Flags...)
	cmd.Before = func(c *cli.Context) error { return openApp(c, migrate) }
	cmd.After = closeApp
	return cmd
}

func openApp(c *cli.Context, migrate bool) error {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	if driver := c.String("driver"); driver != "" {
		cfg.Database.Driver = driver
	}
	if url := c.String("db-url"); url != "" {
		cfg.Database.URL = url
	}

	a, err := app.New(c.Context, cfg, app.Options{Migrate: migrate})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func closeApp(c *cli.Context) error {
	if a, ok := c.Context.Value(appKey{}).(*app.App); ok && a != nil {
		return a.Close()
	}
	return nil
}

func appFrom(c *cli.Context) *app.App {
	return c.Context.Value(appKey{}).(*app.App)
}

// printJSON writes v to stdout, indented.
func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func decimalFlag(c *cli.Context, name string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.String(name))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q", name, raw)
	}
	return d, nil
}

func optionalInt64Flag(c *cli.Context, name string) *int64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Int64(name)
	return &v
}

func timeFlag(c *cli.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.String(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q", name, raw)
	}
	return &t, nil
}

func main() {
	cliApp := &cli.App{
		Name:  "roastctl",
		Usage: "Operate the roastery inventory: seed, receive, roast and analyse",
		Commands: []*cli.Command{
			withApp(migrateCommand(), true),
			withApp(seedCommand(), true),
			withApp(itemCommand(), false),
			withApp(recipeCommand(), false),
			withApp(receiveCommand(), false),
			withApp(adjustCommand(), false),
			withApp(correctCommand(), false),
			withApp(ledgerCommand(), false),
			withApp(costCommand(), false),
			withApp(roastCommand(), false),
			withApp(blendCommand(), false),
			withApp(trendCommand(), false),
			withApp(compareCommand(), false),
			withApp(warningsCommand(), false),
			withApp(resolveCommand(), false),
			withApp(seasonalCommand(), false),
			withApp(forecastCommand(), false),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("roastctl failed")
	}
}
