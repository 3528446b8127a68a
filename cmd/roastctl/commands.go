package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andresuchdata/roastery/internal/catalog"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/ledger"
	"github.com/andresuchdata/roastery/internal/production"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the database schema",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, "schema is up to date")
			return nil
		},
	}
}

func itemCommand() *cli.Command {
	return &cli.Command{
		Name:  "item",
		Usage: "Create an item, or list items when no name is given",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name"},
			&cli.StringFlag{Name: "category", Value: string(domain.CategoryRaw)},
			&cli.StringFlag{Name: "profile"},
			&cli.StringFlag{Name: "expected-loss", Usage: "Expected loss fraction, e.g. 0.15"},
		},
		Action: func(c *cli.Context) error {
			svc := appFrom(c).Catalog
			if c.String("name") == "" {
				items, err := svc.ListItems(c.Context)
				if err != nil {
					return err
				}
				return printJSON(c, items)
			}

			req := catalog.ItemRequest{
				Name:     c.String("name"),
				Category: c.String("category"),
				Profile:  c.String("profile"),
			}
			if c.IsSet("expected-loss") {
				loss, err := decimalFlag(c, "expected-loss")
				if err != nil {
					return err
				}
				req.ExpectedLoss = &loss
			}
			item, err := svc.CreateItem(c.Context, req)
			if err != nil {
				return err
			}
			return printJSON(c, item)
		},
	}
}

// parseComponent reads "item_id:proportion".
func parseComponent(raw string) (domain.RecipeComponent, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return domain.RecipeComponent{}, fmt.Errorf("invalid component %q, want item_id:proportion", raw)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return domain.RecipeComponent{}, fmt.Errorf("invalid component item id %q", parts[0])
	}
	proportion, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return domain.RecipeComponent{}, fmt.Errorf("invalid component proportion %q", parts[1])
	}
	return domain.RecipeComponent{ItemID: id, Proportion: proportion}, nil
}

func recipeCommand() *cli.Command {
	return &cli.Command{
		Name:  "recipe",
		Usage: "Create a blend recipe",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringSliceFlag{Name: "component", Usage: "item_id:proportion, repeatable", Required: true},
		},
		Action: func(c *cli.Context) error {
			req := catalog.RecipeRequest{Name: c.String("name")}
			for _, raw := range c.StringSlice("component") {
				component, err := parseComponent(raw)
				if err != nil {
					return err
				}
				req.Components = append(req.Components, component)
			}
			recipe, err := appFrom(c).Catalog.CreateRecipe(c.Context, req)
			if err != nil {
				return err
			}
			return printJSON(c, recipe)
		},
	}
}

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "Receive a delivery of a raw item",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item", Required: true},
			&cli.StringFlag{Name: "quantity", Required: true},
			&cli.StringFlag{Name: "price", Required: true, Usage: "Unit price"},
			&cli.StringFlag{Name: "received-at", Usage: "RFC3339 timestamp or YYYY-MM-DD"},
			&cli.StringFlag{Name: "note"},
		},
		Action: func(c *cli.Context) error {
			qty, err := decimalFlag(c, "quantity")
			if err != nil {
				return err
			}
			price, err := decimalFlag(c, "price")
			if err != nil {
				return err
			}
			req := ledger.ReceiveRequest{ItemID: c.Int64("item"), Quantity: qty, UnitPrice: price, Note: c.String("note")}
			receivedAt, err := timeFlag(c, "received-at")
			if err != nil {
				return err
			}
			if receivedAt != nil {
				req.ReceivedAt = receivedAt.UTC()
			}

			receipt, err := appFrom(c).Ledger.Receive(c.Context, req)
			if err != nil {
				return err
			}
			return printJSON(c, receipt)
		},
	}
}

func adjustCommand() *cli.Command {
	return &cli.Command{
		Name:  "adjust",
		Usage: "Post a manual adjustment or waste entry",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item", Required: true},
			&cli.StringFlag{Name: "delta", Required: true},
			&cli.StringFlag{Name: "type", Value: "adjustment", Usage: "adjustment or waste"},
			&cli.StringFlag{Name: "unit-cost", Value: "0"},
			&cli.StringFlag{Name: "note"},
			&cli.BoolFlag{Name: "allow-negative"},
		},
		Action: func(c *cli.Context) error {
			changeType, ok := domain.ParseChangeType(c.String("type"))
			if !ok {
				return fmt.Errorf("unknown change type %q", c.String("type"))
			}
			delta, err := decimalFlag(c, "delta")
			if err != nil {
				return err
			}
			unitCost, err := decimalFlag(c, "unit-cost")
			if err != nil {
				return err
			}
			entry, err := appFrom(c).Ledger.Post(c.Context, ledger.PostRequest{
				ItemID:        c.Int64("item"),
				ChangeType:    changeType,
				Delta:         delta,
				UnitCost:      unitCost,
				Note:          c.String("note"),
				AllowNegative: c.Bool("allow-negative"),
			})
			if err != nil {
				return err
			}
			return printJSON(c, entry)
		},
	}
}

func correctCommand() *cli.Command {
	return &cli.Command{
		Name:  "correct",
		Usage: "Correct a posted ledger entry to a new delta",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "entry", Required: true},
			&cli.StringFlag{Name: "delta", Required: true},
			&cli.StringFlag{Name: "note"},
		},
		Action: func(c *cli.Context) error {
			delta, err := decimalFlag(c, "delta")
			if err != nil {
				return err
			}
			entry, err := appFrom(c).Ledger.Correct(c.Context, c.Int64("entry"), delta, c.String("note"))
			if err != nil {
				return err
			}
			return printJSON(c, entry)
		},
	}
}

func ledgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Show an item's ledger history",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item", Required: true},
			&cli.StringSliceFlag{Name: "type", Usage: "Change type filter, repeatable"},
			&cli.StringFlag{Name: "from"},
			&cli.StringFlag{Name: "to"},
			&cli.IntFlag{Name: "page", Value: 1},
			&cli.IntFlag{Name: "page-size", Value: repository.DefaultPageSize},
		},
		Action: func(c *cli.Context) error {
			filter := repository.LedgerFilter{
				ItemID:   c.Int64("item"),
				Page:     c.Int("page"),
				PageSize: c.Int("page-size"),
			}
			for _, label := range c.StringSlice("type") {
				ct, ok := domain.ParseChangeType(label)
				if !ok {
					return fmt.Errorf("unknown change type %q", label)
				}
				filter.ChangeTypes = append(filter.ChangeTypes, ct)
			}
			var err error
			if filter.From, err = timeFlag(c, "from"); err != nil {
				return err
			}
			if filter.To, err = timeFlag(c, "to"); err != nil {
				return err
			}

			page, err := appFrom(c).Ledger.Query(c.Context, filter)
			if err != nil {
				return err
			}
			return printJSON(c, page)
		},
	}
}

func costCommand() *cli.Command {
	return &cli.Command{
		Name:  "cost",
		Usage: "Quote the FIFO cost of consuming a quantity, without consuming it",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item", Required: true},
			&cli.StringFlag{Name: "quantity", Required: true},
		},
		Action: func(c *cli.Context) error {
			qty, err := decimalFlag(c, "quantity")
			if err != nil {
				return err
			}
			resolution, err := appFrom(c).Costing.Quote(c.Context, c.Int64("item"), qty)
			if err != nil {
				return err
			}
			if warning := resolution.Warning(); warning != "" {
				fmt.Fprintln(c.App.ErrWriter, "warning:", warning)
			}
			return printJSON(c, resolution)
		},
	}
}

func roastCommand() *cli.Command {
	return &cli.Command{
		Name:  "roast",
		Usage: "Roast a single-origin item into a profile",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item", Required: true},
			&cli.StringFlag{Name: "input", Required: true, Usage: "Input quantity in kg"},
			&cli.StringFlag{Name: "output", Required: true, Usage: "Output quantity in kg"},
			&cli.StringFlag{Name: "profile", Required: true},
			&cli.StringFlag{Name: "notes"},
		},
		Action: func(c *cli.Context) error {
			input, err := decimalFlag(c, "input")
			if err != nil {
				return err
			}
			output, err := decimalFlag(c, "output")
			if err != nil {
				return err
			}
			result, err := appFrom(c).Production.RoastSingle(c.Context, production.RoastRequest{
				InputItemID:    c.Int64("item"),
				InputQuantity:  input,
				OutputQuantity: output,
				Profile:        c.String("profile"),
				Notes:          c.String("notes"),
			})
			if err != nil {
				return err
			}
			return printJSON(c, result)
		},
	}
}

func blendCommand() *cli.Command {
	return &cli.Command{
		Name:  "blend",
		Usage: "Roast a recipe blend",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "recipe", Required: true},
			&cli.StringFlag{Name: "target", Required: true, Usage: "Target output quantity in kg"},
			&cli.StringFlag{Name: "input", Usage: "Explicit total input quantity in kg"},
			&cli.StringFlag{Name: "notes"},
		},
		Action: func(c *cli.Context) error {
			target, err := decimalFlag(c, "target")
			if err != nil {
				return err
			}
			req := production.BlendRequest{
				RecipeID:             c.Int64("recipe"),
				TargetOutputQuantity: target,
				Notes:                c.String("notes"),
			}
			if c.IsSet("input") {
				input, err := decimalFlag(c, "input")
				if err != nil {
					return err
				}
				req.ExplicitInputQuantity = &input
			}
			result, err := appFrom(c).Production.RoastBlend(c.Context, req)
			if err != nil {
				return err
			}
			return printJSON(c, result)
		},
	}
}

func trendCommand() *cli.Command {
	return &cli.Command{
		Name:  "trend",
		Usage: "Yield-loss trend over a window",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item"},
			&cli.IntFlag{Name: "window", Value: 30, Usage: "Window in days"},
		},
		Action: func(c *cli.Context) error {
			report, err := appFrom(c).Quality.Trend(c.Context, optionalInt64Flag(c, "item"), c.Int("window"))
			if err != nil {
				return err
			}
			return printJSON(c, report)
		},
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare items' yield loss against the global mean",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "window", Value: 30, Usage: "Window in days"},
		},
		Action: func(c *cli.Context) error {
			report, err := appFrom(c).Quality.PerItemComparison(c.Context, c.Int("window"))
			if err != nil {
				return err
			}
			return printJSON(c, report)
		},
	}
}

func warningsCommand() *cli.Command {
	return &cli.Command{
		Name:  "warnings",
		Usage: "List quality warnings",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item"},
			&cli.BoolFlag{Name: "open", Usage: "Only unresolved warnings"},
		},
		Action: func(c *cli.Context) error {
			filter := repository.WarningFilter{ItemID: optionalInt64Flag(c, "item")}
			if c.Bool("open") {
				resolved := false
				filter.Resolved = &resolved
			}
			warnings, err := appFrom(c).Quality.Warnings(c.Context, filter)
			if err != nil {
				return err
			}
			return printJSON(c, warnings)
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a quality warning",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "id", Required: true},
			&cli.StringFlag{Name: "note"},
		},
		Action: func(c *cli.Context) error {
			warning, err := appFrom(c).Quality.Resolve(c.Context, c.Int64("id"), c.String("note"))
			if err != nil {
				return err
			}
			return printJSON(c, warning)
		},
	}
}

func seasonalCommand() *cli.Command {
	return &cli.Command{
		Name:  "seasonal",
		Usage: "Show the monthly seasonal index",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "refresh", Usage: "Recompute instead of using the cache"},
		},
		Action: func(c *cli.Context) error {
			index, err := appFrom(c).Forecast.SeasonalIndex(c.Context, c.Bool("refresh"))
			if err != nil {
				return err
			}
			return printJSON(c, index)
		},
	}
}

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Forecast yield loss",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item"},
			&cli.IntFlag{Name: "months-ahead", Value: 1},
			&cli.IntFlag{Name: "series", Usage: "Forecast months 1..N instead of a single month"},
		},
		Action: func(c *cli.Context) error {
			engine := appFrom(c).Forecast
			itemID := optionalInt64Flag(c, "item")
			if c.IsSet("series") {
				series, err := engine.Series(c.Context, itemID, c.Int("series"))
				if err != nil {
					return err
				}
				return printJSON(c, series)
			}
			result, err := engine.Predict(c.Context, itemID, c.Int("months-ahead"))
			if err != nil {
				return err
			}
			return printJSON(c, result)
		},
	}
}
