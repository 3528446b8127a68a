package main

import (
	"fmt"

	"github.com/andresuchdata/roastery/internal/config"
	"github.com/andresuchdata/roastery/internal/importer"
	"github.com/andresuchdata/roastery/internal/storage"
	"github.com/urfave/cli/v2"
)

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Import items, recipes and receipts from CSV/XLSX files, locally or from a bucket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory containing seed files",
				Value:   "./data/seeds",
				EnvVars: []string{"SEED_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "bucket",
				Usage:   "Download seed files from this object store bucket instead of data-dir",
				EnvVars: []string{"OBJECT_STORE_BUCKET"},
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Object key prefix of the seed files",
				Value: "seeds",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Download only this object, relative to the prefix",
			},
		},
		Action: runSeed,
	}
}

func runSeed(c *cli.Context) error {
	a := appFrom(c)
	im := importer.New(a.Store, nil)

	var (
		summaries []importer.Summary
		err       error
	)
	if bucket := c.String("bucket"); bucket != "" {
		paths, dlErr := downloadSeeds(c, a.Config.Storage, bucket)
		if dlErr != nil {
			return dlErr
		}
		summaries, err = im.ImportFiles(c.Context, paths)
	} else {
		summaries, err = im.ImportDir(c.Context, c.String("data-dir"))
	}
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	for _, s := range summaries {
		fmt.Fprintf(c.App.Writer, "%-9s %-40s created=%d skipped=%d\n", s.Kind, s.File, s.Created, s.Skipped)
	}
	return nil
}

func downloadSeeds(c *cli.Context, cfg config.ObjectStoreConfig, bucket string) ([]string, error) {
	cfg.Bucket = bucket
	client, err := storage.NewS3Client(cfg)
	if err != nil {
		return nil, err
	}

	destDir := cfg.DownloadDir
	if destDir == "" {
		destDir = "./data/tmp/seed"
	}
	return storage.DownloadPrefix(c.Context, client, c.String("prefix"), c.String("file"), destDir, ".csv", ".xlsx")
}
