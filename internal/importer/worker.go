package importer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type parseJob struct {
	index int
	path  string
}

// parseParallel reads every file with a pool of workers. Results keep the
// order of paths; the first failure is returned.
func parseParallel(ctx context.Context, paths []string, workerCount int) ([]*table, error) {
	if workerCount < 1 {
		workerCount = 1
	}

	tables := make([]*table, len(paths))
	jobChan := make(chan parseJob, len(paths))
	errChan := make(chan error, workerCount)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				start := time.Now()
				t, err := readTable(job.path)
				if err != nil {
					log.Error().Err(err).Int("worker", workerID).Str("file", job.path).Msg("failed to parse seed file")
					select {
					case errChan <- err:
					default:
					}
					continue
				}
				tables[job.index] = t
				log.Debug().Int("worker", workerID).Str("file", job.path).Int("rows", len(t.rows)).
					Dur("duration", time.Since(start)).Msg("seed file parsed")
			}
		}(i)
	}

	// Enqueue jobs
	for i, path := range paths {
		select {
		case <-ctx.Done():
			close(jobChan)
			wg.Wait()
			return nil, ctx.Err()
		case jobChan <- parseJob{index: i, path: path}:
		}
	}
	close(jobChan)

	// Wait for all workers
	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	return tables, nil
}
