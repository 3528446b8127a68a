package production

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/repository"
)

// sequenceKey is the shared part of every batch number for one prefix and day.
func sequenceKey(prefix string, at time.Time) string {
	return prefix + at.Format("060102") + "-"
}

// nextBatchNumber follows last within the day identified by key. An empty
// last starts the day at 001.
func nextBatchNumber(key, last string) (string, error) {
	seq := 0
	if last != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last, key))
		if err != nil || !strings.HasPrefix(last, key) || n < 1 {
			return "", fmt.Errorf("cannot continue batch sequence %s from %q", key, last)
		}
		seq = n
	}
	return fmt.Sprintf("%s%03d", key, seq+1), nil
}

// allocateBatchNumber takes the day's sequence lock and returns the next free
// number. The lock is held until tx ends.
func allocateBatchNumber(ctx context.Context, tx repository.Tx, prefix string, at time.Time) (string, error) {
	key := sequenceKey(prefix, at)
	if err := tx.LockKey(ctx, "batch:"+key); err != nil {
		return "", err
	}
	last, err := tx.LastBatchNumber(ctx, key)
	if err != nil {
		return "", err
	}
	return nextBatchNumber(key, last)
}
