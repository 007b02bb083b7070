package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	moveAttempts = 20
	moveDelay    = 500 * time.Millisecond
)

// Mover moves finished browser downloads into their final location.
type Mover struct {
	Storage *Storage
	ErrsDir string

	Attempts int
	Delay    time.Duration
}

func NewMover(s *Storage, errsDir string) *Mover {
	return &Mover{Storage: s, ErrsDir: errsDir, Attempts: moveAttempts, Delay: moveDelay}
}

// FailMarker is the empty file written when a move never succeeds, e.g.
// ERRS/KEY1_F-report.pdf.FAIL.txt for files/KEY1/report.pdf.
func (m *Mover) FailMarker(dst string) string {
	dir, file := path.Split(dst)
	lastDir := path.Base(strings.TrimSuffix(dir, "/"))
	return path.Join(m.ErrsDir, fmt.Sprintf("%s_F-%s.FAIL.txt", lastDir, file))
}

// Move renames src to dst, matching the source name case-insensitively. A
// file still being flushed by the browser is retried; when every attempt
// fails the fail marker is written and an error returned.
func (m *Mover) Move(ctx context.Context, src, dst string) error {
	if err := m.Storage.ensureDir(dst); err != nil {
		return err
	}
	attempts := m.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(m.Delay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		from := src
		if found, ok := m.Storage.FindCaseInsensitive(src); ok {
			from = found
		}
		if err := m.Storage.Fs.Rename(from, dst); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	marker := m.FailMarker(dst)
	if werr := m.Storage.WriteFile(marker, nil); werr != nil {
		return fmt.Errorf("move %s: %w (marker: %v)", src, err, werr)
	}
	return fmt.Errorf("move %s to %s: %w", src, dst, err)
}
