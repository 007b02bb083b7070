package crawl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/archive"
	"github.com/AlfredBerg/sps-crawler/internal/browser"
	"github.com/AlfredBerg/sps-crawler/internal/fetch"
	"github.com/AlfredBerg/sps-crawler/internal/orchestrate"
	"github.com/AlfredBerg/sps-crawler/internal/products"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"go.uber.org/zap"
)

// ErrQuit is returned by Run for the quit option.
var ErrQuit = errors.New("quit")

// Journal receives everything a run wants remembered.
type Journal interface {
	HandlePage(index int, key, path string, rows int) error
	HandleDownload(key, filename, url, outcome string) error
	HandleMissing(key, filename, url string) error
}

// Job runs the options of one table for one subsidiary.
type Job struct {
	Ctx     session.Context
	Storage *storage.Storage
	Journal Journal
	Fetcher fetch.Fetcher
	Log     *zap.Logger
	Out     io.Writer

	// Connect launches and logs in the browser. It is called once, by the
	// first option that needs a browser.
	Connect func() (browser.Session, error)
	// NextKey asks for the next download key in single key mode. An empty
	// key ends the mode.
	NextKey func() (string, error)

	ChunkSize           int
	ImageWorkers        int
	MissingImageWorkers int

	Now   func() time.Time
	Sleep func(time.Duration)

	sess browser.Session
}

// Params scope an option to part of the work list.
type Params struct {
	Start int
	// End is exclusive for record links and inclusive for download keys.
	// -1 means through the end.
	End int
	Key string
}

func (j *Job) out() io.Writer {
	if j.Out == nil {
		return os.Stdout
	}
	return j.Out
}

func (j *Job) now() time.Time {
	if j.Now == nil {
		return time.Now()
	}
	return j.Now()
}

func (j *Job) archive() *archive.Archive {
	return archive.New(j.Storage, j.Ctx.Layout)
}

func (j *Job) openBrowser() (browser.Session, error) {
	if j.sess != nil {
		return j.sess, nil
	}
	if j.Connect == nil {
		return nil, errors.New("no browser configured")
	}
	s, err := j.Connect()
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	j.sess = s
	return s, nil
}

// Prepare empties the browser download directory so stale downloads are
// never moved into a record's folder.
func (j *Job) Prepare() error {
	if err := j.Storage.ClearDir(j.Ctx.BrowserDownloadDir); err != nil {
		return fmt.Errorf("clear %s: %w", j.Ctx.BrowserDownloadDir, err)
	}
	return nil
}

func (j *Job) chunkSize() int {
	if j.ChunkSize <= 0 {
		return orchestrate.DefaultChunkSize
	}
	return j.ChunkSize
}

func (j *Job) imageWorkers(missing bool) int {
	if missing {
		if j.MissingImageWorkers > 0 {
			return j.MissingImageWorkers
		}
		return products.DefaultMissingWorkers
	}
	if j.ImageWorkers > 0 {
		return j.ImageWorkers
	}
	return products.DefaultWorkers
}
