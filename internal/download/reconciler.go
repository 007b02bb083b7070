package download

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/browser"
	"github.com/AlfredBerg/sps-crawler/internal/fetch"
	"github.com/AlfredBerg/sps-crawler/internal/links"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"go.uber.org/zap"
)

const (
	accessDeniedMarker = "AccessDenied"

	DefaultRedirectTimeout = 15 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
)

// Images are served through a static redirect and never trigger a browser
// download, so they are fetched directly.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
}

func IsImage(filename string) bool {
	return imageExts[strings.ToLower(path.Ext(filename))]
}

type Outcome int

const (
	Downloaded Outcome = iota
	AccessDenied
	MoveFailed
	FetchFailed
	OpenFailed
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case AccessDenied:
		return "access_denied"
	case MoveFailed:
		return "move_failed"
	case FetchFailed:
		return "fetch_failed"
	case OpenFailed:
		return "open_failed"
	}
	return "unknown"
}

// Recorder is told the outcome of every file attempt.
type Recorder interface {
	HandleDownload(key, filename, url, outcome string) error
}

// Reconciler downloads single files through the browser and files them
// under Layout.FileDownloadDir/{key}/{filename}.
type Reconciler struct {
	Session  browser.Session
	Storage  *storage.Storage
	Mover    *storage.Mover
	Fetcher  fetch.Fetcher
	Recorder Recorder
	Ctx      session.Context
	Log      *zap.Logger

	RedirectTimeout time.Duration
	PollInterval    time.Duration
	Sleep           func(time.Duration)
}

func NewReconciler(s browser.Session, st *storage.Storage, f fetch.Fetcher, c session.Context, log *zap.Logger) *Reconciler {
	return &Reconciler{
		Session:         s,
		Storage:         st,
		Mover:           storage.NewMover(st, c.ErrsDir),
		Fetcher:         f,
		Ctx:             c,
		Log:             log,
		RedirectTimeout: DefaultRedirectTimeout,
		PollInterval:    DefaultPollInterval,
		Sleep:           time.Sleep,
	}
}

// Download fetches one file of key. Every tab except the blank one is
// closed before returning, whatever the outcome.
func (r *Reconciler) Download(ctx context.Context, key string, l links.Link) Outcome {
	filename := l.Text
	url := r.Ctx.FullURL(strings.ReplaceAll(l.URL, `\`, "/"))
	log := r.Log.With(zap.String("key", key), zap.String("file", filename))
	defer r.reset()

	if err := browser.SwitchToFirst(r.Session); err != nil {
		log.Error("no blank tab to start from", zap.Error(err))
		return r.record(key, filename, url, OpenFailed)
	}
	before, err := r.handles()
	if err != nil {
		log.Error("failed listing tabs", zap.Error(err))
		return r.record(key, filename, url, OpenFailed)
	}
	if err := r.Session.NewTab(url); err != nil {
		log.Error("failed opening file url", zap.String("url", url), zap.Error(err))
		return r.record(key, filename, url, OpenFailed)
	}

	resolved := url
	var fetchErr error
	if IsImage(filename) {
		resolved = r.resolveRedirect(url, before)
		fetchErr = r.Fetcher.Fetch(ctx, resolved, path.Join(r.Ctx.BrowserDownloadDir, filename))
	}

	if r.accessDenied(before) {
		log.Warn("ACCESS DENIED", zap.String("url", resolved))
		if err := r.Storage.AppendCSV(r.Ctx.Layout.AccessDeniedCSV, [][]string{{key, filename, resolved}}); err != nil {
			log.Error("failed recording access denied file", zap.Error(err))
		}
		return r.record(key, filename, resolved, AccessDenied)
	}
	if fetchErr != nil {
		log.Error("file not downloaded", zap.String("url", resolved), zap.Error(fetchErr))
		return r.record(key, filename, resolved, FetchFailed)
	}

	dst := path.Join(r.Ctx.Layout.FileDownloadDir, key, filename)
	if err := r.Mover.Move(ctx, path.Join(r.Ctx.BrowserDownloadDir, filename), dst); err != nil {
		log.Error("file not moved", zap.Error(err))
		return r.record(key, filename, resolved, MoveFailed)
	}
	log.Info("downloaded", zap.String("path", dst))
	return r.record(key, filename, resolved, Downloaded)
}

func (r *Reconciler) record(key, filename, url string, o Outcome) Outcome {
	if r.Recorder != nil {
		if err := r.Recorder.HandleDownload(key, filename, url, o.String()); err != nil {
			r.Log.Warn("failed recording download", zap.Error(err))
		}
	}
	return o
}

func (r *Reconciler) reset() {
	if err := browser.CloseNonBlankTabs(r.Session, r.Log); err != nil {
		r.Log.Warn("failed resetting tabs", zap.Error(err))
	}
}

func (r *Reconciler) handles() (map[browser.Handle]bool, error) {
	hs, err := r.Session.WindowHandles()
	if err != nil {
		return nil, err
	}
	res := make(map[browser.Handle]bool, len(hs))
	for _, h := range hs {
		res[h] = true
	}
	return res, nil
}

// actedTabs visits the tabs opened since before that show a page, calling
// visit with each tab current. visit returns false to stop.
func (r *Reconciler) actedTabs(before map[browser.Handle]bool, visit func(url string) bool) {
	hs, err := r.Session.WindowHandles()
	if err != nil {
		r.Log.Warn("failed listing tabs", zap.Error(err))
		return
	}
	for _, h := range hs {
		if before[h] {
			continue
		}
		if err := r.Session.SwitchTo(h); err != nil {
			continue
		}
		u, err := r.Session.CurrentURL()
		if err != nil || browser.IsBlankTab(u) {
			continue
		}
		if !visit(u) {
			return
		}
	}
}

// resolveRedirect polls the new tab until it leaves the requested url and
// returns where it landed. On timeout the requested url is returned.
func (r *Reconciler) resolveRedirect(url string, before map[browser.Handle]bool) string {
	deadline := time.Now().Add(r.RedirectTimeout)
	for {
		resolved := ""
		r.actedTabs(before, func(u string) bool {
			if u != url {
				resolved = u
				return false
			}
			return true
		})
		if resolved != "" {
			return resolved
		}
		if time.Now().After(deadline) {
			r.Log.Warn("image url never redirected", zap.String("url", url))
			return url
		}
		r.Sleep(r.PollInterval)
	}
}

func (r *Reconciler) accessDenied(before map[browser.Handle]bool) bool {
	denied := false
	r.actedTabs(before, func(string) bool {
		html, err := r.Session.PageSource()
		if err != nil {
			return true
		}
		denied = strings.Contains(html, accessDeniedMarker)
		return !denied
	})
	return denied
}
