package paginate

import (
	"fmt"
	"strings"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/browser"
	"go.uber.org/zap"
)

const NextXPath = "//a[@class='underline' and text()='Next']"

const (
	DefaultWaitTimeout = 10 * time.Second
	DefaultSettle      = 4 * time.Second
	DebugMaxPages      = 2
)

type StepKind int

const (
	More StepKind = iota
	Done
)

// Step is the outcome of one attempt to advance the listing. A Done step
// carries the reason the walk ended; a missing Next control is the usual one.
type Step struct {
	Kind   StepKind
	Page   string
	Reason error
}

type Walker struct {
	Session browser.Session
	Log     *zap.Logger

	WaitTimeout time.Duration
	Settle      time.Duration
	// MaxPages stops the walk once that many pages are collected. 0 means no
	// cap.
	MaxPages int

	Sleep func(time.Duration)
}

func NewWalker(s browser.Session, log *zap.Logger, debug bool) *Walker {
	w := &Walker{
		Session:     s,
		Log:         log,
		WaitTimeout: DefaultWaitTimeout,
		Settle:      DefaultSettle,
		Sleep:       time.Sleep,
	}
	if debug {
		w.MaxPages = DebugMaxPages
	}
	return w
}

func tableXPath(tableID string) string {
	id := strings.TrimPrefix(tableID, "#")
	if id == "" {
		return ""
	}
	return fmt.Sprintf("//*[@id='%s']", id)
}

// Next waits for the Next control (and the listing table, when given) on the
// current page, clicks it, lets the page settle and returns its content.
func (w *Walker) Next(tableID string) Step {
	if err := w.Session.WaitForElement(NextXPath, w.WaitTimeout); err != nil {
		return Step{Kind: Done, Reason: err}
	}
	if xp := tableXPath(tableID); xp != "" {
		if err := w.Session.WaitForElement(xp, w.WaitTimeout); err != nil {
			return Step{Kind: Done, Reason: err}
		}
	}
	if err := w.Session.Click(NextXPath); err != nil {
		return Step{Kind: Done, Reason: err}
	}
	w.Sleep(w.Settle)
	html, err := w.Session.PageSource()
	if err != nil {
		return Step{Kind: Done, Reason: err}
	}
	return Step{Kind: More, Page: html}
}

// Walk opens startURL and follows Next until it disappears or MaxPages is
// reached. Only failing to load the first page is an error.
func (w *Walker) Walk(startURL, tableID string) ([]string, error) {
	if err := w.Session.Open(startURL); err != nil {
		return nil, fmt.Errorf("open listing: %w", err)
	}
	first, err := w.Session.PageSource()
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	pages := []string{first}

	for {
		if w.MaxPages > 0 && len(pages) >= w.MaxPages {
			w.Log.Info("page cap reached", zap.Int("pages", len(pages)))
			break
		}
		step := w.Next(tableID)
		if step.Kind == Done {
			w.Log.Info("no more pages", zap.Int("pages", len(pages)), zap.NamedError("reason", step.Reason))
			break
		}
		pages = append(pages, step.Page)
		w.Log.Info("added page", zap.Int("page", len(pages)))
	}
	w.Log.Info("finished getting all pages", zap.String("url", startURL), zap.Int("pages", len(pages)))
	return pages, nil
}
