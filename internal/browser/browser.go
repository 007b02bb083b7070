package browser

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoElement = errors.New("element not found")
	ErrNoWindow  = errors.New("no current window")

	// ErrCovered means the element exists but another element stays on top
	// of it, so a click would not reach it.
	ErrCovered = errors.New("element covered")
)

// Handle identifies one tab of the browser.
type Handle string

// Session is the blocking, single-owner view of a browser with many tabs.
// Exactly one tab is current; Close closes it and leaves no current tab
// until SwitchTo is called.
type Session interface {
	Open(url string) error
	NewTab(url string) error
	CurrentURL() (string, error)
	PageSource() (string, error)
	WindowHandles() ([]Handle, error)
	SwitchTo(h Handle) error
	Close() error
	ExecuteScript(js string, args ...any) (string, error)
	Click(selector string) error
	WaitForElement(selector string, timeout time.Duration) error
	SendKeys(selector, text string) error
}

func IsBlankTab(url string) bool {
	return url == "about:blank" || url == "chrome://new-tab-page/"
}

// CleanTabs opens a blank tab and closes every other non blank tab so a run
// starts from a known state.
func CleanTabs(s Session, log *zap.Logger) error {
	if err := s.NewTab("about:blank"); err != nil {
		return err
	}
	return closeWhere(s, log, func(url string) bool { return !IsBlankTab(url) })
}

// CloseNonBlankTabs closes every tab not showing about:blank.
func CloseNonBlankTabs(s Session, log *zap.Logger) error {
	return closeWhere(s, log, func(url string) bool { return !strings.Contains(url, "about:blank") })
}

func closeWhere(s Session, log *zap.Logger, shouldClose func(string) bool) error {
	handles, err := s.WindowHandles()
	if err != nil {
		return err
	}
	for _, h := range handles {
		if err := s.SwitchTo(h); err != nil {
			log.Warn("failed switching tab", zap.String("tab", string(h)), zap.Error(err))
			continue
		}
		url, err := s.CurrentURL()
		if err != nil {
			log.Warn("failed getting tab url", zap.String("tab", string(h)), zap.Error(err))
			continue
		}
		if !shouldClose(url) {
			continue
		}
		if err := s.Close(); err != nil {
			log.Warn("failed closing tab", zap.String("url", url), zap.Error(err))
		}
	}
	return SwitchToFirst(s)
}

func SwitchToFirst(s Session) error {
	handles, err := s.WindowHandles()
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return ErrNoWindow
	}
	return s.SwitchTo(handles[0])
}
