package browser

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/js"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	actionTimeout = 10 * time.Second
	loadTimeout   = 30 * time.Second
)

type LaunchOptions struct {
	Headless bool
	// DownloadDir receives every native browser download.
	DownloadDir string
}

// Rod is a Session backed by a single chromium process.
type Rod struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	current  *rod.Page
	log      *zap.Logger
}

func Launch(opts LaunchOptions, log *zap.Logger) (*Rod, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-popup-blocking")
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	r := &Rod{browser: browser, launcher: l, log: log}

	if opts.DownloadDir != "" {
		dir, err := filepath.Abs(opts.DownloadDir)
		if err != nil {
			r.Quit()
			return nil, err
		}
		err = proto.BrowserSetDownloadBehavior{
			Behavior:         proto.BrowserSetDownloadBehaviorBehaviorAllow,
			BrowserContextID: browser.BrowserContextID,
			DownloadPath:     dir,
		}.Call(browser)
		if err != nil {
			r.Quit()
			return nil, fmt.Errorf("set download behavior: %w", err)
		}
	}

	//Dismiss alerts so they never block a tab
	go browser.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		log.Debug("dismissing dialog", zap.String("message", e.Message))
		_ = proto.PageHandleJavaScriptDialog{Accept: false, PromptText: ""}.Call(browser)
	})()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		r.Quit()
		return nil, fmt.Errorf("open first tab: %w", err)
	}
	r.current = page
	return r, nil
}

func (r *Rod) Quit() {
	if err := r.browser.Close(); err != nil {
		r.log.Warn("failed closing browser", zap.Error(err))
	}
	r.launcher.Cleanup()
}

func (r *Rod) page() (*rod.Page, error) {
	if r.current == nil {
		return nil, ErrNoWindow
	}
	return r.current, nil
}

func (r *Rod) Open(url string) error {
	p, err := r.page()
	if err != nil {
		return err
	}
	if err := p.Timeout(loadTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.Timeout(loadTimeout).WaitLoad(); err != nil {
		r.log.Debug("wait load errored out", zap.String("url", url), zap.Error(err))
	}
	return nil
}

func (r *Rod) NewTab(url string) error {
	_, err := r.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("new tab %s: %w", url, err)
	}
	return nil
}

func (r *Rod) CurrentURL() (string, error) {
	p, err := r.page()
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (r *Rod) PageSource() (string, error) {
	p, err := r.page()
	if err != nil {
		return "", err
	}
	return p.Timeout(actionTimeout).HTML()
}

func (r *Rod) WindowHandles() ([]Handle, error) {
	pages, err := r.browser.Pages()
	if err != nil {
		return nil, err
	}
	handles := make([]Handle, 0, len(pages))
	for _, p := range pages {
		handles = append(handles, Handle(p.TargetID))
	}
	return handles, nil
}

// SwitchTo makes h current and gives it a bounded time to finish loading.
func (r *Rod) SwitchTo(h Handle) error {
	p, err := r.browser.PageFromTarget(proto.TargetTargetID(h))
	if err != nil {
		return fmt.Errorf("switch to %s: %w", h, err)
	}
	if _, err := p.Activate(); err != nil {
		r.log.Debug("failed focusing tab", zap.String("tab", string(h)), zap.Error(err))
	}
	if err := p.Timeout(actionTimeout).WaitLoad(); err != nil {
		r.log.Debug("wait load errored out", zap.String("tab", string(h)), zap.Error(err))
	}
	r.current = p
	return nil
}

func (r *Rod) Close() error {
	p, err := r.page()
	if err != nil {
		return err
	}
	r.current = nil
	return p.Close()
}

func (r *Rod) ExecuteScript(script string, args ...any) (string, error) {
	p, err := r.page()
	if err != nil {
		return "", err
	}
	res, err := p.Timeout(actionTimeout).Evaluate(rod.Eval(script, args...).ByUser())
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

func (r *Rod) element(p *rod.Page, selector string, timeout time.Duration) (*rod.Element, error) {
	var (
		el  *rod.Element
		err error
	)
	if isXPath(selector) {
		el, err = p.Timeout(timeout).ElementX(selector)
	} else {
		el, err = p.Timeout(timeout).Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoElement, selector, err)
	}
	return el.CancelTimeout(), nil
}

func (r *Rod) Click(selector string) error {
	p, err := r.page()
	if err != nil {
		return err
	}
	el, err := r.element(p, selector, actionTimeout)
	if err != nil {
		return err
	}
	el = el.Timeout(actionTimeout)
	if err := el.ScrollIntoView(); err != nil {
		r.log.Debug("scroll error", zap.String("selector", selector), zap.Error(err))
	}
	xp, err := el.GetXPath(false)
	if err != nil {
		return err
	}
	if err := p.Timeout(actionTimeout).Wait(rod.Eval(js.IS_TOP_VISIBLE, xp)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCovered, selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// WaitForElement polls the current tab until selector matches or timeout
// passes.
func (r *Rod) WaitForElement(selector string, timeout time.Duration) error {
	p, err := r.page()
	if err != nil {
		return err
	}
	err = p.Timeout(timeout).Wait(rod.Eval(js.IS_PRESENT, selector, isXPath(selector)))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoElement, selector, err)
	}
	return nil
}

func (r *Rod) SendKeys(selector, text string) error {
	p, err := r.page()
	if err != nil {
		return err
	}
	el, err := r.element(p, selector, actionTimeout)
	if err != nil {
		return err
	}
	return el.Timeout(actionTimeout).Input(text)
}
