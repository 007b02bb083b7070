// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"fmt"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/browser"
)

// Page is what the fake serves for one url.
type Page struct {
	HTML     string
	Elements []string
	// Clicks maps a selector to the url the tab shows after clicking it.
	Clicks map[string]string
	// Covered selectors are present but never clickable.
	Covered []string
}

func (p Page) covered(selector string) bool {
	for _, e := range p.Covered {
		if e == selector {
			return true
		}
	}
	return false
}

func (p Page) has(selector string) bool {
	for _, e := range p.Elements {
		if e == selector {
			return true
		}
	}
	_, ok := p.Clicks[selector]
	return ok || p.covered(selector)
}

type tab struct {
	handle browser.Handle
	url    string
}

// Fake starts with a single blank tab that is current.
type Fake struct {
	Site map[string]Page
	// Redirects maps a requested url to the url the tab ends up on.
	Redirects map[string]string
	// OnOpen is called with every url navigated to, in a new tab or not.
	OnOpen func(url string)
	// ReverseHandles lists handles newest first.
	ReverseHandles bool

	Opened  []string
	Keys    map[string]string
	Clicked []string
	Scripts []string

	tabs    []*tab
	current *tab
	nextID  int
}

func New(site map[string]Page) *Fake {
	f := &Fake{Site: site, Keys: map[string]string{}}
	f.current = f.addTab("about:blank")
	return f
}

func (f *Fake) addTab(url string) *tab {
	f.nextID++
	t := &tab{handle: browser.Handle(fmt.Sprintf("tab-%d", f.nextID)), url: url}
	f.tabs = append(f.tabs, t)
	return t
}

func (f *Fake) navigate(t *tab, url string) {
	f.Opened = append(f.Opened, url)
	if f.OnOpen != nil {
		f.OnOpen(url)
	}
	if to, ok := f.Redirects[url]; ok {
		url = to
	}
	t.url = url
}

// URLs returns the url of every open tab in open order.
func (f *Fake) URLs() []string {
	var res []string
	for _, t := range f.tabs {
		res = append(res, t.url)
	}
	return res
}

func (f *Fake) Open(url string) error {
	if f.current == nil {
		return browser.ErrNoWindow
	}
	f.navigate(f.current, url)
	return nil
}

func (f *Fake) NewTab(url string) error {
	t := f.addTab("about:blank")
	if url != "" && url != "about:blank" {
		f.navigate(t, url)
	}
	return nil
}

func (f *Fake) CurrentURL() (string, error) {
	if f.current == nil {
		return "", browser.ErrNoWindow
	}
	return f.current.url, nil
}

func (f *Fake) PageSource() (string, error) {
	if f.current == nil {
		return "", browser.ErrNoWindow
	}
	return f.Site[f.current.url].HTML, nil
}

func (f *Fake) WindowHandles() ([]browser.Handle, error) {
	res := make([]browser.Handle, 0, len(f.tabs))
	for _, t := range f.tabs {
		res = append(res, t.handle)
	}
	if f.ReverseHandles {
		for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
			res[i], res[j] = res[j], res[i]
		}
	}
	return res, nil
}

func (f *Fake) SwitchTo(h browser.Handle) error {
	for _, t := range f.tabs {
		if t.handle == h {
			f.current = t
			return nil
		}
	}
	return fmt.Errorf("no such tab %s", h)
}

func (f *Fake) Close() error {
	if f.current == nil {
		return browser.ErrNoWindow
	}
	for i, t := range f.tabs {
		if t == f.current {
			f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
			break
		}
	}
	f.current = nil
	return nil
}

func (f *Fake) ExecuteScript(js string, args ...any) (string, error) {
	f.Scripts = append(f.Scripts, js)
	return "", nil
}

func (f *Fake) Click(selector string) error {
	if f.current == nil {
		return browser.ErrNoWindow
	}
	p := f.Site[f.current.url]
	if p.covered(selector) {
		return fmt.Errorf("%w: %s", browser.ErrCovered, selector)
	}
	if to, ok := p.Clicks[selector]; ok {
		f.Clicked = append(f.Clicked, selector)
		f.current.url = to
		return nil
	}
	if p.has(selector) {
		f.Clicked = append(f.Clicked, selector)
		return nil
	}
	return fmt.Errorf("%w: %s", browser.ErrNoElement, selector)
}

func (f *Fake) WaitForElement(selector string, _ time.Duration) error {
	if f.current == nil {
		return browser.ErrNoWindow
	}
	if f.Site[f.current.url].has(selector) {
		return nil
	}
	return fmt.Errorf("%w: %s", browser.ErrNoElement, selector)
}

func (f *Fake) SendKeys(selector, text string) error {
	if err := f.WaitForElement(selector, 0); err != nil {
		return err
	}
	f.Keys[selector] = text
	return nil
}
