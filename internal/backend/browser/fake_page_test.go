// internal/backend/browser/fake_page_test.go
package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/cdproto/input"

	"github.com/xkilldash9x/pilot/api/schemas"
)

type keyPress struct {
	keys      string
	modifiers []input.Modifier
}

type clickEvent struct {
	at    schemas.Coordinate
	count int
}

// fakePage is an in-memory Page. Every method records what it was asked to do.
type fakePage struct {
	mu sync.Mutex

	url        string
	backURL    string
	navigateTo string // set: the next click navigates here
	elements   map[schemas.Coordinate]*Element
	active     *Element
	focusOK    bool
	loading    []LoadingProbe // consumed in order; the last one repeats
	loadingErr error
	submit     string
	size       int64

	armed chan struct{}

	clicks       []clickEvent
	moves        []schemas.Coordinate
	wheels       []float64
	keys         []keyPress
	scrolled     []schemas.Coordinate
	focused      []schemas.Coordinate
	navigations  []string
	screenshots  int
	sizeSamples  int
	loadingCalls int
	closed       bool
}

var _ Page = (*fakePage)(nil)

func newFakePage() *fakePage {
	return &fakePage{
		url:      "https://start.test/",
		elements: map[schemas.Coordinate]*Element{},
		size:     1024,
	}
}

func (f *fakePage) put(at schemas.Coordinate, el Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el.Found = true
	f.elements[at] = &el
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	f.url = url
	return nil
}

func (f *fakePage) NavigateBack(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backURL == "" {
		return errors.New("no history")
	}
	f.url = f.backURL
	return nil
}

func (f *fakePage) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakePage) ElementAt(_ context.Context, at schemas.Coordinate) (*Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[at], nil
}

func (f *fakePage) ActiveElement(context.Context) (*Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakePage) ScrollIntoView(_ context.Context, at schemas.Coordinate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolled = append(f.scrolled, at)
	return nil
}

func (f *fakePage) Focus(_ context.Context, at schemas.Coordinate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = append(f.focused, at)
	return f.focusOK, nil
}

func (f *fakePage) Click(_ context.Context, at schemas.Coordinate, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, clickEvent{at: at, count: count})
	if f.navigateTo != "" {
		f.url = f.navigateTo
		f.navigateTo = ""
		if f.armed != nil {
			close(f.armed)
			f.armed = nil
		}
	}
	return nil
}

func (f *fakePage) MoveMouse(_ context.Context, at schemas.Coordinate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, at)
	return nil
}

func (f *fakePage) Wheel(_ context.Context, _ schemas.Coordinate, deltaY float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wheels = append(f.wheels, deltaY)
	return nil
}

func (f *fakePage) PressKey(_ context.Context, keys string, modifiers ...input.Modifier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, keyPress{keys: keys, modifiers: modifiers})
	return nil
}

func (f *fakePage) ContentSize(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizeSamples++
	return f.size, nil
}

func (f *fakePage) ProbeLoading(context.Context, []string) (LoadingProbe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadingCalls++
	if f.loadingErr != nil {
		return LoadingProbe{}, f.loadingErr
	}
	if len(f.loading) == 0 {
		return LoadingProbe{}, nil
	}
	probe := f.loading[0]
	if len(f.loading) > 1 {
		f.loading = f.loading[1:]
	}
	return probe, nil
}

func (f *fakePage) SubmitForm(context.Context, []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submit, nil
}

func (f *fakePage) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenshots++
	return []byte("png"), nil
}

func (f *fakePage) ExpectNavigation(context.Context) (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.armed = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.armed == ch {
			f.armed = nil
		}
	}
}

func (f *fakePage) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// snapshot returns counters under the lock.
func (f *fakePage) snapshot() (clicks, screenshots, loadingCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clicks), f.screenshots, f.loadingCalls
}
