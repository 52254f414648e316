// Package app holds the state shared by the parts of the editor: the open providers, the
// selection, highlights, tooltips, bookmarks, evaluated patterns and background tasks.
//
// Except where noted, App is owned by the foreground goroutine. Background tasks hand their
// results back through the task manager's inbox.
package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeffwilliams/hexcore/internal/color"
	"github.com/jeffwilliams/hexcore/internal/errs"
	"github.com/jeffwilliams/hexcore/internal/pattern"
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
	"github.com/jeffwilliams/hexcore/internal/task"
)

var ErrNotManaged = errors.New("provider is not open in this application")

type Options struct {
	Provider provider.Options
	// Workers is the size of the task worker pool. Zero means one per CPU.
	Workers int
}

var DefaultOptions = Options{Provider: provider.DefaultOptions}

type App struct {
	opts     Options
	Tasks    *task.Manager
	Registry *provider.Registry

	providers []*provider.Provider
	current   int
	closing   []*provider.Provider
	unwatch   map[uint64]func()

	selection  map[uint64]region.Region
	highlights *Highlights
	tooltips   *Tooltips
	bookmarks  map[uint64]*Bookmarks
	patterns   map[uint64]*patternSet

	listenerLock sync.Mutex
	listeners    map[int]func(p *provider.Provider, r region.Region)
	nextListener int
}

type patternSet struct {
	roots      []pattern.Pattern
	index      *pattern.Index
	formatters pattern.Formatters
}

func New(opts Options) *App {
	return &App{
		opts:       opts,
		Tasks:      task.NewManager(opts.Workers),
		Registry:   provider.DefaultRegistry,
		current:    -1,
		unwatch:    map[uint64]func(){},
		selection:  map[uint64]region.Region{},
		highlights: NewRegistry[color.Color](),
		tooltips:   NewRegistry[string](),
		bookmarks:  map[uint64]*Bookmarks{},
		patterns:   map[uint64]*patternSet{},
		listeners:  map[int]func(*provider.Provider, region.Region){},
	}
}

func (a *App) Options() Options {
	return a.opts
}

// Add opens p if needed, adds it to the open providers and makes it current.
func (a *App) Add(p *provider.Provider) error {
	if !p.IsOpen() {
		if err := p.Open(); err != nil {
			return err
		}
	}
	a.providers = append(a.providers, p)
	a.current = len(a.providers) - 1
	a.unwatch[p.ID()] = p.OnDataChanged(func(r region.Region) {
		a.dataChanged(p, r)
	})
	dbg("opened provider %d '%s'", p.ID(), p.Name())
	return nil
}

// Open wraps b in a provider with the application's options and adds it.
func (a *App) Open(b provider.Backend) (*provider.Provider, error) {
	p := provider.New(b, a.opts.Provider)
	if err := a.Add(p); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenFile opens the file at path.
func (a *App) OpenFile(path string, readOnly bool) (*provider.Provider, error) {
	return a.Open(provider.NewFile(path, readOnly))
}

func (a *App) Providers() []*provider.Provider {
	return append([]*provider.Provider(nil), a.providers...)
}

// Current returns the selected provider, or nil if none is open.
func (a *App) Current() *provider.Provider {
	if a.current < 0 {
		return nil
	}
	return a.providers[a.current]
}

func (a *App) indexOf(p *provider.Provider) int {
	for i, q := range a.providers {
		if q == p {
			return i
		}
	}
	return -1
}

func (a *App) SetCurrent(p *provider.Provider) error {
	i := a.indexOf(p)
	if i < 0 {
		return fmt.Errorf("%w: '%s'", ErrNotManaged, p.Name())
	}
	a.current = i
	return nil
}

// Find returns the open provider with the given id.
func (a *App) Find(id uint64) (*provider.Provider, bool) {
	for _, p := range a.providers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Close detaches p and everything registered for it. The provider itself stays open in the
// closing set until ReleaseClosing, so work still referring to it can finish.
func (a *App) Close(p *provider.Provider) error {
	i := a.indexOf(p)
	if i < 0 {
		return fmt.Errorf("%w: '%s'", ErrNotManaged, p.Name())
	}
	a.providers = append(a.providers[:i], a.providers[i+1:]...)
	switch {
	case len(a.providers) == 0:
		a.current = -1
	case a.current > i:
		a.current--
	case a.current >= len(a.providers):
		a.current = len(a.providers) - 1
	}

	id := p.ID()
	if f := a.unwatch[id]; f != nil {
		f()
		delete(a.unwatch, id)
	}
	delete(a.selection, id)
	delete(a.bookmarks, id)
	delete(a.patterns, id)
	a.highlights.RemoveProvider(id)
	a.tooltips.RemoveProvider(id)

	a.closing = append(a.closing, p)
	dbg("closing provider %d '%s'", id, p.Name())
	return nil
}

func (a *App) Closing() []*provider.Provider {
	return append([]*provider.Provider(nil), a.closing...)
}

// ReleaseClosing closes the providers in the closing set.
func (a *App) ReleaseClosing() error {
	e := errs.New()
	for _, p := range a.closing {
		if err := p.Close(); err != nil {
			e.Add(fmt.Errorf("closing '%s': %w", p.Name(), err))
		}
	}
	a.closing = nil
	return e.NilIfEmpty()
}

// Shutdown stops all tasks and closes every provider.
func (a *App) Shutdown() error {
	a.Tasks.Shutdown()
	e := errs.New()
	for len(a.providers) > 0 {
		e.Add(a.Close(a.providers[len(a.providers)-1]))
	}
	e.Add(a.ReleaseClosing())
	return e.NilIfEmpty()
}

// Select sets the selection of p.
func (a *App) Select(p *provider.Provider, r region.Region) {
	a.selection[p.ID()] = r
}

func (a *App) ClearSelection(p *provider.Provider) {
	delete(a.selection, p.ID())
}

func (a *App) Selection(p *provider.Provider) (region.Region, bool) {
	r, ok := a.selection[p.ID()]
	return r, ok
}

func (a *App) Highlights() *Highlights {
	return a.highlights
}

// HighlightSpans returns the runs of r in p that share the same static highlights, for drawing a
// visible range a run at a time.
func (a *App) HighlightSpans(p *provider.Provider, r region.Region) []Span[color.Color] {
	return a.highlights.Spans(p.ID(), r)
}

func (a *App) Tooltips() *Tooltips {
	return a.tooltips
}

// Bookmarks returns the bookmarks of p.
func (a *App) Bookmarks(p *provider.Provider) *Bookmarks {
	bs := a.bookmarks[p.ID()]
	if bs == nil {
		bs = NewBookmarks()
		a.bookmarks[p.ID()] = bs
	}
	return bs
}

// SetPatterns installs the patterns evaluated over p, replacing earlier ones.
func (a *App) SetPatterns(p *provider.Provider, roots []pattern.Pattern, fns pattern.Formatters) {
	a.patterns[p.ID()] = &patternSet{roots: roots, index: pattern.NewIndex(roots), formatters: fns}
}

func (a *App) Patterns(p *provider.Provider) []pattern.Pattern {
	if ps := a.patterns[p.ID()]; ps != nil {
		return ps.roots
	}
	return nil
}

// PatternsAt returns the patterns covering addr in p, innermost first.
func (a *App) PatternsAt(p *provider.Provider, addr uint64) []pattern.Pattern {
	if ps := a.patterns[p.ID()]; ps != nil {
		return ps.index.PatternsAt(addr)
	}
	return nil
}

func (a *App) selected(p *provider.Provider, addr uint64) bool {
	r, ok := a.selection[p.ID()]
	return ok && r.Contains(addr)
}

// HighlightsAt returns the colours to draw at addr of p: registered highlights, then bookmarks,
// then the innermost pattern.
func (a *App) HighlightsAt(p *provider.Provider, addr uint64, data []byte) []color.Color {
	cs := a.highlights.At(p.ID(), addr, data, a.selected(p, addr))
	if bs := a.bookmarks[p.ID()]; bs != nil {
		for _, b := range bs.At(addr) {
			cs = append(cs, b.Color)
		}
	}
	if ps := a.patterns[p.ID()]; ps != nil {
		if c, ok := ps.index.ColorAt(addr); ok {
			cs = append(cs, c)
		}
	}
	return cs
}

// TooltipsAt returns the tooltip lines for addr of p: registered tooltips, then bookmark names
// and comments, then the innermost pattern and its value.
func (a *App) TooltipsAt(p *provider.Provider, addr uint64, data []byte) []string {
	ts := a.tooltips.At(p.ID(), addr, data, a.selected(p, addr))
	if bs := a.bookmarks[p.ID()]; bs != nil {
		for _, b := range bs.At(addr) {
			if b.Comment != "" {
				ts = append(ts, fmt.Sprintf("%s: %s", b.Name, b.Comment))
			} else {
				ts = append(ts, b.Name)
			}
		}
	}
	if ps := a.patterns[p.ID()]; ps != nil {
		if pats := ps.index.PatternsAt(addr); len(pats) > 0 {
			pat := pats[0]
			def, err := pattern.Format(pat, p)
			if err != nil {
				def = err.Error()
			}
			ts = append(ts, fmt.Sprintf("%s: %s", pat.Base().Name(), pattern.FormatDisplayValue(pat, def, ps.formatters, p)))
		}
	}
	return ts
}

// OnDataChanged registers fn to be called after the data of any open provider changes. It runs
// on the goroutine that made the change.
func (a *App) OnDataChanged(fn func(p *provider.Provider, r region.Region)) (remove func()) {
	a.listenerLock.Lock()
	defer a.listenerLock.Unlock()

	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	return func() {
		a.listenerLock.Lock()
		defer a.listenerLock.Unlock()
		delete(a.listeners, id)
	}
}

func (a *App) dataChanged(p *provider.Provider, r region.Region) {
	a.listenerLock.Lock()
	fns := make([]func(*provider.Provider, region.Region), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.listenerLock.Unlock()

	if ps := a.patterns[p.ID()]; ps != nil {
		pattern.ClearDisplayValues(ps.roots)
	}
	for _, fn := range fns {
		fn(p, r)
	}
}
