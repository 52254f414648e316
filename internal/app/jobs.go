package app

import (
	"fmt"

	"github.com/jeffwilliams/hexcore/internal/color"
	"github.com/jeffwilliams/hexcore/internal/diff"
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
	"github.com/jeffwilliams/hexcore/internal/search"
	"github.com/jeffwilliams/hexcore/internal/task"
)

// SearchColor highlights search occurrences.
var SearchColor = color.RGBA(0x30, 0x90, 0xE0, 0x60)

// A SearchRun is a search running in the background whose occurrences are highlighted once it
// finishes.
type SearchRun struct {
	Task        *task.Task
	Occurrences []search.Occurrence
	Err         error

	app      *App
	provider *provider.Provider
	handles  []Handle
}

// StartSearch searches r of p on a worker. On the foreground goroutine the occurrences are
// highlighted and then is called, if not nil.
func (a *App) StartSearch(p *provider.Provider, r region.Region, s search.Settings, then func(run *SearchRun)) *SearchRun {
	run := &SearchRun{app: a, provider: p}
	var occs []search.Occurrence

	run.Task = a.Tasks.Submit(fmt.Sprintf("search %s", p.Name()), func(t *task.Task) (err error) {
		occs, err = search.Search(t.Context(), p, r, s, t.Update)
		return err
	}, func(t *task.Task) {
		run.Err = t.Err()
		if run.Err == nil {
			run.Occurrences = occs
			run.highlight()
		}
		if then != nil {
			then(run)
		}
	})
	return run
}

func (run *SearchRun) highlight() {
	if _, ok := run.app.Find(run.provider.ID()); !ok {
		return
	}
	for _, o := range run.Occurrences {
		run.handles = append(run.handles, run.app.highlights.AddStatic(run.provider.ID(), o.Region, SearchColor))
	}
}

// Clear removes the highlights of the occurrences.
func (run *SearchRun) Clear() {
	run.Task.Cancel()
	for _, h := range run.handles {
		run.app.highlights.Remove(h)
	}
	run.handles = nil
}

// A DiffRun compares two providers and highlights the differences on each for as long as its
// result is valid.
type DiffRun struct {
	Job  *diff.Job
	Task *task.Task

	app     *App
	handles []Handle
}

// StartDiff compares a and b with alg on a worker.
func (a *App) StartDiff(pa, pb *provider.Provider, alg diff.Algorithm) *DiffRun {
	run := &DiffRun{app: a, Job: diff.NewJob(pa, pb, alg)}
	run.handles = []Handle{
		a.highlights.AddDynamic(pa.ID(), run.side(func(r *diff.Result) *diff.Side { return &r.A })),
		a.highlights.AddDynamic(pb.ID(), run.side(func(r *diff.Result) *diff.Side { return &r.B })),
	}
	run.Restart()
	return run
}

func (run *DiffRun) side(pick func(r *diff.Result) *diff.Side) DynamicFunc[color.Color] {
	return func(addr uint64, data []byte, selected bool) (color.Color, bool) {
		res := run.Job.Result()
		if res == nil {
			return color.Default, false
		}
		k, ok := pick(res).KindAt(addr)
		if !ok {
			return color.Default, false
		}
		return k.Color(), true
	}
}

// Restart runs the comparison again, for instance after a data change made the result stale.
func (run *DiffRun) Restart() {
	prev := run.Task
	if prev != nil {
		prev.Cancel()
	}
	run.Task = run.app.Tasks.Submit("diff", func(t *task.Task) error {
		if prev != nil {
			<-prev.Finished()
		}
		return run.Job.Run(t.Context(), t.Update)
	}, nil)
}

// Close stops the comparison and removes its highlights.
func (run *DiffRun) Close() {
	run.Job.Close()
	if run.Task != nil {
		run.Task.Cancel()
	}
	for _, h := range run.handles {
		run.app.highlights.Remove(h)
	}
	run.handles = nil
}
