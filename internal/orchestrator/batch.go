package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/scheduler"
	"git.home.luguber.info/inful/sitebuilder/internal/siteindex"
)

// Build modes reported in logs, metrics, journal and events.
const (
	ModeFull       = "full"
	ModeLazy       = "lazy"
	ModeRebuild    = "rebuild"
	ModeNavigate   = "navigate"
	ModeReload     = "reload"
	ModeBackground = "background"
)

const publishTimeout = 2 * time.Second

// Outcome summarizes one operation.
type Outcome struct {
	// BatchID is empty when nothing was scheduled.
	BatchID string
	// Built lists the keys handed to the scheduler.
	Built []string
	// Deferred lists the keys left in the pending set.
	Deferred []string
	// Completed is false when the batch was cut short by cancellation.
	Completed bool
}

type batchTask struct {
	mode scheduler.Mode
	keys []string
}

// boundPage binds an artifact to the rendering context of its batch.
type boundPage struct {
	page Page
	rc   *render.Context
}

func (b boundPage) Key() string { return b.page.Key() }

func (b boundPage) Generate(ctx context.Context) error { return b.page.Generate(ctx, b.rc) }

// runBatch schedules tasks as one batch and performs the per-batch
// bookkeeping: journal, events, metrics and the site index.
func (o *Orchestrator) runBatch(ctx context.Context, mode string, specs ...batchTask) (Outcome, error) {
	rc := o.renderContext()

	var (
		tasks []scheduler.Task
		keys  []string
	)
	for _, s := range specs {
		pages := o.pagesFor(s.keys)
		if len(pages) == 0 {
			continue
		}
		bound := make([]scheduler.Page, 0, len(pages))
		for _, p := range pages {
			bound = append(bound, boundPage{page: p, rc: rc})
			keys = append(keys, p.Key())
		}
		tasks = append(tasks, scheduler.Task{Mode: s.mode, Pages: bound})
	}
	if len(tasks) == 0 {
		return Outcome{Completed: true}, nil
	}

	out := Outcome{BatchID: uuid.NewString(), Built: keys}
	logger := o.logger.With(logfields.BatchID(out.BatchID), logfields.BuildMode(mode))
	logger.Info("Generation batch started", logfields.Pages(len(keys)))
	o.journal.Started(ctx, out.BatchID, eventstore.BatchStarted{Mode: mode, Pages: keys})

	start := time.Now()
	completed, err := o.sched.Run(ctx, tasks...)
	elapsed := time.Since(start)
	o.recorder.SetPending(o.tracker.Len())

	if err != nil {
		page := failedPage(err)
		logger.Error("Generation batch failed", logfields.Page(page), logfields.Error(err))
		o.journal.Failed(ctx, out.BatchID, eventstore.BatchFailed{Mode: mode, Page: page, Error: err.Error()})
		o.publish(ctx, events.BuildFailed{BatchID: out.BatchID, Mode: mode, Page: page, Error: err.Error(), At: time.Now()})
		o.cleanup(false)
		return out, err
	}

	out.Completed = completed
	o.journal.Finished(ctx, out.BatchID, mode, completed, elapsed)
	o.writeIndex()
	o.publish(ctx, events.PagesBuilt{BatchID: out.BatchID, Mode: mode, Keys: keys, Completed: completed, At: time.Now()})
	logger.Info("Generation batch finished",
		logfields.Completed(completed),
		logfields.DurationMS(float64(elapsed.Microseconds())/1000),
		logfields.Pending(o.tracker.Len()))
	return out, nil
}

func (o *Orchestrator) renderContext() *render.Context {
	o.mu.RLock()
	vars := o.vars
	o.mu.RUnlock()
	return render.NewContext(o.cfg, o.workspace, vars)
}

func (o *Orchestrator) loadVariables() error {
	vars, err := o.variables.Load()
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.vars = vars
	o.mu.Unlock()
	return nil
}

// writeIndex rewrites the site index from the current artifacts. Only
// searchable pages that have been generated are listed. Write failures are
// logged.
func (o *Orchestrator) writeIndex() {
	o.indexMu.Lock()
	defer o.indexMu.Unlock()

	var entries []siteindex.Entry
	for _, p := range o.snapshot() {
		if !p.Searchable() {
			continue
		}
		if e, ok := p.Summary(); ok {
			entries = append(entries, e)
		}
	}
	path := siteindex.Path(o.cfg.Output)
	if err := siteindex.Write(path, siteindex.New(o.cfg.EnableSearch, entries)); err != nil {
		o.logger.Warn("Failed to write site index", logfields.Path(path), logfields.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, evt events.Event) {
	if o.bus == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := o.bus.Publish(pctx, evt); err != nil {
		o.logger.Warn("Failed to publish build event", logfields.Error(err))
	}
}

// cleanup removes the staging directory and, for a failed full build, the
// partially written output.
func (o *Orchestrator) cleanup(removeOutput bool) {
	if err := o.workspace.Cleanup(); err != nil {
		o.logger.Warn("Failed to clean up workspace", logfields.Error(err))
	}
	if !removeOutput {
		return
	}
	if err := os.RemoveAll(o.cfg.Output); err != nil {
		o.logger.Warn("Failed to remove partial output", logfields.Path(o.cfg.Output), logfields.Error(err))
		return
	}
	o.logger.Debug("Removed partial output", slog.String("output", o.cfg.Output))
}

func failedPage(err error) string {
	if ce, ok := ferrors.AsClassified(err); ok {
		if page, ok := ce.Context().GetString("page"); ok {
			return page
		}
	}
	return ""
}
