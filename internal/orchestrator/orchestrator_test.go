package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pageset"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/siteindex"
)

type fakeFactory struct {
	mu      sync.Mutex
	pages   map[string]*fakePage
	created map[string]int
	order   []string
	deps    []string
	fail    map[string]error
	gate    chan struct{}
	started chan string
}

func newFakeFactory(deps ...string) *fakeFactory {
	return &fakeFactory{
		pages:   map[string]*fakePage{},
		created: map[string]int{},
		fail:    map[string]error{},
		deps:    deps,
	}
}

func (f *fakeFactory) New(ap pageset.AddressablePage) Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePage{f: f, ap: ap}
	f.pages[ap.Key] = p
	f.created[ap.Key]++
	return p
}

func (f *fakeFactory) page(key string) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[key]
}

func (f *fakeFactory) generated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeFactory) block() {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.started = make(chan string, 64)
	f.mu.Unlock()
}

type fakePage struct {
	f  *fakeFactory
	ap pageset.AddressablePage

	mu        sync.Mutex
	gens      int
	generated bool
}

func (p *fakePage) Key() string { return p.ap.Key }

func (p *fakePage) IsDependency(path string) bool {
	return path == p.ap.Src || slices.Contains(p.f.deps, path)
}

func (p *fakePage) Generate(ctx context.Context, _ *render.Context) error {
	p.f.mu.Lock()
	gate, started, fail := p.f.gate, p.f.started, p.f.fail[p.ap.Key]
	p.f.order = append(p.f.order, p.ap.Key)
	p.f.mu.Unlock()

	if started != nil {
		started <- p.ap.Key
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.gens++
	if fail != nil {
		return fail
	}
	p.generated = true
	return nil
}

func (p *fakePage) Summary() (siteindex.Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return siteindex.Entry{Src: p.ap.Src, Title: p.ap.Key}, p.generated
}

func (p *fakePage) Searchable() bool                     { return p.ap.Searchable() }
func (p *fakePage) Addressable() pageset.AddressablePage { return p.ap }

func (p *fakePage) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gens
}

type site struct {
	root    string
	out     string
	cfg     *config.Config
	factory *fakeFactory
}

func newSite(t *testing.T, files ...string) *site {
	t.Helper()
	base := t.TempDir()
	s := &site{root: filepath.Join(base, "content"), out: filepath.Join(base, "_site"), factory: newFakeFactory("shared.css")}
	require.NoError(t, os.MkdirAll(s.root, 0o750))
	for _, f := range files {
		s.write(t, f, "# "+f+"\n")
	}
	s.cfg = &config.Config{
		Root:         s.root,
		Output:       s.out,
		EnableSearch: true,
		Ignore:       []string{"_*"},
		Pages:        []config.PageEntry{{Glob: config.StringList{"**/*.md"}}},
	}
	s.cfg.ApplyDefaults()
	return s
}

func (s *site) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(s.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func (s *site) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(s.cfg, append([]Option{WithPageFactory(s.factory)}, opts...)...)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func (s *site) index(t *testing.T) siteindex.Index {
	t.Helper()
	idx, err := siteindex.Read(siteindex.Path(s.out))
	require.NoError(t, err)
	return idx
}

func TestLazyBuild_BuildsLandingAndDefersRest(t *testing.T) {
	s := newSite(t, "index.md", "guide.md")
	o := s.orchestrator(t, WithLazy(true))

	out, err := o.Build(t.Context())
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, []string{"index"}, out.Built)
	assert.Equal(t, []string{"guide"}, out.Deferred)
	assert.Equal(t, []string{"guide"}, o.PendingKeys())
	assert.Equal(t, []string{"index"}, s.factory.generated())

	idx := s.index(t)
	assert.True(t, idx.EnableSearch)
	require.Len(t, idx.Pages, 1)
	assert.Equal(t, "index.md", idx.Pages[0].Src)
}

func TestLazyBuild_MissingLandingIsConfigError(t *testing.T) {
	s := newSite(t, "guide.md")
	o := s.orchestrator(t, WithLazy(true))

	_, err := o.Build(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	assert.Empty(t, o.PendingKeys())
	assert.Empty(t, s.factory.generated())
}

func TestFullBuild_DuplicateSourceIsConfigError(t *testing.T) {
	s := newSite(t, "a.md")
	s.cfg.Pages = []config.PageEntry{{Src: config.StringList{"a.md"}}, {Src: config.StringList{"a.md"}}}
	o := s.orchestrator(t)

	_, err := o.FullBuild(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, pageset.ErrDuplicateSource)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	assert.Empty(t, o.Pages())
}

func TestFullBuild_GeneratesEverySearchablePageIntoIndex(t *testing.T) {
	s := newSite(t, "a.md", "b.md", "_c.md", "private.md")
	s.cfg.Pages = append(s.cfg.Pages, config.PageEntry{Src: config.StringList{"private.md"}, Searchable: config.Ptr(false)})
	o := s.orchestrator(t)

	out, err := o.Build(t.Context())
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.NotEmpty(t, out.BatchID)
	assert.ElementsMatch(t, []string{"a", "b", "private"}, out.Built)
	assert.Empty(t, o.PendingKeys())

	var srcs []string
	for _, e := range s.index(t).Pages {
		srcs = append(srcs, e.Src)
	}
	assert.Equal(t, []string{"a.md", "b.md"}, srcs)
}

func TestFullBuild_FailureAbortsAndCleansOutput(t *testing.T) {
	s := newSite(t, "a.md", "b.md")
	s.factory.fail["b"] = errors.New("boom")
	require.NoError(t, os.MkdirAll(s.out, 0o750))
	o := s.orchestrator(t)

	_, err := o.FullBuild(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGeneration))
	assert.Equal(t, "b", failedPage(err))
	assert.NoDirExists(t, s.out)
}

func TestRebuild_VariablesFileAffectsEveryPage(t *testing.T) {
	s := newSite(t, "a.md", "b.md")
	s.write(t, "_data/vars.yaml", "product: Widget\n")
	s.cfg.Variables = []string{"_data/vars.yaml"}
	o := s.orchestrator(t)
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	out, err := o.Rebuild(t.Context(), []string{filepath.Join(s.root, "_data", "vars.yaml")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, out.Built)
	assert.Equal(t, 2, s.factory.page("a").count())
	assert.Equal(t, 2, s.factory.page("b").count())
}

func TestRebuild_ForceReloadAffectsEveryPage(t *testing.T) {
	s := newSite(t, "a.md", "b.md")
	s.cfg.ForceReload = true
	o := s.orchestrator(t)
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	out, err := o.Rebuild(t.Context(), []string{"a.md"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, out.Built)
}

func TestRebuild_OnlyMatchingDependencies(t *testing.T) {
	s := newSite(t, "a.md", "b.md")
	o := s.orchestrator(t)
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	out, err := o.Rebuild(t.Context(), []string{"b.md"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out.Built)
	assert.Equal(t, 1, s.factory.page("a").count())

	out, err = o.Rebuild(t.Context(), []string{"unrelated.txt"})
	require.NoError(t, err)
	assert.Empty(t, out.BatchID)
	assert.True(t, out.Completed)
}

func TestRebuild_LazyBuildsOpenPagesAndDefersOthers(t *testing.T) {
	s := newSite(t, "index.md", "a.md", "b.md")
	o := s.orchestrator(t, WithLazy(true))
	_, err := o.Build(t.Context())
	require.NoError(t, err)
	o.SetOpenedPages([]string{"a", "index"})

	out, err := o.Rebuild(t.Context(), []string{"shared.css"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "index"}, out.Built, "open pages run in recency order")
	assert.Equal(t, []string{"b"}, out.Deferred)
	assert.Equal(t, []string{"b"}, o.PendingKeys())
}

func TestRebuild_FullModeRunsOpenPagesFirst(t *testing.T) {
	s := newSite(t, "a.md", "b.md", "index.md")
	o := s.orchestrator(t)
	_, err := o.Build(t.Context())
	require.NoError(t, err)
	o.SetOpenedPages([]string{"b"})

	out, err := o.Rebuild(t.Context(), []string{"shared.css"})
	require.NoError(t, err)
	require.Len(t, out.Built, 3)
	assert.Equal(t, "b", out.Built[0])
	assert.Empty(t, out.Deferred)

	gen := s.factory.generated()
	assert.Equal(t, "b", gen[3], "the open page is generated before the rest")
}

func TestRebuildViewed_OnlyPendingPages(t *testing.T) {
	s := newSite(t, "index.md", "guide.md", "faq.md")
	o := s.orchestrator(t, WithLazy(true))
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	out, err := o.RebuildViewed(t.Context(), []string{"guide", "index", "guide", "nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{"guide"}, out.Built)
	assert.Equal(t, []string{"faq"}, o.PendingKeys())

	out, err = o.RebuildViewed(t.Context(), []string{"guide"})
	require.NoError(t, err)
	assert.Empty(t, out.BatchID)
	assert.Equal(t, 1, s.factory.page("guide").count())
}

func TestBackgroundFill_BuildsPending(t *testing.T) {
	s := newSite(t, "index.md", "a.md", "b.md")
	o := s.orchestrator(t, WithLazy(true))
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	out, err := o.BackgroundFill(t.Context())
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.ElementsMatch(t, []string{"a", "b"}, out.Built)
	assert.Empty(t, o.PendingKeys())
	assert.Len(t, s.index(t).Pages, 3)

	out, err = o.BackgroundFill(t.Context())
	require.NoError(t, err)
	assert.Empty(t, out.BatchID)
}

func TestStopOngoingBuilds_CancelsBackgroundFill(t *testing.T) {
	files := []string{"index.md"}
	for _, n := range []string{"p01", "p02", "p03", "p04", "p05", "p06", "p07", "p08", "p09", "p10", "p11"} {
		files = append(files, n+".md")
	}
	s := newSite(t, files...)
	s.cfg.Concurrency = 2
	o := s.orchestrator(t, WithLazy(true))
	_, err := o.Build(t.Context())
	require.NoError(t, err)
	require.Len(t, o.PendingKeys(), 11)

	s.factory.block()
	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := o.BackgroundFill(context.Background())
		done <- result{out, err}
	}()

	for range 2 {
		select {
		case <-s.factory.started:
		case <-time.After(2 * time.Second):
			t.Fatal("background fill did not dispatch")
		}
	}
	o.StopOngoingBuilds()
	close(s.factory.gate)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background fill did not finish")
	}
	require.NoError(t, res.err)
	assert.False(t, res.out.Completed)
	assert.Len(t, o.PendingKeys(), 9, "undispatched pages stay pending")
}

func TestReloadPages_StructuralFullModeRemovesOutputs(t *testing.T) {
	s := newSite(t, "a.md", "b.md")
	s.cfg.Pages = []config.PageEntry{{Src: config.StringList{"a.md", "b.md"}}}
	o := s.orchestrator(t)
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(s.out, 0o750))
	stale := filepath.Join(s.out, "b"+render.OutputExt)
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))

	out, err := o.ReloadPages(t.Context(), []config.PageEntry{{Src: config.StringList{"a.md"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Built)
	assert.NoFileExists(t, stale)
	assert.False(t, o.HasPage("b"))
}

func TestReloadPages_InPlaceChangeReplacesArtifact(t *testing.T) {
	s := newSite(t, "a.md", "b.md")
	s.cfg.Pages = []config.PageEntry{
		{Src: config.StringList{"a.md"}, Title: config.Ptr("A")},
		{Src: config.StringList{"b.md"}},
	}
	o := s.orchestrator(t)
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	out, err := o.ReloadPages(t.Context(), []config.PageEntry{
		{Src: config.StringList{"a.md"}, Title: config.Ptr("A2")},
		{Src: config.StringList{"b.md"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Built)
	assert.Equal(t, 2, s.factory.created["a"])
	assert.Equal(t, 1, s.factory.created["b"])
	assert.Equal(t, "A2", o.Pages()[0].TitleOverride())

	out, err = o.ReloadPages(t.Context(), []config.PageEntry{
		{Src: config.StringList{"a.md"}, Title: config.Ptr("A2")},
		{Src: config.StringList{"b.md"}},
	})
	require.NoError(t, err)
	assert.Empty(t, out.BatchID)
}

func TestReloadPages_LazyStructuralRedefersRest(t *testing.T) {
	s := newSite(t, "index.md", "guide.md")
	o := s.orchestrator(t, WithLazy(true))
	_, err := o.Build(t.Context())
	require.NoError(t, err)
	_, err = o.RebuildViewed(t.Context(), []string{"guide"})
	require.NoError(t, err)
	require.Empty(t, o.PendingKeys())

	s.write(t, "extra.md", "# Extra\n")
	out, err := o.ReloadPages(t.Context(), s.cfg.Pages)
	require.NoError(t, err)
	assert.Equal(t, []string{"index"}, out.Built)
	assert.Equal(t, []string{"extra", "guide"}, o.PendingKeys())
}

func TestReloadPages_DuplicateLeavesStateUntouched(t *testing.T) {
	s := newSite(t, "index.md", "guide.md")
	o := s.orchestrator(t, WithLazy(true))
	_, err := o.Build(t.Context())
	require.NoError(t, err)

	_, err = o.ReloadPages(t.Context(), []config.PageEntry{{Src: config.StringList{"x.md"}}, {Src: config.StringList{"x.md"}}})
	require.Error(t, err)
	assert.Equal(t, []string{"guide"}, o.PendingKeys())
	assert.Len(t, o.Pages(), 2)
}

func TestBatch_PublishesEventAndJournals(t *testing.T) {
	s := newSite(t, "a.md")
	bus := events.NewBus()
	defer bus.Close()
	built, unsubscribe := events.Subscribe[events.PagesBuilt](bus, 4)
	defer unsubscribe()

	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	o := s.orchestrator(t, WithBus(bus), WithJournal(eventstore.NewJournal(store, nil)))

	out, err := o.Build(t.Context())
	require.NoError(t, err)

	select {
	case evt := <-built:
		assert.Equal(t, out.BatchID, evt.BatchID)
		assert.Equal(t, ModeFull, evt.Mode)
		assert.Equal(t, []string{"a"}, evt.Keys)
		assert.True(t, evt.Completed)
	case <-time.After(time.Second):
		t.Fatal("no PagesBuilt event")
	}

	journal, err := store.GetByBatchID(t.Context(), out.BatchID)
	require.NoError(t, err)
	require.Len(t, journal, 2)
	assert.Equal(t, eventstore.TypeBatchStarted, journal[0].Type)
	assert.Equal(t, eventstore.TypeBatchFinished, journal[1].Type)
}

func TestFullBuild_RendersMarkdown(t *testing.T) {
	s := newSite(t)
	s.write(t, "index.md", "---\ntitle: Home\n---\n# Welcome\n\n## Install\n")
	s.write(t, "docs/guide.md", "# Guide\n")
	o := New(s.cfg)
	t.Cleanup(func() { _ = o.Close() })

	_, err := o.Build(t.Context())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(s.out, "index.html"))
	assert.FileExists(t, filepath.Join(s.out, "docs", "guide.html"))

	idx := s.index(t)
	require.Len(t, idx.Pages, 2)
	byKey := map[string]siteindex.Entry{}
	for _, e := range idx.Pages {
		byKey[e.Src] = e
	}
	assert.Equal(t, "Home", byKey["index.md"].Title)
	assert.Equal(t, "Install", byKey["index.md"].Headings["install"])

	s.write(t, "docs/guide.md", "# Guide v2\n")
	out, err := o.Rebuild(t.Context(), []string{filepath.Join(s.root, "docs", "guide.md")})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/guide"}, out.Built)
	html, err := os.ReadFile(filepath.Join(s.out, "docs", "guide.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Guide v2")
}
