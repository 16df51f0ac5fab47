package editor

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/render"
	"github.com/debemdeboas/markedit/internal/repository"
	"github.com/debemdeboas/markedit/internal/repository/draft"
	"github.com/debemdeboas/markedit/internal/schedule"
	"github.com/debemdeboas/markedit/internal/transform"
	"github.com/rs/zerolog"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func init() {
	SetLogger(zerolog.New(os.Stderr).Level(zerolog.Disabled))
}

// fakeDocs is an in-memory document store with failure injection.
type fakeDocs struct {
	mu      sync.Mutex
	now     func() time.Time
	docs    map[model.DocumentID]model.Document
	saveErr error
	saves   int
}

func newFakeDocs(now func() time.Time) *fakeDocs {
	return &fakeDocs{now: now, docs: make(map[model.DocumentID]model.Document)}
}

func (f *fakeDocs) put(doc model.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
}

func (f *fakeDocs) get(id model.DocumentID) (model.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	return doc, ok
}

func (f *fakeDocs) Create(ctx context.Context) (*model.Document, error) {
	doc := model.NewDocument(f.now())
	f.put(*doc)
	return doc, nil
}

func (f *fakeDocs) Load(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	doc, ok := f.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeDocs) Save(ctx context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.docs[doc.ID]; !ok {
		return repository.ErrNotFound
	}
	doc.UpdatedAt = f.now()
	f.docs[doc.ID] = *doc
	return nil
}

func (f *fakeDocs) Rename(ctx context.Context, id model.DocumentID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	doc.Title = model.NormalizeTitle(title)
	f.docs[id] = doc
	return nil
}

func (f *fakeDocs) Delete(ctx context.Context, id model.DocumentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeDocs) List(ctx context.Context) ([]model.DocumentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []model.DocumentSummary
	for _, doc := range f.docs {
		list = append(list, doc.Summary())
	}
	return list, nil
}

func (f *fakeDocs) FindBySourcePath(ctx context.Context, path string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.SourcePath != "" && strings.EqualFold(doc.SourcePath, path) {
			return &doc, nil
		}
	}
	return nil, repository.ErrNotFound
}

// echoRenderer wraps text in a paragraph and fails on demand.
type echoRenderer struct{}

func (echoRenderer) Render(src []byte, opts render.Options) ([]byte, error) {
	if strings.Contains(string(src), "BROKEN") {
		return nil, render.ErrRenderPanic
	}
	return []byte("<p>" + string(src) + "</p>"), nil
}

// flakyDrafts fails draft writes while saveErr is set.
type flakyDrafts struct {
	draft.Repository
	saveErr error
	fails   int
}

func (f *flakyDrafts) SaveDraft(ctx context.Context, id model.DocumentID, content string) error {
	if f.saveErr != nil {
		f.fails++
		return f.saveErr
	}
	return f.Repository.SaveDraft(ctx, id, content)
}

type harness struct {
	t      *testing.T
	clock  *schedule.Manual
	docs   *fakeDocs
	drafts *draft.MemoryRepository
	flaky  *flakyDrafts
	ed     *Editor
	events []Event
}

func newHarness(t *testing.T, r render.Renderer) *harness {
	t.Helper()
	if r == nil {
		r = render.NewGoldmark(render.NewChromaHighlighter("github"))
	}

	h := &harness{t: t, clock: schedule.NewManual(t0)}
	h.docs = newFakeDocs(h.clock.Now)
	h.drafts = draft.NewMemoryRepository().WithClock(h.clock.Now)
	h.flaky = &flakyDrafts{Repository: h.drafts}

	pipeline := preview.NewPipeline(transform.NewPipeline(transform.DefaultOptions()), r, render.DefaultOptions())
	h.ed = New(DefaultConfig(), Deps{
		Documents: h.docs,
		Drafts:    h.flaky,
		Preview:   pipeline,
		Scheduler: h.clock,
		Executor:  h.clock,
		Sink:      SinkFunc(func(e Event) { h.events = append(h.events, e) }),
	})
	return h
}

func (h *harness) create() Change {
	h.t.Helper()
	c, err := h.ed.Create(context.Background())
	if err != nil {
		h.t.Fatalf("Create() error = %v", err)
	}
	return c
}

func (h *harness) open(id model.DocumentID) Change {
	h.t.Helper()
	c, err := h.ed.Open(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Open(%s) error = %v", id, err)
	}
	return c
}

func (h *harness) do(action string, args Args) Change {
	h.t.Helper()
	c, err := h.ed.Dispatch(context.Background(), action, args)
	if err != nil {
		h.t.Fatalf("Dispatch(%s) error = %v", action, err)
	}
	return c
}

func (h *harness) edit(content string) Change {
	h.t.Helper()
	return h.do(CommandEdit, Args{Content: &content})
}

func (h *harness) navigate(target, choice string) Change {
	h.t.Helper()
	return h.do(CommandNavigate, Args{Target: target, Choice: choice})
}

func (h *harness) state() State {
	h.t.Helper()
	s := h.ed.Session()
	if s == nil {
		h.t.Fatal("no open session")
	}
	return s.State()
}

func (h *harness) eventsOf(kind EventKind) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) lastEvent(kind EventKind) (Event, bool) {
	events := h.eventsOf(kind)
	if len(events) == 0 {
		return Event{}, false
	}
	return events[len(events)-1], true
}

func (h *harness) draftFor(id model.DocumentID) draft.Lookup {
	h.t.Helper()
	l, err := h.drafts.LoadDraft(context.Background(), id, time.Time{})
	if err != nil {
		h.t.Fatalf("LoadDraft() error = %v", err)
	}
	return l
}

// received reports whether ch has settled and with what.
func received(ch <-chan error) (bool, error) {
	select {
	case err := <-ch:
		return true, err
	default:
		return false, nil
	}
}
