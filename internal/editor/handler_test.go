package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/markedit/internal/config"
	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/render"
	"github.com/debemdeboas/markedit/internal/repository"
	"github.com/debemdeboas/markedit/internal/repository/draft"
	"github.com/debemdeboas/markedit/internal/repository/images"
	"github.com/debemdeboas/markedit/internal/schedule"
	"github.com/debemdeboas/markedit/internal/transform"
)

// inlineLoop runs Do on the caller's goroutine and drains background jobs before returning,
// the way an event loop delivers results on a later turn.
type inlineLoop struct {
	mu   sync.Mutex
	jobs []func()
}

func (l *inlineLoop) Do(ctx context.Context, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := fn()
	for len(l.jobs) > 0 {
		job := l.jobs[0]
		l.jobs = l.jobs[1:]
		job()
	}
	return err
}

// Go is only called from inside Do.
func (l *inlineLoop) Go(name string, work func(ctx context.Context) error, done func(error)) {
	l.jobs = append(l.jobs, func() { done(work(context.Background())) })
}

const (
	docA       = "1b4e28ba-2fa1-4d2b-883f-0016d3cca427"
	docMissing = "6fa459ea-ee8a-4ca4-894e-db77e160355e"
)

type server struct {
	docs   *fakeDocs
	drafts *draft.MemoryRepository
	images *images.Store
	mux    *http.ServeMux
}

func newServer(t *testing.T) *server {
	t.Helper()
	clock := schedule.NewManual(t0)
	loop := &inlineLoop{}
	s := &server{
		docs:   newFakeDocs(clock.Now),
		drafts: draft.NewMemoryRepository().WithClock(clock.Now),
		mux:    http.NewServeMux(),
	}
	store, err := images.NewStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	s.images = store.WithClock(clock.Now)

	pipeline := preview.NewPipeline(
		transform.NewPipeline(transform.DefaultOptions()),
		render.NewGoldmark(render.NewChromaHighlighter("github")),
		render.DefaultOptions(),
	)
	ed := New(DefaultConfig(), Deps{
		Documents: s.docs,
		Drafts:    s.drafts,
		Images:    s.images,
		Preview:   pipeline,
		Scheduler: clock,
		Executor:  loop,
	})
	h := NewHandler(loop, ed, s.docs, s.drafts, []string{".md", ".markdown", ".txt"})
	h.now = func() time.Time { return t0.Add(3 * time.Minute) }
	h.Register(s.mux)
	return s
}

func (s *server) request(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandlerDocuments(t *testing.T) {
	s := newServer(t)
	s.docs.put(model.Document{ID: docA, Title: "Alpha", Content: "first", UpdatedAt: t0})

	t.Run("list", func(t *testing.T) {
		rec := s.request(t, http.MethodGet, "/api/documents", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		list := decode[[]model.DocumentSummary](t, rec)
		if len(list) != 1 || list[0].Title != "Alpha" || list[0].Edited != "3 minutes ago" {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("create", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/api/documents", nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d", rec.Code)
		}
		doc := decode[model.Document](t, rec)
		if doc.ID == "" || doc.Title != model.DefaultTitle {
			t.Errorf("doc = %+v", doc)
		}
	})

	t.Run("rename", func(t *testing.T) {
		rec := s.request(t, http.MethodPut, "/api/documents/"+docA, map[string]string{"title": "Beta"})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		if doc, _ := s.docs.get(docA); doc.Title != "Beta" {
			t.Errorf("title = %q", doc.Title)
		}
	})

	t.Run("rename missing", func(t *testing.T) {
		rec := s.request(t, http.MethodPut, "/api/documents/"+docMissing, map[string]string{"title": "x"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
		if e := decode[errorResponse](t, rec); e.Error != config.ErrDocumentNotFound {
			t.Errorf("error = %q", e.Error)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.drafts.SaveDraft(context.Background(), docA, "draft"); err != nil {
			t.Fatal(err)
		}
		rec := s.request(t, http.MethodDelete, "/api/documents/"+docA, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		if _, ok := s.docs.get(docA); ok {
			t.Error("document survived")
		}
		if l, _ := s.drafts.LoadDraft(context.Background(), docA, time.Time{}); l.Exists {
			t.Error("draft survived")
		}

		if rec := s.request(t, http.MethodDelete, "/api/documents/"+docA, nil); rec.Code != http.StatusNotFound {
			t.Errorf("second delete status = %d", rec.Code)
		}
	})
}

func TestHandlerImport(t *testing.T) {
	s := newServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("---\ntitle: Meeting\n---\n# Agenda\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := s.request(t, http.MethodPost, "/api/documents/import", map[string]string{"path": path})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	first := decode[importResponse](t, rec)
	if !first.Created || first.Document.Title != "Meeting" || first.Document.Content != "# Agenda\n" {
		t.Errorf("import = %+v", first.Document)
	}

	rec = s.request(t, http.MethodPost, "/api/documents/import", map[string]string{"path": path})
	if rec.Code != http.StatusOK {
		t.Fatalf("reimport status = %d", rec.Code)
	}
	if again := decode[importResponse](t, rec); again.Created || again.Document.ID != first.Document.ID {
		t.Errorf("reimport = %+v", again)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unsupported extension", map[string]string{"path": filepath.Join(dir, "image.png")}, http.StatusUnsupportedMediaType},
		{"missing path", map[string]string{}, http.StatusBadRequest},
		{"missing file", map[string]string{"path": filepath.Join(dir, "gone.md")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.request(t, http.MethodPost, "/api/documents/import", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerEditorSession(t *testing.T) {
	s := newServer(t)

	if rec := s.request(t, http.MethodGet, "/editor", nil); rec.Code != http.StatusConflict {
		t.Fatalf("no session status = %d", rec.Code)
	}

	rec := s.request(t, http.MethodPost, "/editor/new", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("new status = %d", rec.Code)
	}
	opened := decode[Change](t, rec)
	id := opened.DocumentID
	if opened.State != Clean || opened.Preview == nil {
		t.Errorf("opened = %+v", opened)
	}

	if rec := s.request(t, http.MethodPost, "/editor/new", nil); rec.Code != http.StatusConflict {
		t.Errorf("second new status = %d", rec.Code)
	}

	t.Run("edit", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/editor/commands/edit", map[string]any{"documentId": id, "content": "# Hi"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		if c := decode[commandResponse](t, rec); c.State != Dirty || !c.Dirty {
			t.Errorf("change = %+v", c)
		}
	})

	t.Run("save and wait", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/editor/commands/save?wait=1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if c := decode[commandResponse](t, rec); c.State != Clean || c.Error != "" {
			t.Errorf("change = %+v", c)
		}
		if doc, _ := s.docs.get(id); doc.Content != "# Hi" {
			t.Errorf("stored %q", doc.Content)
		}
	})

	t.Run("rename open document", func(t *testing.T) {
		rec := s.request(t, http.MethodPut, "/api/documents/"+string(id), map[string]string{"title": "Greeting"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if doc, _ := s.docs.get(id); doc.Title != "Greeting" {
			t.Errorf("title = %q", doc.Title)
		}
	})

	t.Run("delete open document", func(t *testing.T) {
		if rec := s.request(t, http.MethodDelete, "/api/documents/"+string(id), nil); rec.Code != http.StatusConflict {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("current", func(t *testing.T) {
		rec := s.request(t, http.MethodGet, "/editor", nil)
		c := decode[Change](t, rec)
		if rec.Code != http.StatusOK || c.DocumentID != id || c.Title == nil || *c.Title != "Greeting" {
			t.Errorf("current = %d %+v", rec.Code, c)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			target string
			body   any
			want   int
		}{
			{"unknown command", "/editor/commands/format", nil, http.StatusNotFound},
			{"missing content", "/editor/commands/edit", map[string]any{}, http.StatusBadRequest},
			{"stale document", "/editor/commands/edit", map[string]any{"documentId": "other", "content": "x"}, http.StatusConflict},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if rec := s.request(t, http.MethodPost, tt.target, tt.body); rec.Code != tt.want {
					t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
				}
			})
		}

		req := httptest.NewRequest(http.MethodPost, "/editor/commands/edit", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("malformed body status = %d", rec.Code)
		}
	})

	t.Run("navigate with save", func(t *testing.T) {
		s.request(t, http.MethodPost, "/editor/commands/edit", map[string]any{"content": "# Bye"})

		rec := s.request(t, http.MethodPost, "/editor/commands/navigate", map[string]any{"target": "home"})
		if c := decode[commandResponse](t, rec); c.Prompt == nil || c.Prompt.Kind != PromptUnsaved {
			t.Fatalf("change = %+v", c)
		}

		rec = s.request(t, http.MethodPost, "/editor/commands/navigate?wait=1", map[string]any{"target": "home", "choice": "save"})
		c := decode[commandResponse](t, rec)
		if !c.Navigated || c.Error != "" {
			t.Errorf("change = %+v", c)
		}
		if doc, _ := s.docs.get(id); doc.Content != "# Bye" {
			t.Errorf("stored %q", doc.Content)
		}
		if rec := s.request(t, http.MethodGet, "/editor", nil); rec.Code != http.StatusConflict {
			t.Errorf("session still open: %d", rec.Code)
		}
	})

	t.Run("open", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/editor/open/"+string(id), nil)
		c := decode[Change](t, rec)
		if rec.Code != http.StatusOK || c.Content == nil || *c.Content != "# Bye" {
			t.Errorf("open = %d %+v", rec.Code, c)
		}
		if rec := s.request(t, http.MethodPost, "/editor/open/"+docMissing, nil); rec.Code != http.StatusConflict {
			t.Errorf("open other while active = %d", rec.Code)
		}
	})
}

func TestHandlerExport(t *testing.T) {
	s := newServer(t)
	s.docs.put(model.Document{ID: docA, Title: "Alpha", Content: "# One\n\n:smile:", UpdatedAt: t0})

	tests := []struct {
		name        string
		target      string
		want        int
		contentType string
		disposition string
		body        string
	}{
		{"markdown", "/api/documents/" + docA + "/export?format=md", http.StatusOK, "text/markdown; charset=utf-8", `attachment; filename=Alpha.md`, "# One\n\n:smile:"},
		{"default", "/api/documents/" + docA + "/export", http.StatusOK, "text/markdown; charset=utf-8", `attachment; filename=Alpha.md`, ":smile:"},
		{"text", "/api/documents/" + docA + "/export?format=txt", http.StatusOK, "text/plain; charset=utf-8", `attachment; filename=Alpha.txt`, "# One"},
		{"html", "/api/documents/" + docA + "/export?format=html", http.StatusOK, "text/html; charset=utf-8", `attachment; filename=Alpha.html`, `id="one"`},
		{"unknown format", "/api/documents/" + docA + "/export?format=pdf", http.StatusBadRequest, "", "", ""},
		{"missing", "/api/documents/" + docMissing + "/export", http.StatusNotFound, "", "", ""},
		{"invalid id", "/api/documents/nope/export", http.StatusBadRequest, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.request(t, http.MethodGet, tt.target, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if cd := rec.Header().Get("Content-Disposition"); cd != tt.disposition {
				t.Errorf("Content-Disposition = %q, want %q", cd, tt.disposition)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body = %q, want it to contain %q", rec.Body, tt.body)
			}
		})
	}

	t.Run("open document exports unsaved edits", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/editor/open/"+docA, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("open status = %d", rec.Code)
		}
		s.request(t, http.MethodPost, "/editor/commands/edit", map[string]any{"content": "unsaved text"})

		rec = s.request(t, http.MethodGet, "/api/documents/"+docA+"/export?format=txt", nil)
		if rec.Code != http.StatusOK || rec.Body.String() != "unsaved text" {
			t.Errorf("export = %d %q", rec.Code, rec.Body)
		}
		if doc, _ := s.docs.get(docA); doc.Content != "# One\n\n:smile:" {
			t.Errorf("export saved the document: %q", doc.Content)
		}
	})
}

func TestHandlerImages(t *testing.T) {
	s := newServer(t)
	s.docs.put(model.Document{ID: docA, Title: "Alpha", Content: "first", UpdatedAt: t0})

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	pngData := buf.Bytes()

	upload := func(t *testing.T, id string, body []byte) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/documents/"+id+"/images?alt=diagram", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, req)
		return rec
	}

	rec := upload(t, docA, pngData)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	img := decode[imageResponse](t, rec)
	wantURL := "/images/" + docA + "/" + img.Name
	if img.URL != wantURL || img.Markdown != "![diagram]("+wantURL+")" || img.ContentType != "image/png" {
		t.Errorf("upload = %+v", img)
	}

	t.Run("serve", func(t *testing.T) {
		rec := s.request(t, http.MethodGet, img.URL, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "sandbox") {
			t.Errorf("missing sandbox policy: %v", rec.Header())
		}
		if !bytes.Equal(rec.Body.Bytes(), pngData) {
			t.Error("served bytes differ from upload")
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := s.request(t, http.MethodGet, "/api/documents/"+docA+"/images", nil)
		list := decode[[]imageResponse](t, rec)
		if rec.Code != http.StatusOK || len(list) != 1 || list[0].URL != wantURL {
			t.Errorf("list = %d %+v", rec.Code, list)
		}
	})

	tests := []struct {
		name string
		rec  func(t *testing.T) *httptest.ResponseRecorder
		want int
	}{
		{"not an image", func(t *testing.T) *httptest.ResponseRecorder { return upload(t, docA, []byte("hello")) }, http.StatusUnsupportedMediaType},
		{"too large", func(t *testing.T) *httptest.ResponseRecorder {
			return upload(t, docA, append(bytes.Clone(pngData), make([]byte, 1<<20)...))
		}, http.StatusRequestEntityTooLarge},
		{"missing document", func(t *testing.T) *httptest.ResponseRecorder { return upload(t, docMissing, pngData) }, http.StatusNotFound},
		{"missing image", func(t *testing.T) *httptest.ResponseRecorder {
			return s.request(t, http.MethodGet, "/images/"+docA+"/1.png", nil)
		}, http.StatusNotFound},
		{"bad image name", func(t *testing.T) *httptest.ResponseRecorder {
			return s.request(t, http.MethodGet, "/images/"+docA+"/notes.txt", nil)
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := tt.rec(t); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	t.Run("deleting the document deletes its images", func(t *testing.T) {
		if rec := s.request(t, http.MethodDelete, "/api/documents/"+docA, nil); rec.Code != http.StatusNoContent {
			t.Fatalf("delete status = %d", rec.Code)
		}
		if rec := s.request(t, http.MethodGet, img.URL, nil); rec.Code != http.StatusNotFound {
			t.Errorf("image status after delete = %d", rec.Code)
		}
		list, err := s.images.List(context.Background(), docA)
		if err != nil || len(list) != 0 {
			t.Errorf("images left behind: %+v, %v", list, err)
		}
	})
}

func TestHandlerRejectsEscapedIDs(t *testing.T) {
	root := t.TempDir()
	victim := filepath.Join(root, "victim.json")
	if err := os.WriteFile(victim, []byte(`{"id":"victim"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	docs, err := repository.NewFSDocumentRepository(filepath.Join(root, "documents"))
	if err != nil {
		t.Fatal(err)
	}

	clock := schedule.NewManual(t0)
	loop := &inlineLoop{}
	drafts := draft.NewMemoryRepository()
	ed := New(DefaultConfig(), Deps{
		Documents: docs,
		Drafts:    drafts,
		Preview: preview.NewPipeline(
			transform.NewPipeline(transform.DefaultOptions()),
			render.NewGoldmark(nil),
			render.DefaultOptions(),
		),
		Scheduler: clock,
		Executor:  loop,
	})
	mux := http.NewServeMux()
	NewHandler(loop, ed, docs, drafts, nil).Register(mux)

	tests := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodDelete, "/api/documents/..%2Fvictim", ""},
		{http.MethodPut, "/api/documents/..%2Fvictim", `{"title":"pwned"}`},
		{http.MethodPost, "/editor/open/..%2Fvictim", ""},
		{http.MethodGet, "/api/documents/..%2Fvictim/export", ""},
		{http.MethodPost, "/api/documents/..%2Fvictim/images", "GIF89a"},
		{http.MethodGet, "/images/..%2Fvictim/1.png", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code < 300 {
				t.Errorf("status = %d, want rejection", rec.Code)
			}
			b, err := os.ReadFile(victim)
			if err != nil || string(b) != `{"id":"victim"}` {
				t.Errorf("victim file changed: %q, %v", b, err)
			}
		})
	}
}
