package editor

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/debemdeboas/markedit/internal/config"
	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/repository"
	"github.com/debemdeboas/markedit/internal/repository/draft"
	"github.com/debemdeboas/markedit/internal/repository/images"
	"github.com/debemdeboas/markedit/internal/routes"
)

// Looper runs fn on the goroutine that owns the editor.
type Looper interface {
	Do(ctx context.Context, fn func() error) error
}

// Handler exposes the editor and the document library over HTTP.
type Handler struct {
	loop   Looper
	editor *Editor
	docs   repository.DocumentRepository
	drafts draft.Repository

	importExts []string
	now        func() time.Time
}

func NewHandler(loop Looper, e *Editor, docs repository.DocumentRepository, drafts draft.Repository, importExts []string) *Handler {
	return &Handler{
		loop:       loop,
		editor:     e,
		docs:       docs,
		drafts:     drafts,
		importExts: importExts,
		now:        time.Now,
	}
}

// Register mounts every editor and document route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+routes.APIDocuments, h.ServeListDocuments)
	mux.HandleFunc("POST "+routes.APIDocuments, h.ServeCreateDocument)
	mux.HandleFunc("POST "+routes.APIDocumentsImport, h.ServeImportDocument)
	mux.HandleFunc("PUT "+routes.APIDocument, h.ServeRenameDocument)
	mux.HandleFunc("DELETE "+routes.APIDocument, h.ServeDeleteDocument)
	mux.HandleFunc("GET "+routes.APIDocumentExport, h.ServeExportDocument)
	mux.HandleFunc("GET "+routes.APIDocumentImages, h.ServeListImages)
	mux.HandleFunc("POST "+routes.APIDocumentImages, h.ServeUploadImage)
	mux.HandleFunc("GET "+routes.Image, h.ServeImage)

	mux.HandleFunc("GET "+routes.Editor, h.ServeCurrent)
	mux.HandleFunc("POST "+routes.EditorNew, h.ServeNew)
	mux.HandleFunc("POST "+routes.EditorOpen, h.ServeOpen)
	mux.HandleFunc("POST "+routes.EditorCommands, h.ServeCommand)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		editorLogger.Error().Err(err).Msg("Failed to write response")
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidDocumentID):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, images.ErrNotFound), errors.Is(err, ErrNoImages):
		return http.StatusNotFound
	case errors.Is(err, images.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, images.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, images.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgs), errors.Is(err, preview.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrSessionActive), errors.Is(err, ErrStaleSession):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		editorLogger.Error().Err(err).Msg("Request failed")
		msg = config.ErrInternalServerError
	}
	if status == http.StatusNotFound && errors.Is(err, repository.ErrNotFound) {
		msg = config.ErrDocumentNotFound
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// activeID returns the id of the open document, or "".
func (h *Handler) activeID(ctx context.Context) (model.DocumentID, error) {
	var id model.DocumentID
	err := h.loop.Do(ctx, func() error {
		if s := h.editor.Session(); s != nil {
			id = s.ID
		}
		return nil
	})
	return id, err
}

// documentID reads the {id} path segment. The mux unescapes it, so it is validated before it
// gets anywhere near storage.
func documentID(r *http.Request) (model.DocumentID, error) {
	return model.ParseDocumentID(r.PathValue("id"))
}

func (h *Handler) ServeListDocuments(w http.ResponseWriter, r *http.Request) {
	list, err := h.docs.List(r.Context())
	if err != nil {
		editorLogger.Error().Msgf(config.ErrListDocumentsFmt, err)
		writeError(w, err)
		return
	}
	now := h.now()
	for i := range list {
		list[i].Humanize(now)
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ServeCreateDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type importRequest struct {
	Path string `json:"path"`
}

type importResponse struct {
	Document *model.Document `json:"document"`
	Created  bool            `json:"created"`
}

func (h *Handler) ServeImportDocument(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: config.ErrInvalidRequestBody})
		return
	}
	if len(h.importExts) > 0 && !repository.HasExtension(req.Path, h.importExts) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "unsupported file type"})
		return
	}

	doc, created, err := repository.ImportFile(r.Context(), h.docs, req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, importResponse{Document: doc, Created: created})
}

type renameRequest struct {
	Title string `json:"title"`
}

// ServeRenameDocument renames a stored document. The open document is renamed through its
// session so the rename goes through the save queue.
func (h *Handler) ServeRenameDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: config.ErrInvalidRequestBody})
		return
	}

	active, err := h.activeID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if active == id {
		h.dispatch(w, r, CommandRename, Args{DocumentID: id, Title: &req.Title}, false)
		return
	}

	if err := h.docs.Rename(r.Context(), id, req.Title); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ServeDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	active, err := h.activeID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if active == id {
		writeError(w, ErrSessionActive)
		return
	}

	if err := h.docs.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.drafts.DeleteDraft(r.Context(), id); err != nil {
		editorLogger.Warn().Err(err).Str("document_id", string(id)).Msg("Failed to delete draft")
	}
	h.editor.deleteImages(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// ServeExportDocument downloads a document as ?format=md, txt or html. The open document is
// exported as it stands in the editor, unsaved edits included.
func (h *Handler) ServeExportDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var title, content string
	var open bool
	if err := h.loop.Do(r.Context(), func() error {
		if s := h.editor.Session(); s != nil && s.ID == id {
			title, content, open = s.title, s.content, true
		}
		return nil
	}); err != nil {
		writeError(w, err)
		return
	}
	if !open {
		doc, err := h.docs.Load(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		title, content = doc.DisplayTitle(), doc.Content
	}

	out, err := h.editor.pipeline.Export(title, content, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(config.HCType, out.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Body); err != nil {
		editorLogger.Error().Err(err).Msg("Failed to write export")
	}
}

type imageResponse struct {
	images.Image
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

func newImageResponse(img images.Image, alt string) imageResponse {
	return imageResponse{Image: img, URL: img.URL(), Markdown: img.Markdown(alt)}
}

// ServeUploadImage attaches the request body to an existing document as an image. The response
// carries the markdown that embeds it; ?alt= sets the description.
func (h *Handler) ServeUploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store := h.editor.images
	if store == nil {
		writeError(w, ErrNoImages)
		return
	}
	if _, err := h.docs.Load(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	img, err := store.Put(r.Context(), id, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	editorLogger.Info().Str("document_id", string(id)).Str("name", img.Name).Msg("Image attached")
	writeJSON(w, http.StatusCreated, newImageResponse(img, r.URL.Query().Get("alt")))
}

func (h *Handler) ServeListImages(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store := h.editor.images
	if store == nil {
		writeError(w, ErrNoImages)
		return
	}
	list, err := store.List(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]imageResponse, 0, len(list))
	for _, img := range list {
		out = append(out, newImageResponse(img, ""))
	}
	writeJSON(w, http.StatusOK, out)
}

// ServeImage streams a stored image. SVGs may carry script, so every image is served under a
// policy that forbids it.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store := h.editor.images
	if store == nil {
		writeError(w, ErrNoImages)
		return
	}
	f, img, err := store.Open(r.Context(), id, r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set(config.HCType, img.ContentType)
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	http.ServeContent(w, r, img.Name, img.ModTime, f)
}

func (h *Handler) ServeCurrent(w http.ResponseWriter, r *http.Request) {
	var c Change
	var ok bool
	if err := h.loop.Do(r.Context(), func() error {
		c, ok = h.editor.Current()
		return nil
	}); err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ServeNew(w http.ResponseWriter, r *http.Request) {
	var c Change
	err := h.loop.Do(r.Context(), func() error {
		var err error
		c, err = h.editor.Create(r.Context())
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ServeOpen(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var c Change
	err = h.loop.Do(r.Context(), func() error {
		var err error
		c, err = h.editor.Open(r.Context(), id)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type commandResponse struct {
	Change
	Error string `json:"error,omitempty"`
}

// ServeCommand dispatches a command. With ?wait=1 the response is held until the save or
// navigation it started has settled.
func (h *Handler) ServeCommand(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	var args Args
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: config.ErrInvalidRequestBody})
			return
		}
	}

	h.dispatch(w, r, action, args, r.URL.Query().Get("wait") == "1")
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, action string, args Args, wait bool) {
	ctx := r.Context()

	var c Change
	err := h.loop.Do(ctx, func() error {
		var err error
		c, err = h.editor.Dispatch(ctx, action, args)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := commandResponse{Change: c}
	if !wait || c.Await == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	select {
	case err := <-c.Await:
		if err != nil {
			resp.Error = err.Error()
		}
	case <-ctx.Done():
		return
	}

	// Report where things ended up.
	_ = h.loop.Do(ctx, func() error {
		cur, ok := h.editor.Current()
		if !ok || cur.DocumentID != c.DocumentID {
			resp.Navigated = action == CommandNavigate && resp.Error == ""
			return nil
		}
		resp.State, resp.Dirty = cur.State, cur.Dirty
		return nil
	})
	writeJSON(w, http.StatusOK, resp)
}
