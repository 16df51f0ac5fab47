package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/markedit/internal/config"
	"github.com/debemdeboas/markedit/internal/db"
	"github.com/debemdeboas/markedit/internal/editor"
	"github.com/debemdeboas/markedit/internal/logger"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/render"
	"github.com/debemdeboas/markedit/internal/repository"
	"github.com/debemdeboas/markedit/internal/repository/draft"
	"github.com/debemdeboas/markedit/internal/repository/images"
	"github.com/debemdeboas/markedit/internal/routes"
	"github.com/debemdeboas/markedit/internal/schedule"
	"github.com/debemdeboas/markedit/internal/sse"
	"github.com/debemdeboas/markedit/internal/theme"
	"github.com/debemdeboas/markedit/internal/transform"
	"github.com/debemdeboas/markedit/internal/util"
	"github.com/debemdeboas/markedit/internal/util/compression"
)

const shutdownTimeout = 5 * time.Second

var log zerolog.Logger

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the YAML config file")
	flag.Parse()

	log = logger.New("info")
	setLoggers(log)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}
	cfg := config.AppConfig

	log = logger.New(cfg.Logging.Level)
	setLoggers(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start")
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Shutdown(stopCtx)
	}()

	go func() {
		if err := a.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Event loop stopped")
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           secureHeaders(a.mux.ServeHTTP),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", srv.Addr).Str("storage", cfg.Storage.Backend).Str("drafts", cfg.DraftBackend()).Msg("Listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server failed")
		stop()
		return
	}
	log.Info().Msg("Server stopped")
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(logger.Component(l, "config"))
	db.SetLogger(logger.Component(l, "db"))
	repository.SetLogger(logger.Component(l, "repository"))
	draft.SetLogger(logger.Component(l, "draft"))
	images.SetLogger(logger.Component(l, "images"))
	render.SetLogger(logger.Component(l, "render"))
	schedule.SetLogger(logger.Component(l, "schedule"))
	sse.SetLogger(logger.Component(l, "sse"))
	editor.SetLogger(logger.Component(l, "editor"))
}

type app struct {
	docs     repository.DocumentRepository
	drafts   draft.Repository
	images   *images.Store
	pipeline *preview.Pipeline
	loop     *schedule.Loop
	editor   *editor.Editor
	clients  *sse.Clients
	mux      *http.ServeMux

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		loop:    schedule.NewLoop(),
		clients: sse.NewClients(),
		mux:     http.NewServeMux(),
	}

	if err := a.openStorage(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	limit, err := cfg.ImageLimit()
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.images, err = images.NewStore(cfg.Path(cfg.Images.Dir), limit); err != nil {
		a.Close()
		return nil, err
	}

	pipeline, err := newPipeline(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = pipeline

	a.editor = editor.New(editor.Config{
		PreviewDelay:   cfg.Editor.PreviewDebounce,
		DraftDelay:     cfg.Editor.DraftDebounce,
		AutosaveDelay:  cfg.Editor.AutosaveDelay,
		ScrollCooldown: cfg.Editor.ScrollCooldown,
	}, editor.Deps{
		Documents: a.docs,
		Drafts:    a.drafts,
		Images:    a.images,
		Preview:   a.pipeline,
		Scheduler: a.loop,
		Executor:  a.loop,
		Sink:      editor.NewSSESink(a.clients),
	})

	h := editor.NewHandler(a.loop, a.editor, a.docs, a.drafts, cfg.Editor.ImportExtensions)
	h.Register(a.mux)

	a.mux.Handle("GET "+routes.Events, a.clients)
	a.mux.HandleFunc("POST "+routes.Render, a.serveRender)
	a.mux.HandleFunc("GET "+routes.SyntaxThemeGet, serveSyntaxThemeGetTheme)
	a.mux.HandleFunc("GET "+routes.SyntaxThemes, serveSyntaxThemes)
	a.mux.HandleFunc("PUT "+routes.Theme, serveSetTheme)
	a.mux.HandleFunc("GET "+routes.Health, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return a, nil
}

// openStorage opens the document store and the draft store the config selects. A sqlite
// database is shared when both live in it.
func (a *app) openStorage(ctx context.Context, cfg *config.Config) error {
	var sqlite *db.SQLite
	openSQLite := func() (*db.SQLite, error) {
		if sqlite != nil {
			return sqlite, nil
		}
		d := db.NewSQLite(cfg.Path(cfg.Storage.SQLitePath))
		if err := d.InitDB(); err != nil {
			return nil, fmt.Errorf(config.ErrInitializeDatabaseFmt, err)
		}
		a.closers = append(a.closers, d.Close)
		sqlite = d
		return d, nil
	}

	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		d, err := openSQLite()
		if err != nil {
			return err
		}
		a.docs = repository.NewDBDocumentRepository(d, compression.ByName(cfg.Storage.Compression))
	case config.StorageFS:
		repo, err := repository.NewFSDocumentRepository(cfg.Path(cfg.Storage.Dir))
		if err != nil {
			return err
		}
		if err := repo.Watch(); err != nil {
			log.Warn().Err(err).Msg("Document directory watch unavailable, list cache disabled")
		}
		a.closers = append(a.closers, repo.Close)
		a.docs = repo
	case config.StorageS3:
		repo, err := repository.NewS3DocumentRepository(ctx, repository.S3Options{
			Bucket:          cfg.Storage.S3.Bucket,
			Prefix:          cfg.Storage.S3.Prefix,
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("S3_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return err
		}
		a.docs = repo
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch backend := cfg.DraftBackend(); backend {
	case config.DraftsMemory:
		a.drafts = draft.NewMemoryRepository()
	case config.DraftsFS:
		repo, err := draft.NewFSRepository(cfg.Path(cfg.Drafts.Dir))
		if err != nil {
			return err
		}
		a.drafts = repo
	case config.DraftsSQLite:
		d, err := openSQLite()
		if err != nil {
			return err
		}
		a.drafts = draft.NewDBRepository(d)
	default:
		return fmt.Errorf("unknown draft backend %q", backend)
	}
	return nil
}

// Shutdown waits for the event loop and the saves and draft writes it started, then closes
// storage. The loop's context must already be cancelled.
func (a *app) Shutdown(ctx context.Context) {
	if err := a.loop.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("Closing storage with jobs still running")
	}
	a.Close()
}

// Close releases storage in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	a.closers = nil
}

func newPipeline(cfg *config.Config) (*preview.Pipeline, error) {
	highlighter := render.NewChromaHighlighter(theme.SyntaxDefault(cfg.Theme.Default))
	r, err := render.New(cfg.Markdown.Renderer, highlighter)
	if err != nil {
		return nil, err
	}
	if cfg.Markdown.CacheSize > 0 {
		r = render.NewCached(r, cfg.Markdown.CacheSize)
	}

	t := transform.NewPipeline(transform.Options{
		Callouts: cfg.Markdown.Callouts,
		Emoji:    cfg.Markdown.Emoji,
	})
	return preview.NewPipeline(t, r, render.Options{
		Breaks:    cfg.Markdown.Breaks,
		Highlight: cfg.Markdown.Highlight,
		Sanitize:  cfg.Markdown.Sanitize,
	}), nil
}

type renderRequest struct {
	Content string `json:"content"`
}

type renderResponse struct {
	preview.Result
	Theme      theme.Selection `json:"theme"`
	Stylesheet string          `json:"stylesheet"`
}

// serveRender runs text through the preview pipeline without touching the editor session. The
// response names the code stylesheet the request's theme selection should link.
func (a *app) serveRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, config.ErrInvalidRequestBody, http.StatusBadRequest)
		return
	}

	res, err := a.pipeline.Run(req.Content)
	if err != nil {
		log.Warn().Err(err).Msg("Stateless render failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	sel := theme.Resolve(r)
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(renderResponse{Result: res, Theme: sel, Stylesheet: sel.Stylesheet()})
}

func serveSyntaxThemeGetTheme(w http.ResponseWriter, r *http.Request) {
	css, err := theme.StylesheetCSS(r.PathValue("theme"))
	if errors.Is(err, theme.ErrUnknownSyntaxTheme) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to build syntax stylesheet")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body := []byte(css)
	w.Header().Set(config.HCType, config.CTypeCSS)
	w.Header().Set(config.HETag, util.ContentHash(body))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

type syntaxThemesResponse struct {
	Themes  []string `json:"themes"`
	Current string   `json:"current"`
}

// serveSyntaxThemes lists the chroma styles and the one the request selects.
func serveSyntaxThemes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(syntaxThemesResponse{
		Themes:  theme.SyntaxThemes(),
		Current: theme.Resolve(r).Syntax,
	})
}

// serveSetTheme stores a theme selection in cookies. Omitted fields keep the current choice.
func serveSetTheme(w http.ResponseWriter, r *http.Request) {
	sel := theme.Resolve(r)
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		http.Error(w, config.ErrInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if err := sel.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sel.Remember(w)
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(sel)
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		h(w, r)
	}
}
