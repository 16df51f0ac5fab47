// Package editor is the document state machine behind the editing view: one active session,
// debounced preview, draft and autosave timers, serialised saves and draft recovery, all driven
// through a table of named commands.
//
// Every exported method must be called from the event loop the Scheduler and Executor deliver
// to; the HTTP handler does this with schedule.Loop.Do.
package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/repository"
	"github.com/debemdeboas/markedit/internal/repository/draft"
	"github.com/debemdeboas/markedit/internal/repository/images"
	"github.com/debemdeboas/markedit/internal/schedule"
)

var (
	ErrNoSession      = errors.New("no document is open")
	ErrSessionActive  = errors.New("another document is open")
	ErrStaleSession   = errors.New("command addressed to a document that is not open")
	ErrUnknownCommand = errors.New("unknown editor command")
	ErrInvalidArgs    = errors.New("invalid command arguments")
	ErrNoImages       = errors.New("image attachments are not configured")
)

type Config struct {
	PreviewDelay   time.Duration
	DraftDelay     time.Duration
	AutosaveDelay  time.Duration
	ScrollCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		PreviewDelay:   150 * time.Millisecond,
		DraftDelay:     5 * time.Second,
		AutosaveDelay:  60 * time.Second,
		ScrollCooldown: 100 * time.Millisecond,
	}
}

type Deps struct {
	Documents repository.DocumentRepository
	Drafts    draft.Repository
	// Images is optional; without it documents have no attachments.
	Images    *images.Store
	Preview   *preview.Pipeline
	Scheduler schedule.Scheduler
	Executor  schedule.Executor
	Sink      Sink
}

// CommandFunc runs one command against the open session and describes what changed.
type CommandFunc func(ctx context.Context, s *Session, args Args) (Change, error)

type Editor struct {
	cfg Config

	docs      repository.DocumentRepository
	draftRepo draft.Repository
	images    *images.Store
	pipeline  *preview.Pipeline
	sched     schedule.Scheduler
	exec      schedule.Executor
	sink      Sink

	session  *Session
	commands map[string]CommandFunc
}

func New(cfg Config, deps Deps) *Editor {
	sink := deps.Sink
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	e := &Editor{
		cfg:       cfg,
		docs:      deps.Documents,
		draftRepo: deps.Drafts,
		images:    deps.Images,
		pipeline:  deps.Preview,
		sched:     deps.Scheduler,
		exec:      deps.Executor,
		sink:      sink,
	}
	e.commands = map[string]CommandFunc{
		CommandEdit:     e.edit,
		CommandRename:   e.rename,
		CommandSave:     e.save,
		CommandNavigate: e.navigate,
		CommandRecover:  e.recover,
		CommandScroll:   e.scroll,
		CommandHeadings: e.headings,
	}
	return e
}

// Session returns the open session, or nil.
func (e *Editor) Session() *Session {
	return e.session
}

// Create makes a new document and opens it.
func (e *Editor) Create(ctx context.Context) (Change, error) {
	if e.session != nil {
		return Change{}, ErrSessionActive
	}
	doc, err := e.docs.Create(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("create document: %w", err)
	}
	return e.open(ctx, doc), nil
}

// Open loads id into a new session, renders it and checks for a draft worth recovering.
// Opening the document that is already open returns its current state.
func (e *Editor) Open(ctx context.Context, id model.DocumentID) (Change, error) {
	if s := e.session; s != nil {
		if s.ID == id {
			return e.snapshot(s), nil
		}
		return Change{}, ErrSessionActive
	}

	doc, err := e.docs.Load(ctx, id)
	if err != nil {
		return Change{}, err
	}
	return e.open(ctx, doc), nil
}

func (e *Editor) open(ctx context.Context, doc *model.Document) Change {
	s := newSession(e, doc)
	e.session = s
	editorLogger.Info().Str("document_id", string(doc.ID)).Str("title", doc.Title).Msg("Opened document")

	s.renderNow()

	lookup, err := e.draftRepo.LoadDraft(ctx, doc.ID, doc.UpdatedAt)
	if err != nil {
		editorLogger.Warn().Err(err).Str("document_id", string(doc.ID)).Msg("Draft lookup failed")
	} else if lookup.Exists && lookup.Newer && lookup.Content != doc.Content {
		s.recovery = &lookup
		s.publish(Event{Kind: EventPrompt, Prompt: s.recoveryPrompt()})
	}

	return e.snapshot(s)
}

// Current describes the open session, or reports false when none is open.
func (e *Editor) Current() (Change, bool) {
	if e.session == nil {
		return Change{}, false
	}
	return e.snapshot(e.session), true
}

func (e *Editor) snapshot(s *Session) Change {
	c := s.change()
	title, content, res := s.title, s.content, s.rendered
	c.Title = &title
	c.Content = &content
	c.Preview = &res
	if s.recovery != nil {
		c.Prompt = s.recoveryPrompt()
	}
	return c
}

// Dispatch runs the named command against the open session.
func (e *Editor) Dispatch(ctx context.Context, action string, args Args) (Change, error) {
	h, ok := e.commands[action]
	if !ok {
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownCommand, action)
	}
	s := e.session
	if s == nil {
		return Change{}, ErrNoSession
	}
	if args.DocumentID != "" {
		// Any spelling of the open document's UUID addresses it.
		if id, err := model.ParseDocumentID(string(args.DocumentID)); err == nil {
			args.DocumentID = id
		}
		if args.DocumentID != s.ID {
			return Change{}, ErrStaleSession
		}
	}

	c, err := h(ctx, s, args)
	if err != nil {
		editorLogger.Debug().Err(err).Str("command", action).Msg("Command rejected")
		return Change{}, err
	}
	editorLogger.Trace().Str("command", action).Stringer("state", c.State).Msg("Command applied")
	return c, nil
}
