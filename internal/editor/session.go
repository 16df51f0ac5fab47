package editor

import (
	"context"
	"errors"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/repository/draft"
	"github.com/debemdeboas/markedit/internal/schedule"
	"github.com/debemdeboas/markedit/internal/util"
)

var ErrSessionClosed = errors.New("editor session closed")

// Session is the editor's view of the one open document. It is only touched from the loop.
type Session struct {
	e *Editor

	ID model.DocumentID

	// doc mirrors the committed record; its Title and Content are the save baseline.
	doc *model.Document

	title   string
	content string
	state   State

	// everHadContent latches once loaded, saved or typed content is non-blank. Until then an
	// untitled blank document is ephemeral and leaving deletes it.
	everHadContent bool

	// What the most recently submitted save is writing.
	savingTitle   string
	savingContent string

	recovery *draft.Lookup

	previewTimer  *schedule.Debouncer
	draftTimer    *schedule.Debouncer
	autosaveTimer *schedule.Debouncer

	saves  *schedule.Queue
	drafts *schedule.Queue

	scroll   *preview.ScrollSync
	headings *preview.HeadingTracker
	rendered preview.Result

	saveWaiters []chan error
	leaving     *pendingLeave

	closed bool
}

type pendingLeave struct {
	target  string
	waiters []chan error
}

func newSession(e *Editor, doc *model.Document) *Session {
	s := &Session{
		e:              e,
		ID:             doc.ID,
		doc:            doc,
		title:          doc.Title,
		content:        doc.Content,
		state:          Clean,
		everHadContent: !util.IsBlank(doc.Content),
		saves:          schedule.NewQueue(e.exec, "save"),
		drafts:         schedule.NewQueue(e.exec, "draft"),
		scroll:         preview.NewScrollSync(e.cfg.ScrollCooldown, e.sched.Now),
		headings:       preview.NewHeadingTracker(),
	}
	s.previewTimer = schedule.NewDebouncer(e.sched, "preview", e.cfg.PreviewDelay, s.onPreviewTimer)
	s.draftTimer = schedule.NewDebouncer(e.sched, "draft", e.cfg.DraftDelay, s.onDraftTimer)
	s.autosaveTimer = schedule.NewDebouncer(e.sched, "autosave", e.cfg.AutosaveDelay, s.onAutosaveTimer)
	return s
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Title() string {
	return s.title
}

func (s *Session) Content() string {
	return s.content
}

func (s *Session) Rendered() preview.Result {
	return s.rendered
}

// HasUnsavedChanges reports whether the in-memory document differs from what is committed or
// being committed.
func (s *Session) HasUnsavedChanges() bool {
	switch s.state {
	case Dirty, SaveFailed:
		return true
	case Saving:
		return s.title != s.savingTitle || s.content != s.savingContent
	}
	return false
}

// Ephemeral reports whether leaving should delete the document instead of prompting. A
// document with an unanswered recovery offer is never ephemeral: its draft is the only copy.
func (s *Session) Ephemeral() bool {
	return s.recovery == nil && !s.everHadContent && model.IsPlaceholderTitle(s.title) && util.IsBlank(s.content)
}

func (s *Session) latch(content string) {
	if !util.IsBlank(content) {
		s.everHadContent = true
	}
}

func (s *Session) publish(e Event) {
	e.DocumentID = s.ID
	s.e.sink.Publish(e)
}

func (s *Session) setState(st State, message string) {
	if st == s.state && message == "" {
		return
	}
	s.state = st
	s.publish(Event{Kind: EventStatus, Status: &Status{State: st, Message: message}})
}

// markDirty moves Clean or SaveFailed to Dirty. Saving keeps its state; the difference from
// the in-flight snapshot is what makes it dirty.
func (s *Session) markDirty() {
	if s.state == Clean || s.state == SaveFailed {
		s.setState(Dirty, StatusModified)
	}
}

func (s *Session) stopTimers() {
	s.previewTimer.Stop()
	s.draftTimer.Stop()
	s.autosaveTimer.Stop()
}

func (s *Session) renderNow() bool {
	res, err := s.e.pipeline.Run(s.content)
	if err != nil {
		// Mid-typing states often fail to parse; keep showing the last good preview.
		editorLogger.Warn().Err(err).Str("document_id", string(s.ID)).Msg("Preview render failed")
		return false
	}
	s.rendered = res
	s.headings.Reset(nil)
	s.publish(Event{Kind: EventPreview, Preview: &res})
	return true
}

func (s *Session) onPreviewTimer() {
	if s.closed {
		return
	}
	s.renderNow()
}

func (s *Session) onDraftTimer() {
	if s.closed || !s.HasUnsavedChanges() {
		return
	}
	id, content := s.ID, s.content
	s.drafts.Submit(func(ctx context.Context) error {
		return s.e.draftRepo.SaveDraft(ctx, id, content)
	}, func(err error) {
		if err != nil && !errors.Is(err, schedule.ErrSuperseded) {
			editorLogger.Warn().Err(err).Str("document_id", string(id)).Msg("Draft snapshot failed")
		}
	})
}

func (s *Session) onAutosaveTimer() {
	if s.closed || !s.HasUnsavedChanges() {
		return
	}
	editorLogger.Debug().Str("document_id", string(s.ID)).Msg("Autosave")
	s.requestSave()
}

// deleteDraft queues the delete behind any draft write still in flight.
func (s *Session) deleteDraft() {
	id := s.ID
	s.drafts.Submit(func(ctx context.Context) error {
		return s.e.draftRepo.DeleteDraft(ctx, id)
	}, func(err error) {
		if err != nil && !errors.Is(err, schedule.ErrSuperseded) {
			editorLogger.Warn().Err(err).Str("document_id", string(id)).Msg("Failed to delete draft")
		}
	})
}

// requestSave snapshots title and content and queues a write of them.
func (s *Session) requestSave() {
	record := *s.doc
	record.Title = s.title
	record.Content = s.content

	s.savingTitle, s.savingContent = s.title, s.content
	if s.state != Saving {
		s.setState(Saving, StatusSaving)
	}

	s.saves.Submit(func(ctx context.Context) error {
		return s.e.docs.Save(ctx, &record)
	}, func(err error) {
		if errors.Is(err, schedule.ErrSuperseded) {
			return
		}
		s.saveDone(&record, err)
	})
}

func (s *Session) awaitSave() <-chan error {
	ch := make(chan error, 1)
	s.saveWaiters = append(s.saveWaiters, ch)
	return ch
}

func (s *Session) flushSaveWaiters(err error) {
	for _, ch := range s.saveWaiters {
		ch <- err
	}
	s.saveWaiters = nil
}

func (s *Session) saveDone(saved *model.Document, err error) {
	if s.closed {
		return
	}

	if err != nil {
		editorLogger.Error().Err(err).Str("document_id", string(s.ID)).Msg("Save failed")
		if s.saves.Busy() {
			// A newer save is already running and will settle the state.
			return
		}
		s.setState(SaveFailed, StatusFailed)
		s.flushSaveWaiters(err)
		s.cancelLeave(err)
		return
	}

	s.doc.Title = saved.Title
	s.doc.Content = saved.Content
	s.doc.SourcePath = saved.SourcePath
	s.doc.UpdatedAt = saved.UpdatedAt
	s.latch(saved.Content)

	if s.saves.Busy() {
		return
	}

	if s.title == saved.Title && s.content == saved.Content {
		s.draftTimer.Stop()
		s.autosaveTimer.Stop()
		s.deleteDraft()
		s.setState(Clean, StatusSaved)
	} else {
		s.setState(Dirty, StatusModified)
	}
	s.flushSaveWaiters(nil)

	if s.leaving == nil {
		return
	}
	if s.state == Dirty {
		// Typed after choosing save-and-leave: commit that too before leaving.
		s.requestSave()
		return
	}
	s.finishLeave()
}

func (s *Session) cancelLeave(err error) {
	if s.leaving == nil {
		return
	}
	for _, ch := range s.leaving.waiters {
		ch <- err
	}
	s.leaving = nil
}

func (s *Session) leaveAfterSave(target string) <-chan error {
	ch := make(chan error, 1)
	if s.leaving == nil {
		s.leaving = &pendingLeave{target: target}
	}
	s.leaving.target = target
	s.leaving.waiters = append(s.leaving.waiters, ch)
	return ch
}

func (s *Session) finishLeave() {
	leave := s.leaving
	s.leaving = nil
	s.close(leave.target, false)
	for _, ch := range leave.waiters {
		ch <- nil
	}
}

// close ends the session. A save still waiting to start is dropped; work already in flight
// completes but its results are ignored.
func (s *Session) close(target string, deleted bool) {
	s.stopTimers()
	if s.saves.Cancel() {
		editorLogger.Debug().Str("document_id", string(s.ID)).Msg("Dropped queued save")
	}
	s.closed = true
	s.flushSaveWaiters(ErrSessionClosed)
	s.cancelLeave(ErrSessionClosed)
	if s.e.session == s {
		s.e.session = nil
	}
	s.publish(Event{Kind: EventNavigated, Navigated: &Navigation{Target: target, Deleted: deleted}})
	editorLogger.Info().Str("document_id", string(s.ID)).Str("target", target).Bool("deleted", deleted).Msg("Left document")
}
