package editor

import (
	"context"
	"fmt"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/preview"
)

const (
	CommandEdit     = "edit"
	CommandRename   = "rename"
	CommandSave     = "save"
	CommandNavigate = "navigate"
	CommandRecover  = "recover"
	CommandScroll   = "scroll"
	CommandHeadings = "headings"
)

// Navigation targets.
const (
	TargetHome     = "home"
	TargetSettings = "settings"
	TargetDocument = "document"
	TargetClose    = "close"
)

// Answers to the unsaved-changes prompt.
const (
	ChoiceSave    = "save"
	ChoiceDiscard = "discard"
	ChoiceCancel  = "cancel"
)

var unsavedOptions = []string{ChoiceSave, ChoiceDiscard, ChoiceCancel}

// Args carries the parameters of every command; each command reads the fields it needs.
type Args struct {
	DocumentID model.DocumentID `json:"documentId,omitempty"`

	Content *string `json:"content,omitempty"`
	Title   *string `json:"title,omitempty"`

	Target string `json:"target,omitempty"`
	Choice string `json:"choice,omitempty"`
	Accept *bool  `json:"accept,omitempty"`

	Pane    string          `json:"pane,omitempty"`
	Source  preview.Metrics `json:"source"`
	Preview preview.Metrics `json:"preview"`

	Headings   []preview.Box `json:"headings,omitempty"`
	ViewTop    float64       `json:"viewTop"`
	ViewHeight float64       `json:"viewHeight"`
}

type ScrollTarget struct {
	Pane   preview.Pane `json:"pane"`
	Offset float64      `json:"offset"`
}

// Change describes the result of a command.
type Change struct {
	DocumentID model.DocumentID `json:"documentId"`
	State      State            `json:"state"`
	Dirty      bool             `json:"dirty"`

	Title   *string         `json:"title,omitempty"`
	Content *string         `json:"content,omitempty"`
	Preview *preview.Result `json:"preview,omitempty"`

	Prompt *Prompt `json:"prompt,omitempty"`

	Navigated bool   `json:"navigated,omitempty"`
	Target    string `json:"target,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`

	ScrollTarget  *ScrollTarget `json:"scrollTarget,omitempty"`
	ActiveHeading *preview.Box  `json:"activeHeading,omitempty"`

	// Await, when set, yields once the save or navigation the command started has settled.
	Await <-chan error `json:"-"`
}

func (s *Session) change() Change {
	return Change{
		DocumentID: s.ID,
		State:      s.state,
		Dirty:      s.HasUnsavedChanges(),
	}
}

func (s *Session) recoveryPrompt() *Prompt {
	at := s.recovery.UpdatedAt
	return &Prompt{
		Kind:           PromptRecover,
		Options:        []string{"accept", "reject"},
		DraftUpdatedAt: &at,
	}
}

func settled(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

func (e *Editor) edit(ctx context.Context, s *Session, args Args) (Change, error) {
	if args.Content == nil {
		return Change{}, fmt.Errorf("%w: content is required", ErrInvalidArgs)
	}
	if *args.Content == s.content {
		return s.change(), nil
	}

	// Typing over a recovery offer declines it.
	s.recovery = nil

	s.content = *args.Content
	s.latch(s.content)
	s.markDirty()

	s.previewTimer.Trigger()
	s.draftTimer.Trigger()
	s.autosaveTimer.Trigger()

	return s.change(), nil
}

func (e *Editor) rename(ctx context.Context, s *Session, args Args) (Change, error) {
	if args.Title == nil {
		return Change{}, fmt.Errorf("%w: title is required", ErrInvalidArgs)
	}
	title := model.NormalizeTitle(*args.Title)
	if title == s.title {
		return s.change(), nil
	}

	s.title = title
	s.markDirty()
	s.requestSave()

	c := s.change()
	c.Await = s.awaitSave()
	return c, nil
}

func (e *Editor) save(ctx context.Context, s *Session, args Args) (Change, error) {
	switch {
	case s.HasUnsavedChanges():
		s.requestSave()
	case s.state == Saving:
		// Nothing new to write: wait for the save already running.
	default:
		c := s.change()
		c.Await = settled(nil)
		return c, nil
	}

	c := s.change()
	c.Await = s.awaitSave()
	return c, nil
}

func (e *Editor) navigate(ctx context.Context, s *Session, args Args) (Change, error) {
	target := args.Target
	switch target {
	case TargetHome, TargetSettings, TargetDocument, TargetClose:
	default:
		return Change{}, fmt.Errorf("%w: unknown target %q", ErrInvalidArgs, target)
	}

	if s.Ephemeral() && target != TargetClose {
		return e.discardEphemeral(ctx, s, target), nil
	}

	if s.HasUnsavedChanges() {
		switch args.Choice {
		case "":
			c := s.change()
			c.Prompt = &Prompt{Kind: PromptUnsaved, Options: unsavedOptions, Target: target}
			s.publish(Event{Kind: EventPrompt, Prompt: c.Prompt})
			return c, nil
		case ChoiceCancel:
			return s.change(), nil
		case ChoiceDiscard:
			s.stopTimers()
			s.deleteDraft()
			c := s.change()
			s.close(target, false)
			c.Navigated, c.Target = true, target
			return c, nil
		case ChoiceSave:
			wait := s.leaveAfterSave(target)
			s.requestSave()
			c := s.change()
			c.Target = target
			c.Await = wait
			return c, nil
		default:
			return Change{}, fmt.Errorf("%w: unknown choice %q", ErrInvalidArgs, args.Choice)
		}
	}

	if s.state == Saving {
		c := s.change()
		c.Target = target
		c.Await = s.leaveAfterSave(target)
		return c, nil
	}

	c := s.change()
	s.close(target, false)
	c.Navigated, c.Target = true, target
	c.Await = settled(nil)
	return c, nil
}

// discardEphemeral deletes a document that never held anything and leaves it.
func (e *Editor) discardEphemeral(ctx context.Context, s *Session, target string) Change {
	s.stopTimers()
	if err := e.docs.Delete(ctx, s.ID); err != nil {
		editorLogger.Warn().Err(err).Str("document_id", string(s.ID)).Msg("Failed to delete empty document")
	}
	if err := e.draftRepo.DeleteDraft(ctx, s.ID); err != nil {
		editorLogger.Warn().Err(err).Str("document_id", string(s.ID)).Msg("Failed to delete draft of empty document")
	}
	e.deleteImages(ctx, s.ID)

	c := s.change()
	s.close(target, true)
	c.Navigated, c.Target, c.Deleted = true, target, true
	c.Await = settled(nil)
	return c
}

func (e *Editor) recover(ctx context.Context, s *Session, args Args) (Change, error) {
	if args.Accept == nil {
		return Change{}, fmt.Errorf("%w: accept is required", ErrInvalidArgs)
	}
	if s.recovery == nil {
		return s.change(), nil
	}

	lookup := s.recovery
	s.recovery = nil
	if !*args.Accept {
		editorLogger.Info().Str("document_id", string(s.ID)).Msg("Draft recovery declined")
		return s.change(), nil
	}

	s.content = lookup.Content
	s.latch(s.content)
	s.markDirty()
	s.renderNow()
	s.autosaveTimer.Trigger()
	editorLogger.Info().Str("document_id", string(s.ID)).Time("draft_updated_at", lookup.UpdatedAt).Msg("Draft recovered")

	return e.snapshot(s), nil
}

func (e *Editor) scroll(ctx context.Context, s *Session, args Args) (Change, error) {
	from, err := preview.ParsePane(args.Pane)
	if err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	src, dst := args.Source, args.Preview
	if from == preview.Preview {
		src, dst = dst, src
	}

	c := s.change()
	if offset, ok := s.scroll.OnScroll(from, src, dst); ok {
		c.ScrollTarget = &ScrollTarget{Pane: from.Other(), Offset: offset}
	}

	// The preview's new position is where the user scrolled it or where we are sending it.
	view := args.Preview
	if c.ScrollTarget != nil && c.ScrollTarget.Pane == preview.Preview {
		view.ScrollTop = c.ScrollTarget.Offset
	}
	s.trackHeading(&c, view.ScrollTop, view.ViewportHeight)
	return c, nil
}

func (e *Editor) headings(ctx context.Context, s *Session, args Args) (Change, error) {
	s.headings.Reset(args.Headings)
	c := s.change()
	s.trackHeading(&c, args.ViewTop, args.ViewHeight)
	return c, nil
}

func (s *Session) trackHeading(c *Change, top, height float64) {
	box, changed := s.headings.Update(top, height)
	if !changed {
		return
	}
	c.ActiveHeading = &box
	s.publish(Event{Kind: EventHeading, Heading: &box})
}

// deleteImages drops a deleted document's attachments. Failures only leave orphaned files.
func (e *Editor) deleteImages(ctx context.Context, id model.DocumentID) {
	if e.images == nil {
		return
	}
	if err := e.images.DeleteAll(ctx, id); err != nil {
		editorLogger.Warn().Err(err).Str("document_id", string(id)).Msg("Failed to delete images")
	}
}
