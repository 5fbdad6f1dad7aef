package editor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kwv/floorplan/spatial"
)

// DefaultAutosaveDelay is the debounce interval for space edits.
const DefaultAutosaveDelay = 300 * time.Millisecond

const (
	// DefaultRetryDelay is the first wait before a save that failed
	// transiently is tried again. It doubles up to maxRetryDelay.
	DefaultRetryDelay = 5 * time.Second
	maxRetryDelay     = time.Minute
)

// Saver persists a floor plan. version is the last server version the
// session knows; implementations send it as the precondition and return
// the plan as stored, with the new version.
type Saver interface {
	SaveFloorPlan(ctx context.Context, plan *spatial.FloorPlan, version int) (*spatial.FloorPlan, error)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithAutosaveDelay sets the debounce interval.
func WithAutosaveDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithSaveTimeout bounds each background save, retries included.
func WithSaveTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithRetryDelay sets the first wait before retrying a save that failed
// with a transient error.
func WithRetryDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithSavedHook registers fn to run after each save the session accepted.
func WithSavedHook(fn func(saved *spatial.FloorPlan)) CoordinatorOption {
	return func(c *Coordinator) {
		c.hooks = append(c.hooks, fn)
	}
}

// Coordinator turns committed session edits into debounced saves. Bursts
// of edits coalesce into one save; a new edit while a save is pending
// restarts the timer, and an edit during an in-flight save queues one
// follow-up save instead of cancelling the request.
type Coordinator struct {
	session *Session
	saver   Saver
	delay      time.Duration
	timeout    time.Duration
	retryDelay time.Duration
	hooks      []func(*spatial.FloorPlan)

	mu       sync.Mutex
	timer    *time.Timer
	backoff  time.Duration
	inFlight bool
	rerun    bool
	done     chan struct{}
	closed   bool

	unsubscribe func()
}

// NewCoordinator attaches a coordinator to session. Local edits schedule
// a save; undo, redo and remote patches do not.
func NewCoordinator(session *Session, saver Saver, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		session:    session,
		saver:      saver,
		delay:      DefaultAutosaveDelay,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = session.Subscribe(func(ev Event) {
		if ev.Local() {
			c.Schedule()
		}
	})
	return c
}

// Schedule (re)starts the debounce timer.
func (c *Coordinator) Schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, c.fire)
}

func (c *Coordinator) fire() {
	c.mu.Lock()
	c.timer = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.inFlight {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.startLocked()
	c.mu.Unlock()

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.run(ctx); err != nil {
		log.Printf("[SAVE] Autosave failed: %v", err)
	}
}

// Flush cancels any pending debounce, waits for an in-flight save, and
// saves the session if it is still dirty. It returns the error of the
// save it ran, if any.
func (c *Coordinator) Flush(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrCoordinatorClosed
		}
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		if c.inFlight {
			done := c.done
			c.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		c.startLocked()
		c.mu.Unlock()
		return c.run(ctx)
	}
}

// Close stops scheduling saves. An in-flight save runs to completion.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.unsubscribe()
}

// Pending reports whether a save is scheduled or running.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil || c.inFlight
}

func (c *Coordinator) startLocked() {
	c.inFlight = true
	c.rerun = false
	c.done = make(chan struct{})
}

// run saves until no follow-up save is queued. It returns the error of
// the last save. A transient failure schedules another attempt with
// exponential backoff; the edits stay dirty until it succeeds.
func (c *Coordinator) run(ctx context.Context) error {
	var err error
	for {
		var retry bool
		retry, err = c.saveOnce(ctx)

		c.mu.Lock()
		if (c.rerun || retry) && !c.closed && err == nil {
			c.rerun = false
			c.mu.Unlock()
			continue
		}
		c.inFlight = false
		c.rerun = false
		close(c.done)
		switch {
		case err == nil:
			c.backoff = 0
		case transientSave(err) && !c.closed:
			c.retryLocked()
		}
		c.mu.Unlock()
		return err
	}
}

func (c *Coordinator) retryLocked() {
	if c.backoff == 0 {
		c.backoff = c.retryDelay
	} else {
		c.backoff *= 2
	}
	if c.backoff > maxRetryDelay {
		c.backoff = maxRetryDelay
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	log.Printf("[SAVE] Retrying save in %v", c.backoff)
	c.timer = time.AfterFunc(c.backoff, c.fire)
}

func transientSave(err error) bool {
	return IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// saveOnce sends the present state if it is dirty. retry is set when the
// response was stale but local edits remain unsaved.
func (c *Coordinator) saveOnce(ctx context.Context) (retry bool, err error) {
	ticket, ok := c.session.beginSave()
	if !ok {
		return false, nil
	}
	log.Printf("[SAVE] Saving floor plan %s at version %d", ticket.plan.ID, ticket.version)

	start := time.Now()
	saved, err := c.saver.SaveFloorPlan(ctx, ticket.plan, ticket.version)
	saveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return false, c.session.failSave(ticket, err)
	}

	applied, dirty := c.session.completeSave(ticket, saved)
	if !applied {
		savesTotal.WithLabelValues(resultStale).Inc()
		log.Printf("[SAVE] Ignoring stale save response for version %d", ticket.version)
		return dirty, nil
	}
	savesTotal.WithLabelValues(resultSaved).Inc()
	log.Printf("[SAVE] Floor plan %s saved as version %d", saved.ID, saved.Metadata.Version)
	for _, fn := range c.hooks {
		fn(saved)
	}
	return false, nil
}

// saveTicket identifies one save attempt.
type saveTicket struct {
	plan    *spatial.FloorPlan
	version int
	gen     uint64
}

// beginSave snapshots the present state for saving. It reports false when
// there is nothing to save.
func (s *Session) beginSave() (saveTicket, bool) {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return saveTicket{}, false
	}
	s.saving = true
	t := saveTicket{plan: s.present.Clone(), version: s.present.Metadata.Version, gen: s.gen}
	ev := s.eventLocked(EventSaving, "")
	s.mu.Unlock()

	s.emit(ev)
	return t, true
}

// completeSave applies a successful response. A response is stale when
// the present version moved while the request was in flight; it is then
// ignored. The dirty flag clears if no local edit happened since the
// snapshot was taken or the edits since then returned to the saved state.
func (s *Session) completeSave(t saveTicket, saved *spatial.FloorPlan) (applied, dirty bool) {
	s.mu.Lock()
	s.saving = false
	if saved == nil || s.present.Metadata.Version != t.version {
		dirty = s.dirty
		s.mu.Unlock()
		return false, dirty
	}

	next := s.present.ShallowClone()
	next.Metadata.Version = saved.Metadata.Version
	next.Metadata.LastModified = saved.Metadata.LastModified
	s.present = next
	s.confirmed = saved.Clone()
	s.dirty = s.gen != t.gen && !s.matchesConfirmedLocked()
	dirty = s.dirty
	ev := s.eventLocked(EventSaved, "")
	s.mu.Unlock()

	s.emit(ev)
	return true, dirty
}

// failSave classifies a save error. Conflicts and exhausted retries keep
// the local edits. Any other failure rolls the present state back to the
// last confirmed snapshot and returns a *SaveError holding what was
// discarded.
func (s *Session) failSave(t saveTicket, err error) error {
	s.mu.Lock()
	s.saving = false

	switch {
	case IsConflict(err):
		savesTotal.WithLabelValues(resultConflict).Inc()
		ev := s.eventLocked(EventConflict, "")
		ev.Err, ev.Message = err, err.Error()
		s.mu.Unlock()
		log.Printf("[SAVE] Conflict saving floor plan %s: %v", t.plan.ID, err)
		s.emit(ev)
		return err

	case IsTransient(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		savesTotal.WithLabelValues(resultTransient).Inc()
		ev := s.eventLocked(EventSaveFailed, "")
		ev.Err, ev.Message = err, err.Error()
		s.mu.Unlock()
		log.Printf("[SAVE] Save of floor plan %s failed, edits kept: %v", t.plan.ID, err)
		s.emit(ev)
		return err
	}

	if s.present.Metadata.Version != t.version {
		s.mu.Unlock()
		savesTotal.WithLabelValues(resultStale).Inc()
		return err
	}

	discarded := s.present
	s.present = s.confirmed.Clone()
	s.undo.clear()
	s.redo.clear()
	s.dirty = false
	s.gen++
	s.validation = nil
	if s.selected != "" && s.present.SpaceByID(s.selected) < 0 {
		s.selected = ""
	}
	serr := &SaveError{PlanID: t.plan.ID, Version: t.version, RolledBack: true, Discarded: discarded.Clone(), Err: err}
	ev := s.eventLocked(EventRolledBack, "")
	ev.Err, ev.Message = serr, serr.Error()
	s.mu.Unlock()

	savesTotal.WithLabelValues(resultRolledBack).Inc()
	log.Printf("[SAVE] Save of floor plan %s failed, rolled back to version %d: %v", t.plan.ID, t.version, err)
	s.emit(ev)
	return serr
}
