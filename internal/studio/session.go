package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foodphotographer/internal/menu"
)

var (
	ErrSubmissionInProgress = errors.New("A menu is already being processed. Please wait for it to finish.")
	ErrDishNotFound         = errors.New("Dish not found.")
	ErrDishNotReady         = errors.New("Only dishes with a finished photo can be edited.")
	ErrEditInProgress       = errors.New("An edit for this dish is already running.")
)

// EditFailurePrefix starts the banner shown after a failed edit.
const EditFailurePrefix = "Failed to apply edit: "

type Extractor interface {
	ExtractDishes(ctx context.Context, menuText string) ([]menu.Entry, error)
}

type Generator interface {
	GenerateImage(ctx context.Context, name, description string, style menu.Style) (menu.Image, error)
}

type Editor interface {
	EditImage(ctx context.Context, img menu.Image, instruction string) (menu.Image, error)
}

// Models bundles the three remote operations a session needs. *gemini.Client
// implements it.
type Models interface {
	Extractor
	Generator
	Editor
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseExtracting Phase = "extracting"
	PhaseGenerating Phase = "generating"
)

// State is a point-in-time copy of a session as the browser renders it.
// Version grows with every change, so a client holding a newer state can drop
// an older one.
type State struct {
	ID        string      `json:"id"`
	Version   uint64      `json:"version"`
	Phase     Phase       `json:"phase"`
	Style     menu.Style  `json:"style"`
	Dishes    []menu.Dish `json:"dishes"`
	Error     string      `json:"error,omitempty"`
	CanSubmit bool        `json:"can_submit"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Session owns one browser's dish collection. All writes go through the mutex and
// swap in a fresh slice, so snapshots handed out earlier are never mutated.
type Session struct {
	id     string
	models Models
	notify Notifier
	log    *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	dishes     []menu.Dish
	style      menu.Style
	extracting bool
	banner     string
	updatedAt  time.Time
	lastSeen   time.Time
	version    uint64

	inflight sync.WaitGroup
}

func NewSession(id string, models Models, notify Notifier, log *zap.Logger) *Session {
	if notify == nil {
		notify = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		id:     id,
		models: models,
		notify: notify,
		log:    log.With(zap.String("session", id)),
		now:    time.Now,
		style:  menu.DefaultStyle,
	}
	s.updatedAt = s.now().UTC()
	s.lastSeen = s.updatedAt
	return s
}

func (s *Session) ID() string { return s.id }

// Submit extracts dishes from text and starts one image generation per dish.
// It returns as soon as the generations are dispatched; their results arrive
// through the Notifier and later snapshots.
func (s *Session) Submit(ctx context.Context, text string, style menu.Style) ([]menu.Dish, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, menu.ErrEmptyMenu
	}
	if !style.Valid() {
		return nil, menu.ErrUnknownStyle
	}

	s.mu.Lock()
	if s.busyLocked() {
		s.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	s.extracting = true
	s.dishes = nil
	s.banner = ""
	s.style = style
	s.touchLocked()
	s.mu.Unlock()

	s.log.Info("extraction start", zap.String("style", string(style)), zap.Int("menu_bytes", len(text)))
	s.publish(Event{Type: EventExtractionStarted})

	// Remote work outlives the request that started it.
	work := context.WithoutCancel(ctx)

	entries, err := s.models.ExtractDishes(work, text)
	if err != nil {
		if !errors.Is(err, menu.ErrExtraction) {
			err = fmt.Errorf("%w: %v", menu.ErrExtraction, err)
		}
		msg := menu.UserMessage(err)
		s.mu.Lock()
		s.extracting = false
		s.dishes = nil
		s.banner = msg
		s.touchLocked()
		s.mu.Unlock()

		s.log.Warn("extraction failed", zap.Error(err))
		s.publish(Event{Type: EventExtractionFailed, Message: msg})
		return nil, err
	}

	dishes := make([]menu.Dish, 0, len(entries))
	for _, e := range entries {
		dishes = append(dishes, menu.Dish{
			ID:          uuid.NewString(),
			Name:        e.Name,
			Description: e.Description,
			Status:      menu.StatusGenerating,
		})
	}

	s.mu.Lock()
	s.extracting = false
	s.dishes = dishes
	s.touchLocked()
	s.inflight.Add(len(dishes))
	s.mu.Unlock()

	s.log.Info("dishes extracted", zap.Int("dishes", len(dishes)))
	s.publish(Event{Type: EventDishesExtracted, Dishes: stripImages(dishes)})

	for _, d := range dishes {
		go s.generate(work, d, style)
	}

	out := make([]menu.Dish, len(dishes))
	copy(out, dishes)
	return out, nil
}

func (s *Session) generate(ctx context.Context, d menu.Dish, style menu.Style) {
	defer s.inflight.Done()
	log := s.log.With(zap.String("dish_id", d.ID), zap.String("dish", d.Name))
	log.Debug("generation start")

	img, err := s.models.GenerateImage(ctx, d.Name, d.Description, style)
	if err == nil && len(img.Data) == 0 {
		err = errors.New("empty image")
	}
	if err != nil {
		var genErr *menu.GenerationError
		if !errors.As(err, &genErr) {
			err = &menu.GenerationError{Dish: d.Name, Err: err}
		}
		msg := menu.UserMessage(err)
		updated, ok := s.update(d.ID, func(cur menu.Dish) menu.Dish {
			return cur.WithFailure(msg)
		})
		if !ok {
			log.Warn("generation failed for a dish no longer in the session", zap.Error(err))
			return
		}
		log.Warn("generation failed", zap.Error(err))
		s.publish(Event{Type: EventDishFailed, Dish: &updated, Message: msg})
		return
	}

	updated, ok := s.update(d.ID, func(cur menu.Dish) menu.Dish {
		return cur.WithImage(img)
	})
	if !ok {
		log.Warn("generated image dropped, dish no longer in the session")
		return
	}
	log.Info("generation done", zap.Int("bytes", len(img.Data)))
	s.publish(Event{Type: EventDishReady, Dish: &updated})
}

// Edit applies instruction to the current photo of a Ready dish. On failure the
// dish keeps its previous image and the session banner reports the problem.
func (s *Session) Edit(ctx context.Context, dishID, instruction string) (menu.Dish, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return menu.Dish{}, menu.ErrEmptyInstruction
	}

	s.mu.Lock()
	cur, ok := s.findLocked(dishID)
	switch {
	case !ok:
		s.mu.Unlock()
		return menu.Dish{}, ErrDishNotFound
	case cur.Status != menu.StatusReady || !cur.HasImage():
		s.mu.Unlock()
		return menu.Dish{}, ErrDishNotReady
	case cur.Editing:
		s.mu.Unlock()
		return menu.Dish{}, ErrEditInProgress
	}
	src := *cur.Image
	s.replaceLocked(dishID, func(d menu.Dish) menu.Dish {
		d.Editing = true
		return d
	})
	s.touchLocked()
	s.mu.Unlock()

	log := s.log.With(zap.String("dish_id", dishID), zap.String("dish", cur.Name))
	log.Info("edit start", zap.Int("instruction_len", len(instruction)))

	img, err := s.models.EditImage(context.WithoutCancel(ctx), src, instruction)
	if err == nil && len(img.Data) == 0 {
		err = errors.New("empty image")
	}
	if err != nil {
		if !errors.Is(err, menu.ErrEdit) {
			err = fmt.Errorf("%w: %v", menu.ErrEdit, err)
		}
		msg := EditFailurePrefix + menu.UserMessage(err)

		s.mu.Lock()
		updated, found := s.replaceLocked(dishID, func(d menu.Dish) menu.Dish {
			d.Editing = false
			return d
		})
		// A newer submission may have replaced the dish; its batch keeps a clean banner.
		if found {
			s.banner = msg
			s.touchLocked()
		}
		s.mu.Unlock()

		if !found {
			log.Warn("edit failed for a dish no longer in the session", zap.Error(err))
			return menu.Dish{}, err
		}
		log.Warn("edit failed", zap.Error(err))
		s.publish(Event{Type: EventEditFailed, Dish: &updated, Message: msg})
		return menu.Dish{}, err
	}

	updated, ok := s.update(dishID, func(d menu.Dish) menu.Dish {
		d.Editing = false
		if d.Status != menu.StatusReady {
			return d
		}
		return d.WithImage(img)
	})
	if !ok {
		log.Warn("edited image dropped, dish no longer in the session")
		return menu.Dish{}, ErrDishNotFound
	}
	log.Info("edit done", zap.Int("bytes", len(img.Data)), zap.Int("image_version", updated.ImageVersion))
	s.publish(Event{Type: EventDishEdited, Dish: &updated})
	return stripImage(updated), nil
}

// Snapshot returns the session as the browser should render it.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now().UTC()
	return State{
		ID:        s.id,
		Version:   s.version,
		Phase:     s.phaseLocked(),
		Style:     s.style,
		Dishes:    stripImages(s.dishes),
		Error:     s.banner,
		CanSubmit: !s.busyLocked(),
		UpdatedAt: s.updatedAt,
	}
}

// Touch marks the session as in use without changing it, e.g. while a browser
// keeps a live socket open.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now().UTC()
	s.mu.Unlock()
}

// CanSubmit is false while a menu is being extracted or any dish is still generating.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.busyLocked()
}

// Dish returns the dish with id including its image, if any.
func (s *Session) Dish(id string) (menu.Dish, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now().UTC()
	return s.findLocked(id)
}

// Wait blocks until every dispatched generation has finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// idle reports whether the session has been untouched since before cutoff and has
// no remote work running.
func (s *Session) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLocked() {
		return false
	}
	for _, d := range s.dishes {
		if d.Editing {
			return false
		}
	}
	return s.lastSeen.Before(cutoff)
}

func (s *Session) busyLocked() bool {
	if s.extracting {
		return true
	}
	for _, d := range s.dishes {
		if d.Status == menu.StatusGenerating {
			return true
		}
	}
	return false
}

func (s *Session) phaseLocked() Phase {
	if s.extracting {
		return PhaseExtracting
	}
	for _, d := range s.dishes {
		if d.Status == menu.StatusGenerating {
			return PhaseGenerating
		}
	}
	return PhaseIdle
}

func (s *Session) findLocked(id string) (menu.Dish, bool) {
	for _, d := range s.dishes {
		if d.ID == id {
			return d, true
		}
	}
	return menu.Dish{}, false
}

// update replaces the dish with id by fn(dish) and returns the new value.
func (s *Session) update(id string, fn func(menu.Dish) menu.Dish) (menu.Dish, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, ok := s.replaceLocked(id, fn)
	if ok {
		s.touchLocked()
	}
	return updated, ok
}

func (s *Session) replaceLocked(id string, fn func(menu.Dish) menu.Dish) (menu.Dish, bool) {
	idx := -1
	for i := range s.dishes {
		if s.dishes[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return menu.Dish{}, false
	}
	next := make([]menu.Dish, len(s.dishes))
	copy(next, s.dishes)
	next[idx] = fn(next[idx])
	s.dishes = next
	return next[idx], true
}

func (s *Session) touchLocked() {
	s.version++
	s.updatedAt = s.now().UTC()
	s.lastSeen = s.updatedAt
}

func (s *Session) publish(ev Event) {
	ev.SessionID = s.id
	ev.At = s.now().UTC()
	if ev.Dish != nil {
		d := stripImage(*ev.Dish)
		ev.Dish = &d
	}
	s.notify.Publish(ev)
}
