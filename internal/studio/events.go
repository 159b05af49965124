package studio

import (
	"time"

	"foodphotographer/internal/menu"
)

type EventType string

const (
	EventExtractionStarted EventType = "extraction_started"
	EventExtractionFailed  EventType = "extraction_failed"
	EventDishesExtracted   EventType = "dishes_extracted"
	EventDishReady         EventType = "dish_ready"
	EventDishFailed        EventType = "dish_failed"
	EventDishEdited        EventType = "dish_edited"
	EventEditFailed        EventType = "edit_failed"
)

// Event describes one state change of a session. Dishes never carry image bytes;
// browsers fetch pictures through the image endpoint using ImageVersion.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	At        time.Time   `json:"at"`
	Dish      *menu.Dish  `json:"dish,omitempty"`
	Dishes    []menu.Dish `json:"dishes,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// Notifier receives every event published by a session. Publish is called outside
// the session lock and must not block for long.
type Notifier interface {
	Publish(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Publish(ev Event) { f(ev) }

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}

func stripImage(d menu.Dish) menu.Dish {
	d.Image = nil
	return d
}

func stripImages(dishes []menu.Dish) []menu.Dish {
	out := make([]menu.Dish, len(dishes))
	for i, d := range dishes {
		out[i] = stripImage(d)
	}
	return out
}
