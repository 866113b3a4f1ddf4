package engine

import "time"

type EventType string

const (
	EventOfferMatched EventType = "offer.matched"
	EventMatchState   EventType = "match.state"
	EventMatchResult  EventType = "match.result"
)

// Event carries the same fields as the match view. Delivery is best effort;
// the view returned by Get stays the source of truth.
type Event struct {
	Type    EventType `json:"type"`
	MatchID string    `json:"match_id"`
	OfferID string    `json:"offer_id"`
	Match   View      `json:"match"`
	At      time.Time `json:"at"`
}

// Notifier must not block: it is called inside the match's exclusive section.
type Notifier interface {
	Publish(e Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}
