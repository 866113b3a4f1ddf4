package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"duel-match-system/engine"
	"duel-match-system/models"
	"duel-match-system/utils"
)

// MatchService serves the match read model, moves, the event stream and
// the player's history.
type MatchService struct {
	DB        *gorm.DB
	Registry  *engine.Registry
	Hub       *EventHub
	KeepAlive time.Duration
}

func NewMatchService(db *gorm.DB, registry *engine.Registry, hub *EventHub) *MatchService {
	return &MatchService{DB: db, Registry: registry, Hub: hub, KeepAlive: 15 * time.Second}
}

// localizeView translates the notice of voided and expired matches
func localizeView(c *fiber.Ctx, v engine.View) engine.View {
	if v.Notice != "" {
		v.Notice = utils.Localize(Lang(c), v.Notice)
	}
	return v
}

// GetMatch handles GET /matches/:id
func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	view, err := s.Registry.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(localizeView(c, view))
}

// SubmitMove handles POST /matches/:id/moves
func (s *MatchService) SubmitMove(c *fiber.Ctx) error {
	var req struct {
		Choice string `json:"choice"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	view, err := s.Registry.SubmitMove(c.UserContext(), c.Params("id"), c.Locals("user_id").(string), engine.ParseChoice(req.Choice))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(localizeView(c, view))
}

func writeEvent(w *bufio.Writer, name string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return w.Flush()
}

// StreamMatchEvents handles GET /matches/:id/events. The stream opens with a
// snapshot of the match and closes after the terminal state.
func (s *MatchService) StreamMatchEvents(c *fiber.Ctx) error {
	matchID := c.Params("id")
	// subscribe before the snapshot so nothing falls in between
	events, unsubscribe := s.Hub.Subscribe(matchID)
	snapshot, err := s.Registry.Get(c.UserContext(), matchID)
	if err != nil {
		unsubscribe()
		return respondError(c, err)
	}
	snapshot = localizeView(c, snapshot)
	lang := Lang(c)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	keepAlive := s.KeepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		first := engine.Event{
			Type:    engine.EventMatchState,
			MatchID: snapshot.ID,
			OfferID: snapshot.OfferID,
			Match:   snapshot,
			At:      s.Registry.Now(),
		}
		if err := writeEvent(w, string(first.Type), first); err != nil {
			return
		}
		if snapshot.State.Terminal() {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case e := <-events:
				if e.Match.Notice != "" {
					e.Match.Notice = utils.Localize(lang, e.Match.Notice)
				}
				if err := writeEvent(w, string(e.Type), e); err != nil {
					log.Printf("[SSE] client left match %s: %v", matchID, err)
					return
				}
				if e.Type == engine.EventMatchState && e.Match.State.Terminal() {
					return
				}
			case <-ticker.C:
				// comment line; a failed flush means the client is gone
				if _, err := w.WriteString(":\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

// GetMyMatches handles GET /players/me/matches
func (s *MatchService) GetMyMatches(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	page := c.QueryInt("page", 1)
	size := c.QueryInt("size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	mine := s.DB.WithContext(c.UserContext()).Model(&models.Match{}).
		Where("player_a_id = ? OR player_b_id = ?", userID, userID).
		Session(&gorm.Session{})

	var total, wins int64
	if err := mine.Count(&total).Error; err != nil {
		return respondError(c, err)
	}
	if err := mine.Where("state = ? AND payout_to = ?", models.MatchStateFinished, userID).Count(&wins).Error; err != nil {
		return respondError(c, err)
	}

	var matches []models.Match
	if err := mine.
		Preload("Rounds", orderedRounds).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&matches).Error; err != nil {
		return respondError(c, err)
	}

	views := make([]engine.View, 0, len(matches))
	for i := range matches {
		views = append(views, localizeView(c, engine.NewView(&matches[i])))
	}

	return c.JSON(fiber.Map{
		"matches":     views,
		"page":        page,
		"size":        size,
		"total_items": total,
		"total_pages": int((total + int64(size) - 1) / int64(size)),
		"wins":        wins,
	})
}
