package live

import (
	"backend-racehub/internal/auth"
	"backend-racehub/internal/bus"
	"backend-racehub/internal/errs"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type EventPublisher interface {
	Publish(topic string, payload []byte) error
}

type ingestRequest struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// mayPost lets participants report their own position. Everything else, and
// updates on behalf of another runner, needs the host role.
func mayPost(c *fiber.Ctx, ev Event) bool {
	if auth.HasRole(c, auth.RoleHost) {
		return true
	}
	return ev.Type == EventParticipantUpdate && ev.Update != nil && ev.Update.UserID == auth.UserID(c)
}

func RegisterRoutes(r fiber.Router, reg *Registry, pub EventPublisher, authMiddleware fiber.Handler) {
	r.Post("/races/:raceID/events", authMiddleware, func(c *fiber.Ctx) error {
		var req ingestRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		env := Envelope{RaceID: c.Params("raceID"), Type: req.Type, Data: req.Data}
		ev, err := env.Event()
		if err != nil {
			return errs.Fiber(err)
		}
		if !mayPost(c, ev) {
			return fiber.NewError(fiber.StatusForbidden, "host role required for "+string(ev.Type))
		}
		payload, err := json.Marshal(env)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if err := pub.Publish(bus.TopicRaceEvents, payload); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/races/:raceID/leaderboard", func(c *fiber.Ctx) error {
		board, err := reg.Leaderboard(c.UserContext(), c.Params("raceID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(board)
	})

	r.Get("/races/:raceID/positions", func(c *fiber.Ctx) error {
		snap, err := reg.Positions(c.UserContext(), c.Params("raceID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(snap)
	})
}
