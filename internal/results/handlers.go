package results

import (
	"backend-racehub/internal/auth"
	"backend-racehub/internal/errs"
	"backend-racehub/internal/race"
	"backend-racehub/internal/source"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type moveRequest struct {
	From *int `json:"from" validate:"required"`
	To   *int `json:"to" validate:"required"`
}

type statusRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

type timeRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Time   string `json:"time" validate:"required"`
}

type bibRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Bib    string `json:"bib" validate:"required"`
}

// RegisterRoutes mounts the draft endpoints. Every route needs a valid token;
// routes that change a draft also need hostMiddleware to pass.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, hostMiddleware fiber.Handler) {
	r.Post("/races/:raceID/drafts", authMiddleware, hostMiddleware, func(c *fiber.Ctx) error {
		d, err := svc.CreateDraft(c.UserContext(), c.Params("raceID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(d)
	})

	r.Get("/races/:raceID/export.xlsx", authMiddleware, func(c *fiber.Ctx) error {
		doc, err := svc.Workbook(c.UserContext(), c.Params("raceID"), c.Query("draft"))
		if err != nil {
			return errs.Fiber(err)
		}
		c.Attachment("results-" + c.Params("raceID") + ".xlsx")
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		return c.Send(doc)
	})

	r.Get("/drafts/:draftID", authMiddleware, func(c *fiber.Ctx) error {
		d, err := svc.Draft(c.UserContext(), c.Params("draftID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(d)
	})

	r.Post("/drafts/:draftID/move", authMiddleware, hostMiddleware, func(c *fiber.Ctx) error {
		var req moveRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		d, err := svc.Move(c.UserContext(), c.Params("draftID"), *req.From, *req.To)
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(d)
	})

	r.Post("/drafts/:draftID/status", authMiddleware, hostMiddleware, func(c *fiber.Ctx) error {
		var req statusRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		d, err := svc.SetStatus(c.UserContext(), c.Params("draftID"), req.UserID, race.Status(req.Status))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(d)
	})

	r.Post("/drafts/:draftID/time", authMiddleware, hostMiddleware, func(c *fiber.Ctx) error {
		var req timeRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		d, err := svc.SetTime(c.UserContext(), c.Params("draftID"), req.UserID, req.Time)
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(d)
	})

	r.Post("/drafts/:draftID/bib", authMiddleware, hostMiddleware, func(c *fiber.Ctx) error {
		var req bibRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		d, err := svc.SetBib(c.UserContext(), c.Params("draftID"), req.UserID, req.Bib)
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(d)
	})

	r.Post("/drafts/:draftID/publish", authMiddleware, hostMiddleware, func(c *fiber.Ctx) error {
		ctx := source.WithBearerToken(c.UserContext(), auth.Token(c))
		d, err := svc.Publish(ctx, c.Params("draftID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(d)
	})
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
