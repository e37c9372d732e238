package tracking

import (
	"backend-racehub/internal/errs"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/races/:raceID/participants/:userID/splits", func(c *fiber.Ctx) error {
		ps, err := svc.Splits(c.UserContext(), c.Params("raceID"), c.Params("userID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(ps)
	})

	r.Get("/races/:raceID/participants/:userID/splits.png", func(c *fiber.Ctx) error {
		png, err := svc.SplitChart(c.UserContext(), c.Params("raceID"), c.Params("userID"))
		if err != nil {
			return errs.Fiber(err)
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(png)
	})

	r.Get("/races/:raceID/participants/:userID/certificate", func(c *fiber.Ctx) error {
		cert, err := svc.Certificate(c.UserContext(), c.Params("raceID"), c.Params("userID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(cert)
	})

	r.Get("/races/:raceID/statistics", func(c *fiber.Ctx) error {
		stats, err := svc.Statistics(c.UserContext(), c.Params("raceID"))
		if err != nil {
			return errs.Fiber(err)
		}
		return c.JSON(stats)
	})
}
