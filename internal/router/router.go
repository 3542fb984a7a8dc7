package router

import (
	"github.com/gofiber/fiber/v2"

	"statutelex/internal/common/middleware"
	"statutelex/internal/handler"
	"statutelex/internal/svc"
)

// Setup wires the global middleware stack and the statute retrieval API.
func Setup(app *fiber.App, sc *svc.ServiceContext) {
	app.Use(middleware.Recover())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "app": sc.Config.App.Name})
	})

	statuteHandler := handler.NewStatuteHandler(sc)

	api := app.Group("/api")
	documents := api.Group("/documents")
	documents.Post("/index", statuteHandler.IndexDocument)
	documents.Post("/index_many", statuteHandler.IndexMany)

	api.Post("/retrieve", statuteHandler.Retrieve)
}
