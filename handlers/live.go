package handlers

import (
	"derby-race-system/middleware"
	"derby-race-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLiveRoutes(app *fiber.App, liveService *services.LiveRaceService) {
	// 🔓 Public provisional leaderboard reads
	app.Get("/live/races", liveService.GetActiveLiveRaces)
	app.Get("/live/races/:id", liveService.GetLiveRaceState)

	// SSE stream authenticates via query params; EventSource cannot set headers
	app.Get("/live/races/:id/stream", middleware.SSEAuthMiddleware(), liveService.StreamLiveRace)

	// 🔐 Tap ingestion and lifecycle need a wallet identity
	secured := app.Group("/live", middleware.WalletContextMiddleware())
	secured.Post("/races/:id/init", liveService.InitLiveRace)
	secured.Post("/races/:id/start", liveService.StartLiveRace)
	secured.Post("/races/:id/tap", liveService.RecordTapHandler)
}
