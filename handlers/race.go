package handlers

import (
	"derby-race-system/middleware"
	"derby-race-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRaceRoutes(app *fiber.App, raceService *services.RaceService) {
	// 🔓 Public read projections (catalogue, rosters, events)
	app.Get("/races", raceService.GetAllRaces)
	app.Get("/races/active", raceService.GetActiveRaces)
	app.Get("/races/:id", raceService.GetRaceDetails)
	app.Get("/races/:id/players", raceService.GetRacePlayers)
	app.Get("/races/:id/players/:address", raceService.GetPlayerInfo)
	app.Get("/races/:id/events", raceService.GetRaceEvents)

	// 🔐 Mutations require a wallet identity from the gateway
	secured := app.Group("/", middleware.WalletContextMiddleware())
	secured.Post("/races", raceService.CreateRace)
	secured.Post("/races/:id/join", raceService.JoinRace)
	secured.Post("/races/:id/start", raceService.StartRace)
	secured.Post("/races/:id/claim", raceService.ClaimWinnings)

	// Oracle gate: the service rejects any wallet but the registry oracle
	secured.Post("/races/:id/results", raceService.SubmitResults)
}
