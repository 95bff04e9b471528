// services/live_handlers.go
package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"derby-race-system/models"

	"github.com/gofiber/fiber/v2"
)

// InitLiveRace seeds the in-memory leaderboard from the settled roster.
func (s *LiveRaceService) InitLiveRace(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	state, err := s.Init(raceID)
	if err != nil {
		return rejectSettlementError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(state)
}

// StartLiveRace opens the tap window.
func (s *LiveRaceService) StartLiveRace(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	state, ok := s.Start(raceID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "live race not initialized"})
	}
	return c.JSON(state)
}

// RecordTapHandler counts one tap for the calling wallet.
func (s *LiveRaceService) RecordTapHandler(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	state, ok := s.RecordTap(raceID, wallet)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fmt.Sprintf("race %d not found, not started, or player not in race", raceID),
		})
	}
	return c.JSON(fiber.Map{"success": true, "race": state})
}

// GetLiveRaceState returns the current provisional leaderboard.
func (s *LiveRaceService) GetLiveRaceState(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	state, ok := s.State(raceID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "live race not found"})
	}
	return c.JSON(state)
}

// GetActiveLiveRaces lists live races still in progress.
func (s *LiveRaceService) GetActiveLiveRaces(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"race_ids": s.ActiveRaceIDs()})
}

// StreamLiveRace streams leaderboard snapshots over SSE at a fixed cadence
// until the race ends or the client disconnects.
func (s *LiveRaceService) StreamLiveRace(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}
	if _, ok := s.State(raceID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "live race not found"})
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	ctx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				state, ok := s.State(raceID)
				if !ok {
					return
				}

				payload, err := json.Marshal(state)
				if err != nil {
					log.Printf("SSE marshal error for race %d: %v", raceID, err)
					continue
				}
				fmt.Fprintf(w, "event: race\ndata: %s\n\n", payload)

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}
				if state.Status == models.RaceStateEnded {
					return
				}

			case <-ctx.Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
