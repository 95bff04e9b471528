// services/race_handlers.go
package services

import (
	"errors"
	"log"
	"strconv"

	"derby-race-system/models"

	"github.com/gofiber/fiber/v2"
)

// settlementErrorStatus maps the rejection errors to HTTP codes: validation
// 400, not-found 404, authorization 403, state conflicts 409.
func settlementErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidEntryFee),
		errors.Is(err, ErrInsufficientPayment),
		errors.Is(err, ErrInvalidArrayLength):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrRaceNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrOnlyOracle):
		return fiber.StatusForbidden
	case errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrRaceNotJoinable),
		errors.Is(err, ErrRaceNotStartable),
		errors.Is(err, ErrRaceNotStarted),
		errors.Is(err, ErrNotEnoughPlayers),
		errors.Is(err, ErrInvalidTeam),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrNotAWinner):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func rejectSettlementError(c *fiber.Ctx, err error) error {
	status := settlementErrorStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ Settlement error on %s: %v", c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func raceIDParam(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

// CreateRace mints a race. Caller is the host; the attached payment must
// equal the entry fee exactly.
func (s *RaceService) CreateRace(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)

	var req struct {
		Name          string `json:"name"`
		EntryFee      int64  `json:"entry_fee"`
		PaymentAmount int64  `json:"payment_amount"`
		PaymentID     string `json:"payment_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	race, err := s.Create(wallet, req.Name, req.EntryFee, req.PaymentAmount, req.PaymentID)
	if err != nil {
		return rejectSettlementError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(race)
}

// JoinRace enrolls the caller in an open race.
func (s *RaceService) JoinRace(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	var req struct {
		PaymentAmount int64  `json:"payment_amount"`
		PaymentID     string `json:"payment_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	joined, err := s.Join(raceID, wallet, req.PaymentAmount, req.PaymentID)
	if err != nil {
		return rejectSettlementError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(joined)
}

// StartRace moves the caller's race to the started state (host only).
func (s *RaceService) StartRace(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	if err := s.Start(raceID, wallet); err != nil {
		return rejectSettlementError(c, err)
	}
	return c.JSON(fiber.Map{"message": "race started", "race_id": raceID})
}

// SubmitResults records final results through the oracle gate and archives
// the settlement summary in the background.
func (s *RaceService) SubmitResults(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	var req struct {
		Winners   []string `json:"winners"`
		TapCounts []int64  `json:"tap_counts"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	for _, taps := range req.TapCounts {
		if taps < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tap counts must be non-negative"})
		}
	}

	if err := s.RecordResults(raceID, wallet, req.Winners, req.TapCounts); err != nil {
		return rejectSettlementError(c, err)
	}

	go s.ArchiveSettlement(raceID)

	return c.JSON(fiber.Map{"message": "results recorded", "race_id": raceID})
}

// ClaimWinnings pays the caller's share exactly once.
func (s *RaceService) ClaimWinnings(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	amount, err := s.Claim(c.Context(), raceID, wallet)
	if err != nil {
		return rejectSettlementError(c, err)
	}
	return c.JSON(fiber.Map{"message": "winnings claimed", "race_id": raceID, "amount": amount})
}

// GetActiveRaces lists ids of races that have not ended, oldest first.
func (s *RaceService) GetActiveRaces(c *fiber.Ctx) error {
	ids, err := s.ActiveRaceIDs()
	if err != nil {
		log.Printf("ERROR fetching active races: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch active races"})
	}
	return c.JSON(fiber.Map{"race_ids": ids})
}

// GetAllRaces returns every race, newest first, with participant counts.
func (s *RaceService) GetAllRaces(c *fiber.Ctx) error {
	var races []models.Race
	if err := s.DB.Order("id DESC").Find(&races).Error; err != nil {
		log.Printf("ERROR fetching races: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch races"})
	}
	for i := range races {
		races[i].StateCode = models.StateCode(races[i].Status)
	}
	return c.JSON(races)
}

// GetRaceDetails is the registry projection: host, fee, state, player count
// and prize pool for one race.
func (s *RaceService) GetRaceDetails(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}

	race, err := s.Details(raceID)
	if err != nil {
		return rejectSettlementError(c, err)
	}
	return c.JSON(race)
}

// GetRacePlayers returns both rosters in join order.
func (s *RaceService) GetRacePlayers(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}
	if _, err := s.Details(raceID); err != nil {
		return rejectSettlementError(c, err)
	}

	team1, err := s.TeamPlayers(raceID, models.Team1)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch players"})
	}
	team2, err := s.TeamPlayers(raceID, models.Team2)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch players"})
	}
	return c.JSON(fiber.Map{"team1": team1, "team2": team2})
}

// GetPlayerInfo projects one participant: team, taps, claim state and
// current claimable amount.
func (s *RaceService) GetPlayerInfo(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}
	address := c.Params("address")

	if _, err := s.Details(raceID); err != nil {
		return rejectSettlementError(c, err)
	}

	p, err := s.Participant(raceID, address)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch player"})
	}
	if p == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "player not in race"})
	}

	claimable, err := s.ClaimableAmount(raceID, address)
	if err != nil {
		return rejectSettlementError(c, err)
	}

	return c.JSON(fiber.Map{
		"address":          p.WalletAddress,
		"team":             p.Team,
		"taps":             p.TapCount,
		"claimable_amount": claimable,
		"has_claimed":      p.Claimed,
		"claimed_amount":   p.ClaimedAmount,
	})
}

// GetRaceEvents returns the notification log for one race, oldest first.
func (s *RaceService) GetRaceEvents(c *fiber.Ctx) error {
	raceID, err := raceIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid race id"})
	}
	if _, err := s.Details(raceID); err != nil {
		return rejectSettlementError(c, err)
	}

	var events []models.RaceEvent
	if err := s.DB.Where("race_id = ?", raceID).Order("created_at ASC").Find(&events).Error; err != nil {
		log.Printf("ERROR fetching race events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch events"})
	}
	return c.JSON(events)
}
