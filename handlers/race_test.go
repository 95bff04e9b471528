package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"derby-race-system/models"
	"derby-race-system/services"
)

const (
	oracleWallet = "0xoracle"
	hostWallet   = "0xhost"
	guestWallet  = "0xguest"

	entryFee = int64(1_000_000)
)

type nopPayer struct{}

func (nopPayer) Transfer(ctx context.Context, to string, amount int64, ref string) error {
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *services.RaceService) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.RegistryState{},
		&models.Race{},
		&models.RaceParticipant{},
		&models.RaceEvent{},
		&models.WalletMirror{},
	))

	svc := services.NewRaceService(db, nopPayer{})
	require.NoError(t, svc.EnsureRegistry(oracleWallet))

	app := fiber.New()
	SetupRaceRoutes(app, svc)
	return app, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path, wallet string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if wallet != "" {
		req.Header.Set("X-Wallet-Address", wallet)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestCreateRaceEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/races", hostWallet, fiber.Map{
		"name":           "API Derby",
		"entry_fee":      entryFee,
		"payment_amount": entryFee,
		"payment_id":     "tx-0",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var race models.Race
	decodeBody(t, resp, &race)
	assert.Equal(t, int64(0), race.ID)
	assert.Equal(t, hostWallet, race.HostAddress)
	assert.Equal(t, models.RaceStateCreated, race.Status)
}

func TestCreateRaceEndpoint_RequiresWallet(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/races", "", fiber.Map{
		"name": "No Identity", "entry_fee": entryFee, "payment_amount": entryFee,
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJoinRaceEndpoint_WrongPayment(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/races", hostWallet, fiber.Map{
		"name": "Derby", "entry_fee": entryFee, "payment_amount": entryFee,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodPost, "/races/0/join", guestWallet, fiber.Map{
		"payment_amount": entryFee - 1,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodPost, "/races/0/join", guestWallet, fiber.Map{
		"payment_amount": entryFee,
	})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestSubmitResultsEndpoint_OracleOnly(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/races", hostWallet, fiber.Map{
		"name": "Derby", "entry_fee": entryFee, "payment_amount": entryFee,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp = doJSON(t, app, fiber.MethodPost, "/races/0/join", guestWallet, fiber.Map{
		"payment_amount": entryFee,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp = doJSON(t, app, fiber.MethodPost, "/races/0/start", hostWallet, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	results := fiber.Map{"winners": []string{hostWallet}, "tap_counts": []int64{42}}

	resp = doJSON(t, app, fiber.MethodPost, "/races/0/results", hostWallet, results)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodPost, "/races/0/results", oracleWallet, fiber.Map{
		"winners": []string{hostWallet}, "tap_counts": []int64{-1},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodPost, "/races/0/results", oracleWallet, results)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRaceReadEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/races", hostWallet, fiber.Map{
		"name": "Derby", "entry_fee": entryFee, "payment_amount": entryFee,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodGet, "/races/active", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var active struct {
		RaceIDs []int64 `json:"race_ids"`
	}
	decodeBody(t, resp, &active)
	assert.Equal(t, []int64{0}, active.RaceIDs)

	resp = doJSON(t, app, fiber.MethodGet, "/races/0", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var details models.Race
	decodeBody(t, resp, &details)
	assert.Equal(t, int64(1), details.TotalPlayers)
	assert.Equal(t, 0, details.StateCode)

	resp = doJSON(t, app, fiber.MethodGet, "/races/0/players", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var rosters struct {
		Team1 []models.RaceParticipant `json:"team1"`
		Team2 []models.RaceParticipant `json:"team2"`
	}
	decodeBody(t, resp, &rosters)
	require.Len(t, rosters.Team1, 1)
	assert.Equal(t, hostWallet, rosters.Team1[0].WalletAddress)
	assert.Empty(t, rosters.Team2)

	resp = doJSON(t, app, fiber.MethodGet, fmt.Sprintf("/races/0/players/%s", hostWallet), "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var info struct {
		Team       int   `json:"team"`
		Claimable  int64 `json:"claimable_amount"`
		HasClaimed bool  `json:"has_claimed"`
	}
	decodeBody(t, resp, &info)
	assert.Equal(t, models.Team1, info.Team)
	assert.Equal(t, int64(0), info.Claimable)
	assert.False(t, info.HasClaimed)

	resp = doJSON(t, app, fiber.MethodGet, "/races/7/players/0xnobody", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
