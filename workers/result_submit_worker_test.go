package workers

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"derby-race-system/models"
	"derby-race-system/services"
)

const (
	workerOracle = "0xoracle"
	workerHost   = "0xhost"
	workerGuest  = "0xguest"
)

type nopPayer struct{}

func (nopPayer) Transfer(ctx context.Context, to string, amount int64, ref string) error {
	return nil
}

func newWorkerFixture(t *testing.T) (*ResultSubmitWorker, *services.RaceService, *services.LiveRaceService) {
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

	races := services.NewRaceService(db, nopPayer{})
	require.NoError(t, races.EnsureRegistry(workerOracle))
	live := services.NewLiveRaceService(races, 5)
	worker := NewResultSubmitWorker(races, live, workerOracle, time.Second)
	return worker, races, live
}

// startedRace builds a two-player race that is started on the ledger and has
// a running live counterpart.
func startedRace(t *testing.T, races *services.RaceService, live *services.LiveRaceService) int64 {
	t.Helper()

	race, err := races.Create(workerHost, "Worker Derby", 100, 100, "")
	require.NoError(t, err)
	_, err = races.Join(race.ID, workerGuest, 100, "")
	require.NoError(t, err)
	require.NoError(t, races.Start(race.ID, workerHost))

	_, err = live.Init(race.ID)
	require.NoError(t, err)
	_, ok := live.Start(race.ID)
	require.True(t, ok)
	return race.ID
}

func TestSubmitFinished_SettlesFinishedLiveRace(t *testing.T) {
	worker, races, live := newWorkerFixture(t)
	raceID := startedRace(t, races, live)

	// Guest (team 2) taps past the target.
	for i := 0; i < 5; i++ {
		_, ok := live.RecordTap(raceID, workerGuest)
		require.True(t, ok)
	}

	worker.submitFinished()

	details, err := races.Details(raceID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStateEnded, details.Status)
	assert.Equal(t, models.Team2, details.WinningTeam)
	assert.Equal(t, int64(5), details.Team2TotalTaps)

	guest, err := races.Participant(raceID, workerGuest)
	require.NoError(t, err)
	assert.Equal(t, int64(5), guest.TapCount)

	// Nothing left to submit, and a second pass is a no-op.
	assert.Empty(t, live.FinishedUnsubmitted())
	worker.submitFinished()
}

func TestSubmitFinished_SkipsRunningRaces(t *testing.T) {
	worker, races, live := newWorkerFixture(t)
	raceID := startedRace(t, races, live)

	_, ok := live.RecordTap(raceID, workerHost)
	require.True(t, ok)

	worker.submitFinished()

	details, err := races.Details(raceID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStateStarted, details.Status)
}

func TestSubmitFinished_AlreadyEndedOnLedger(t *testing.T) {
	worker, races, live := newWorkerFixture(t)
	raceID := startedRace(t, races, live)

	for i := 0; i < 5; i++ {
		_, ok := live.RecordTap(raceID, workerGuest)
		require.True(t, ok)
	}

	// The oracle settled directly before the worker's tick.
	require.NoError(t, races.RecordResults(raceID, workerOracle, []string{workerGuest}, []int64{5}))

	worker.submitFinished()
	assert.Empty(t, live.FinishedUnsubmitted())
}
