package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derby-race-system/models"
)

func newTestLiveService(t *testing.T) (*LiveRaceService, *RaceService) {
	t.Helper()

	races, _ := newTestRaceService(t)
	return NewLiveRaceService(races, 10), races
}

func TestLiveInit_SeedsRosterFromLedger(t *testing.T) {
	live, races := newTestLiveService(t)
	race := createFullRace(t, races)

	state, err := live.Init(race.ID)
	require.NoError(t, err)
	assert.Equal(t, race.ID, state.RaceID)
	assert.Equal(t, models.RaceStateCreated, state.Status)
	assert.Len(t, state.Players, 4)
	assert.Equal(t, models.Team1, state.Players[testHost].Team)
	assert.Equal(t, models.Team2, state.Players[testP1].Team)
	assert.Equal(t, int64(10), state.TargetTaps)

	_, err = live.Init(999)
	assert.ErrorIs(t, err, ErrRaceNotFound)
}

func TestLiveInit_Idempotent(t *testing.T) {
	live, races := newTestLiveService(t)
	race := createFullRace(t, races)

	_, err := live.Init(race.ID)
	require.NoError(t, err)

	started, ok := live.Start(race.ID)
	require.True(t, ok)
	assert.Equal(t, models.RaceStateStarted, started.Status)

	_, ok = live.RecordTap(race.ID, testHost)
	require.True(t, ok)

	// Re-init must not reset the counters.
	state, err := live.Init(race.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStateStarted, state.Status)
	assert.Equal(t, int64(1), state.Team1Taps)
}

func TestLiveRecordTap(t *testing.T) {
	live, races := newTestLiveService(t)
	race := createFullRace(t, races)

	_, err := live.Init(race.ID)
	require.NoError(t, err)

	// Taps are ignored until the live race starts.
	_, ok := live.RecordTap(race.ID, testHost)
	assert.False(t, ok)

	_, ok = live.Start(race.ID)
	require.True(t, ok)

	state, ok := live.RecordTap(race.ID, testHost)
	require.True(t, ok)
	assert.Equal(t, int64(1), state.Team1Taps)
	assert.Equal(t, int64(1), state.Players[testHost].Taps)

	state, ok = live.RecordTap(race.ID, testP1)
	require.True(t, ok)
	assert.Equal(t, int64(1), state.Team2Taps)

	// Unknown races and unknown players are dropped.
	_, ok = live.RecordTap(999, testHost)
	assert.False(t, ok)
	_, ok = live.RecordTap(race.ID, "0xstranger")
	assert.False(t, ok)
}

func TestLiveRace_EndsAtTargetTaps(t *testing.T) {
	live, races := newTestLiveService(t)
	race := createFullRace(t, races)

	_, err := live.Init(race.ID)
	require.NoError(t, err)
	_, ok := live.Start(race.ID)
	require.True(t, ok)

	var state *LiveRaceState
	for i := 0; i < 10; i++ {
		state, ok = live.RecordTap(race.ID, testP1)
		require.True(t, ok)
	}
	assert.Equal(t, models.RaceStateEnded, state.Status)
	assert.Equal(t, models.Team2, state.WinningTeam)
	assert.NotNil(t, state.EndedAt)

	// No taps after the finish line.
	_, ok = live.RecordTap(race.ID, testHost)
	assert.False(t, ok)

	assert.NotContains(t, live.ActiveRaceIDs(), race.ID)
}

func TestLiveState_SnapshotIsolation(t *testing.T) {
	live, races := newTestLiveService(t)
	race := createFullRace(t, races)

	_, err := live.Init(race.ID)
	require.NoError(t, err)
	_, ok := live.Start(race.ID)
	require.True(t, ok)

	snap, ok := live.State(race.ID)
	require.True(t, ok)
	snap.Players[testHost].Taps = 9999
	snap.Team1Taps = 9999

	fresh, ok := live.State(race.ID)
	require.True(t, ok)
	assert.Equal(t, int64(0), fresh.Team1Taps)
	assert.Equal(t, int64(0), fresh.Players[testHost].Taps)
}

func TestLiveFinishedUnsubmitted(t *testing.T) {
	live, races := newTestLiveService(t)
	race := createFullRace(t, races)

	_, err := live.Init(race.ID)
	require.NoError(t, err)
	_, ok := live.Start(race.ID)
	require.True(t, ok)

	assert.Empty(t, live.FinishedUnsubmitted())

	for i := 0; i < 10; i++ {
		_, ok = live.RecordTap(race.ID, testP2)
		require.True(t, ok)
	}

	pending := live.FinishedUnsubmitted()
	require.Len(t, pending, 1)
	assert.Equal(t, race.ID, pending[0].RaceID)
	assert.Equal(t, models.Team1, pending[0].WinningTeam)

	live.MarkSubmitted(race.ID)
	assert.Empty(t, live.FinishedUnsubmitted())
}

func TestLivePrune(t *testing.T) {
	live, races := newTestLiveService(t)
	race := createFullRace(t, races)

	_, err := live.Init(race.ID)
	require.NoError(t, err)

	// Fresh and unsubmitted: kept.
	assert.Equal(t, 0, live.Prune(time.Hour))
	_, ok := live.State(race.ID)
	assert.True(t, ok)

	// Submitted: dropped regardless of age.
	live.MarkSubmitted(race.ID)
	assert.Equal(t, 1, live.Prune(time.Hour))
	_, ok = live.State(race.ID)
	assert.False(t, ok)
}
