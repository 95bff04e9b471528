// services/live_race_service.go
package services

import (
	"log"
	"sync"
	"time"

	"derby-race-system/models"
)

// DefaultTargetTaps ends a live race after roughly three laps.
const DefaultTargetTaps = 3000

// LivePlayer is one racer's provisional tap count.
type LivePlayer struct {
	Address string `json:"address"`
	Team    int    `json:"team"`
	Taps    int64  `json:"taps"`
}

// LiveRaceState is the disposable in-memory leaderboard for one race. It is
// best effort only: nothing here is authoritative until the numbers pass
// through the oracle's result submission.
type LiveRaceState struct {
	RaceID      int64                  `json:"race_id"`
	Status      string                 `json:"status"`
	Team1Taps   int64                  `json:"team1_taps"`
	Team2Taps   int64                  `json:"team2_taps"`
	Players     map[string]*LivePlayer `json:"players"`
	WinningTeam int                    `json:"winning_team"`
	TargetTaps  int64                  `json:"target_taps"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	EndedAt     *time.Time             `json:"ended_at,omitempty"`
	Submitted   bool                   `json:"submitted"`

	updatedAt time.Time
}

// LiveRaceService keeps the per-race tap counters behind one RWMutex. Taps
// arrive at UI speed, so everything stays in memory; losing this state only
// costs the provisional leaderboard, never funds.
type LiveRaceService struct {
	mu         sync.RWMutex
	races      map[int64]*LiveRaceState
	targetTaps int64

	Races *RaceService
}

func NewLiveRaceService(races *RaceService, targetTaps int64) *LiveRaceService {
	if targetTaps <= 0 {
		targetTaps = DefaultTargetTaps
	}
	return &LiveRaceService{
		races:      make(map[int64]*LiveRaceState),
		targetTaps: targetTaps,
		Races:      races,
	}
}

// Init creates the live state for a race, seeding players from the settled
// roster. Idempotent: re-initializing an existing race returns it unchanged.
func (s *LiveRaceService) Init(raceID int64) (*LiveRaceState, error) {
	team1, err := s.Races.TeamPlayers(raceID, models.Team1)
	if err != nil {
		return nil, err
	}
	team2, err := s.Races.TeamPlayers(raceID, models.Team2)
	if err != nil {
		return nil, err
	}
	if len(team1)+len(team2) == 0 {
		return nil, ErrRaceNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.races[raceID]; ok {
		log.Printf("♻️  Live race %d already initialized, reusing", raceID)
		return snapshotLocked(existing), nil
	}

	state := &LiveRaceState{
		RaceID:     raceID,
		Status:     models.RaceStateCreated,
		Players:    make(map[string]*LivePlayer),
		TargetTaps: s.targetTaps,
		updatedAt:  time.Now(),
	}
	for _, p := range append(team1, team2...) {
		state.Players[p.WalletAddress] = &LivePlayer{Address: p.WalletAddress, Team: p.Team}
	}
	s.races[raceID] = state

	log.Printf("🆕 Live race %d initialized with %d players", raceID, len(state.Players))
	return snapshotLocked(state), nil
}

// Start flips the live race into tap-accepting mode.
func (s *LiveRaceService) Start(raceID int64) (*LiveRaceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.races[raceID]
	if !ok {
		return nil, false
	}
	if state.Status == models.RaceStateCreated {
		now := time.Now()
		state.Status = models.RaceStateStarted
		state.StartedAt = &now
		state.updatedAt = now
	}
	return snapshotLocked(state), true
}

// RecordTap counts one tap for a player and checks the win condition: the
// first team to reach the target ends the live race.
func (s *LiveRaceService) RecordTap(raceID int64, playerAddress string) (*LiveRaceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.races[raceID]
	if !ok || state.Status != models.RaceStateStarted {
		return nil, false
	}
	player, ok := state.Players[normalizeAddress(playerAddress)]
	if !ok {
		return nil, false
	}

	player.Taps++
	switch player.Team {
	case models.Team1:
		state.Team1Taps++
	case models.Team2:
		state.Team2Taps++
	}
	state.updatedAt = time.Now()

	if state.Team1Taps >= state.TargetTaps {
		finishLocked(state, models.Team1)
	} else if state.Team2Taps >= state.TargetTaps {
		finishLocked(state, models.Team2)
	}

	return snapshotLocked(state), true
}

func finishLocked(state *LiveRaceState, team int) {
	now := time.Now()
	state.Status = models.RaceStateEnded
	state.WinningTeam = team
	state.EndedAt = &now
	log.Printf("🏆 Live race %d reached the target: team %d wins", state.RaceID, team)
}

// State returns a consistent snapshot of one live race.
func (s *LiveRaceService) State(raceID int64) (*LiveRaceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.races[raceID]
	if !ok {
		return nil, false
	}
	return snapshotLocked(state), true
}

// ActiveRaceIDs lists live races that have not ended.
func (s *LiveRaceService) ActiveRaceIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []int64{}
	for id, state := range s.races {
		if state.Status != models.RaceStateEnded {
			ids = append(ids, id)
		}
	}
	return ids
}

// FinishedUnsubmitted returns snapshots of live races whose result still has
// to go through the oracle gate.
func (s *LiveRaceService) FinishedUnsubmitted() []*LiveRaceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*LiveRaceState
	for _, state := range s.races {
		if state.Status == models.RaceStateEnded && !state.Submitted {
			out = append(out, snapshotLocked(state))
		}
	}
	return out
}

// MarkSubmitted records that the oracle accepted this race's result.
func (s *LiveRaceService) MarkSubmitted(raceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.races[raceID]; ok {
		state.Submitted = true
		state.updatedAt = time.Now()
	}
}

// Prune drops submitted and stale live states. Returns how many were removed.
func (s *LiveRaceService) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, state := range s.races {
		if state.Submitted || state.updatedAt.Before(cutoff) {
			delete(s.races, id)
			removed++
		}
	}
	return removed
}

// snapshotLocked deep-copies a state so readers never observe mid-mutation
// data. Callers must hold at least the read lock.
func snapshotLocked(state *LiveRaceState) *LiveRaceState {
	copied := *state
	copied.Players = make(map[string]*LivePlayer, len(state.Players))
	for addr, p := range state.Players {
		player := *p
		copied.Players[addr] = &player
	}
	return &copied
}
