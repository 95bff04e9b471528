package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"derby-race-system/services"
)

// ResultSubmitWorker bridges the disposable live tap counter and the
// settlement core: when a live race reaches its target, the worker extracts
// the winning team's tap counts and submits them through the same oracle
// gate an external oracle would use. The core never trusts the live numbers
// until they pass that gate.
type ResultSubmitWorker struct {
	Races         *services.RaceService
	Live          *services.LiveRaceService
	OracleAddress string
	Interval      time.Duration
}

func NewResultSubmitWorker(races *services.RaceService, live *services.LiveRaceService, oracleAddress string, interval time.Duration) *ResultSubmitWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ResultSubmitWorker{
		Races:         races,
		Live:          live,
		OracleAddress: oracleAddress,
		Interval:      interval,
	}
}

func (w *ResultSubmitWorker) Start(ctx context.Context) {
	log.Println("Starting result submission worker...")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Result submission worker stopped.")
			return
		case <-ticker.C:
			w.submitFinished()
		}
	}
}

func (w *ResultSubmitWorker) submitFinished() {
	for _, state := range w.Live.FinishedUnsubmitted() {
		winners, taps := winningRoster(state)
		if len(winners) == 0 {
			// Nobody on the winning team tapped; nothing to submit.
			w.Live.MarkSubmitted(state.RaceID)
			continue
		}

		err := w.Races.RecordResults(state.RaceID, w.OracleAddress, winners, taps)
		switch {
		case err == nil:
			w.Live.MarkSubmitted(state.RaceID)
			go w.Races.ArchiveSettlement(state.RaceID)
			log.Printf("✅ Submitted results for race %d (team %d, %d winner(s))", state.RaceID, state.WinningTeam, len(winners))
		case errors.Is(err, services.ErrRaceNotStarted):
			// Already ended on the ledger (e.g., the oracle submitted directly).
			w.Live.MarkSubmitted(state.RaceID)
		default:
			// Retry same race next tick.
			log.Printf("❌ Failed to submit results for race %d: %v", state.RaceID, err)
		}
	}
}

// winningRoster lists the winning team's players that actually tapped,
// parallel to their tap counts. Zero-tap teammates get no share.
func winningRoster(state *services.LiveRaceState) ([]string, []int64) {
	var winners []string
	var taps []int64
	for _, p := range state.Players {
		if p.Team == state.WinningTeam && p.Taps > 0 {
			winners = append(winners, p.Address)
			taps = append(taps, p.Taps)
		}
	}
	return winners, taps
}
