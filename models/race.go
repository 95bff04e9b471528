package models

import (
	"time"
)

// Race lifecycle states. StateCode maps them to the numeric codes used by
// the on-chain enum so indexers reading both surfaces agree.
const (
	RaceStateCreated = "created"
	RaceStateStarted = "started"
	RaceStateEnded   = "ended"
)

// Team identifiers. The host always races for team 1; joiners alternate.
const (
	TeamNone = 0
	Team1    = 1
	Team2    = 2
)

// StateCode returns the numeric lifecycle code (0=created, 1=started, 2=ended).
func StateCode(state string) int {
	switch state {
	case RaceStateCreated:
		return 0
	case RaceStateStarted:
		return 1
	case RaceStateEnded:
		return 2
	}
	return -1
}

// Race is the per-race escrow ledger: it owns the pooled stakes, the team
// roster (via RaceParticipant), the lifecycle state and the recorded result.
// Rows are never deleted; an ended race with everything claimed is inert.
type Race struct {
	ID          int64  `json:"id" gorm:"primaryKey;autoIncrement:false"` // dense, assigned by the registry in creation order
	Name        string `json:"name"`
	Slug        string `json:"slug" gorm:"index"`
	HostAddress string `json:"host_address" gorm:"type:varchar(128);not null;index"`
	EntryFee    int64  `json:"entry_fee" gorm:"not null"` // smallest token unit, fixed stake per participant
	PrizePool   int64  `json:"prize_pool" gorm:"not null;default:0"`
	Status      string `json:"status" gorm:"type:varchar(16);not null;default:'created';index"`

	// Result fields, written exactly once by the oracle submission.
	WinningTeam    int   `json:"winning_team" gorm:"default:0"`
	Team1TotalTaps int64 `json:"team1_total_taps" gorm:"default:0"`
	Team2TotalTaps int64 `json:"team2_total_taps" gorm:"default:0"`

	// TotalClaimed tracks what has left the pool; PrizePool - TotalClaimed is
	// remaining escrow plus rounding dust, which is never swept.
	TotalClaimed int64 `json:"total_claimed" gorm:"default:0"`

	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Relationships
	Participants []RaceParticipant `json:"participants,omitempty" gorm:"foreignKey:RaceID"`

	// Calculated fields (not stored in DB)
	TotalPlayers int64 `json:"total_players,omitempty" gorm:"-"`
	StateCode    int   `json:"state_code" gorm:"-"`
}
