package models

import "time"

// Race event types. These notifications are the settlement core's only
// outbound interface; indexers and the UI treat them as the source of truth
// for who joined, who won and what was paid.
const (
	EventRaceCreated     = "race_created"
	EventPlayerJoined    = "player_joined"
	EventRaceStarted     = "race_started"
	EventRaceEnded       = "race_ended"
	EventWinningsClaimed = "winnings_claimed"
)

// RaceEvent is one append-only notification row, written in the same
// transaction as the state transition it describes.
type RaceEvent struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	RaceID        int64     `gorm:"not null;index" json:"race_id"`
	Type          string    `gorm:"type:varchar(32);not null;index" json:"type"`
	PlayerAddress string    `gorm:"type:varchar(128)" json:"player_address,omitempty"`
	Team          int       `json:"team,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Payload       string    `json:"payload,omitempty"` // e.g., {"team1_total_taps": 250, "team2_total_taps": 0}
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}
