package models

import "time"

// RaceParticipant is one roster entry: team assignment, stake payment
// metadata and the exactly-once payout bookkeeping for that player.
// Entries are created only while the race is in the created state and are
// never removed or reassigned.
type RaceParticipant struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	RaceID        int64  `gorm:"not null;index;uniqueIndex:idx_race_wallet" json:"race_id"`
	WalletAddress string `gorm:"type:varchar(128);not null;uniqueIndex:idx_race_wallet" json:"wallet_address"`
	Team          int    `gorm:"not null" json:"team"`
	JoinOrder     int    `gorm:"not null" json:"join_order"` // 0 = host

	// Payment metadata for the stake (e.g., tx hash from the gateway).
	PaymentID     string    `json:"payment_id,omitempty"`
	PaymentAmount int64     `json:"payment_amount"`
	JoinedAt      time.Time `json:"joined_at" gorm:"autoCreateTime"`

	// TapCount is the oracle-reported contribution; only set for members of
	// the winning team, only once, by the result submission.
	TapCount int64 `json:"tap_count" gorm:"default:0"`

	// Claimed gates re-entry: set true before the escrow transfer runs so a
	// failed transfer rolls the flag back with the rest of the transaction.
	Claimed       bool       `json:"claimed" gorm:"default:false"`
	ClaimedAmount int64      `json:"claimed_amount" gorm:"default:0"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
}
