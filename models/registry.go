package models

import "time"

// RegistryState is the single factory row behind race minting. NextRaceID
// only advances inside the serialized mint transaction, which keeps race ids
// dense and assigned in creation order. OracleAddress is seeded once at first boot and never
// rotated in place.
type RegistryState struct {
	ID            int       `gorm:"primaryKey" json:"id"` // always 1
	NextRaceID    int64     `gorm:"not null;default:0" json:"next_race_id"`
	OracleAddress string    `gorm:"type:varchar(128);not null" json:"oracle_address"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
