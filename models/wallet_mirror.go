// models/wallet_mirror.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// WalletMirror mirrors payout wallet data from the custody service.
// Claims look up the claimant's active wallet here before the escrow
// transfer is attempted; the custody service remains the source of truth.
// Table name: wallet_mirror
type WalletMirror struct {
	ID                 string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	OwnerAddress       string    `gorm:"type:varchar(128);not null;index" json:"owner_address"` // player wallet identity
	Chain              string    `gorm:"type:varchar(64);not null;index" json:"chain"`
	Token              string    `gorm:"type:varchar(64);not null" json:"token"`
	Address            string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"` // custody payout address, primary lookup key
	IsTreasury         bool      `gorm:"not null" json:"is_treasury"`
	IsActive           bool      `gorm:"not null" json:"is_active"`
	LastBalanceCheckAt time.Time `gorm:"not null" json:"last_balance_check_at"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (WalletMirror) TableName() string { return "wallet_mirror" }
