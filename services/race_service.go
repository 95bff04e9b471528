// services/race_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"derby-race-system/models"
	"derby-race-system/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// RaceService is the settlement core: the race registry (minting, catalogue)
// plus the per-race escrow ledger operations. Mutating operations on one race
// run under that race's lock and inside a single DB transaction, so each
// ledger behaves like a serialized state machine; reads only see committed
// snapshots.
type RaceService struct {
	DB    *gorm.DB
	Payer EscrowPayer

	mintMu    sync.Mutex // serializes minting so race ids stay dense
	raceLocks sync.Map   // race id -> *sync.Mutex
}

func NewRaceService(db *gorm.DB, payer EscrowPayer) *RaceService {
	return &RaceService{DB: db, Payer: payer}
}

// EnsureRegistry seeds the singleton factory row. The oracle identity is
// immutable after the first boot; a changed env var does not rotate it.
func (s *RaceService) EnsureRegistry(oracleAddress string) error {
	reg := models.RegistryState{ID: 1, OracleAddress: normalizeAddress(oracleAddress)}
	if err := s.DB.FirstOrCreate(&reg, "id = ?", 1).Error; err != nil {
		return fmt.Errorf("failed to seed registry state: %w", err)
	}
	if reg.OracleAddress != normalizeAddress(oracleAddress) {
		log.Printf("⚠️  ORACLE_ADDRESS differs from the seeded registry oracle (%s); keeping the seeded value", reg.OracleAddress)
	}
	return nil
}

// OracleAddress returns the trusted oracle identity from the registry row.
func (s *RaceService) OracleAddress() (string, error) {
	var reg models.RegistryState
	if err := s.DB.First(&reg, "id = ?", 1).Error; err != nil {
		return "", err
	}
	return reg.OracleAddress, nil
}

func (s *RaceService) lockRace(raceID int64) func() {
	v, _ := s.raceLocks.LoadOrStore(raceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// teamForJoinOrder maps a participant ordinal to a team. The host is ordinal
// 0 on team 1; later joiners alternate starting with team 2, which keeps the
// teams within one player of each other without explicit team selection.
func teamForJoinOrder(order int) int {
	if order%2 == 1 {
		return models.Team2
	}
	return models.Team1
}

// proportionalShare returns floor(pool * taps / total). The product can
// overflow int64 for wei-scale pools, so the math runs through big.Int.
// Division truncates toward zero; the rounding dust stays in escrow.
func proportionalShare(pool, taps, total int64) int64 {
	if total <= 0 || taps <= 0 {
		return 0
	}
	share := new(big.Int).Mul(big.NewInt(pool), big.NewInt(taps))
	share.Div(share, big.NewInt(total))
	return share.Int64()
}

// Create mints a new race ledger under the next dense id, with the caller as
// host auto-enrolled on team 1 and the host's stake opening the prize pool.
func (s *RaceService) Create(hostAddress, name string, entryFee, payment int64, paymentID string) (*models.Race, error) {
	if entryFee <= 0 {
		return nil, ErrInvalidEntryFee
	}
	if payment != entryFee {
		return nil, ErrInsufficientPayment
	}
	hostAddress = normalizeAddress(hostAddress)

	s.mintMu.Lock()
	defer s.mintMu.Unlock()

	var race *models.Race
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var reg models.RegistryState
		if err := tx.First(&reg, "id = ?", 1).Error; err != nil {
			return err
		}

		race = &models.Race{
			ID:          reg.NextRaceID,
			Name:        name,
			Slug:        slug.Make(name),
			HostAddress: hostAddress,
			EntryFee:    entryFee,
			PrizePool:   entryFee,
			Status:      models.RaceStateCreated,
		}
		if err := tx.Create(race).Error; err != nil {
			return err
		}

		host := &models.RaceParticipant{
			ID:            uuid.NewString(),
			RaceID:        race.ID,
			WalletAddress: hostAddress,
			Team:          teamForJoinOrder(0),
			JoinOrder:     0,
			PaymentID:     paymentID,
			PaymentAmount: payment,
		}
		if err := tx.Create(host).Error; err != nil {
			return err
		}

		events := []models.RaceEvent{
			{ID: uuid.NewString(), RaceID: race.ID, Type: models.EventRaceCreated, PlayerAddress: hostAddress, Amount: entryFee},
			{ID: uuid.NewString(), RaceID: race.ID, Type: models.EventPlayerJoined, PlayerAddress: hostAddress, Team: host.Team},
		}
		if err := tx.Create(&events).Error; err != nil {
			return err
		}

		reg.NextRaceID++
		return tx.Save(&reg).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🏁 Race %d created by %s (entry fee %d)", race.ID, hostAddress, entryFee)
	return race, nil
}

// Join enrolls a player with an exact stake while the race is still in the
// created state. The team follows from the current roster size, never from
// player choice.
func (s *RaceService) Join(raceID int64, wallet string, payment int64, paymentID string) (*models.RaceParticipant, error) {
	wallet = normalizeAddress(wallet)

	unlock := s.lockRace(raceID)
	defer unlock()

	var joined *models.RaceParticipant
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var race models.Race
		if err := tx.First(&race, "id = ?", raceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRaceNotFound
			}
			return err
		}
		if payment != race.EntryFee {
			return ErrInsufficientPayment
		}
		if race.Status != models.RaceStateCreated {
			return ErrRaceNotJoinable
		}

		var existing models.RaceParticipant
		err := tx.Where("race_id = ? AND wallet_address = ?", raceID, wallet).First(&existing).Error
		if err == nil {
			return ErrAlreadyJoined
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&models.RaceParticipant{}).Where("race_id = ?", raceID).Count(&count).Error; err != nil {
			return err
		}

		joined = &models.RaceParticipant{
			ID:            uuid.NewString(),
			RaceID:        raceID,
			WalletAddress: wallet,
			Team:          teamForJoinOrder(int(count)),
			JoinOrder:     int(count),
			PaymentID:     paymentID,
			PaymentAmount: payment,
		}
		if err := tx.Create(joined).Error; err != nil {
			return err
		}

		race.PrizePool += race.EntryFee
		if err := tx.Save(&race).Error; err != nil {
			return err
		}

		event := models.RaceEvent{
			ID: uuid.NewString(), RaceID: raceID, Type: models.EventPlayerJoined,
			PlayerAddress: wallet, Team: joined.Team,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("👤 Player %s joined race %d on team %d", wallet, raceID, joined.Team)
	return joined, nil
}

// Start moves a race to the started state. Only the stored host may start it,
// and only once both teams have at least one player.
func (s *RaceService) Start(raceID int64, caller string) error {
	caller = normalizeAddress(caller)

	unlock := s.lockRace(raceID)
	defer unlock()

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var race models.Race
		if err := tx.First(&race, "id = ?", raceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRaceNotFound
			}
			return err
		}
		if race.HostAddress != caller {
			return ErrUnauthorized
		}
		if race.Status != models.RaceStateCreated {
			return ErrRaceNotStartable
		}

		var team1, team2 int64
		if err := tx.Model(&models.RaceParticipant{}).Where("race_id = ? AND team = ?", raceID, models.Team1).Count(&team1).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.RaceParticipant{}).Where("race_id = ? AND team = ?", raceID, models.Team2).Count(&team2).Error; err != nil {
			return err
		}
		if team1 == 0 || team2 == 0 {
			return ErrNotEnoughPlayers
		}

		now := time.Now()
		race.Status = models.RaceStateStarted
		race.StartedAt = &now
		if err := tx.Save(&race).Error; err != nil {
			return err
		}

		event := models.RaceEvent{ID: uuid.NewString(), RaceID: raceID, Type: models.EventRaceStarted}
		return tx.Create(&event).Error
	})
	if err != nil {
		return err
	}

	log.Printf("🏁 Race %d started", raceID)
	return nil
}

// RecordResults is the oracle gate: the trusted oracle submits the winning
// roster with per-player tap counts. Winners must all sit on one team; their
// taps are stored verbatim and summed into the winning-team total. The race
// ends here and the result is frozen.
func (s *RaceService) RecordResults(raceID int64, caller string, winners []string, tapCounts []int64) error {
	caller = normalizeAddress(caller)

	unlock := s.lockRace(raceID)
	defer unlock()

	var ended *models.Race
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var reg models.RegistryState
		if err := tx.First(&reg, "id = ?", 1).Error; err != nil {
			return err
		}
		if caller != reg.OracleAddress {
			return ErrOnlyOracle
		}

		var race models.Race
		if err := tx.First(&race, "id = ?", raceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRaceNotFound
			}
			return err
		}
		if race.Status != models.RaceStateStarted {
			return ErrRaceNotStarted
		}
		if len(winners) == 0 || len(winners) != len(tapCounts) {
			return ErrInvalidArrayLength
		}

		var roster []models.RaceParticipant
		if err := tx.Where("race_id = ?", raceID).Find(&roster).Error; err != nil {
			return err
		}
		byWallet := make(map[string]*models.RaceParticipant, len(roster))
		for i := range roster {
			byWallet[roster[i].WalletAddress] = &roster[i]
		}

		winningTeam := models.TeamNone
		var totalTaps int64
		for i, w := range winners {
			p, ok := byWallet[normalizeAddress(w)]
			if !ok {
				return ErrInvalidTeam
			}
			if winningTeam == models.TeamNone {
				winningTeam = p.Team
			} else if p.Team != winningTeam {
				return ErrInvalidTeam
			}
			p.TapCount = tapCounts[i]
			totalTaps += tapCounts[i]
		}

		for _, w := range winners {
			p := byWallet[normalizeAddress(w)]
			if err := tx.Model(&models.RaceParticipant{}).Where("id = ?", p.ID).
				Update("tap_count", p.TapCount).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		race.Status = models.RaceStateEnded
		race.EndedAt = &now
		race.WinningTeam = winningTeam
		if winningTeam == models.Team1 {
			race.Team1TotalTaps = totalTaps
		} else {
			race.Team2TotalTaps = totalTaps
		}
		if err := tx.Save(&race).Error; err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]int64{
			"team1_total_taps": race.Team1TotalTaps,
			"team2_total_taps": race.Team2TotalTaps,
		})
		event := models.RaceEvent{
			ID: uuid.NewString(), RaceID: raceID, Type: models.EventRaceEnded,
			Team: winningTeam, Amount: totalTaps, Payload: string(payload),
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		ended = &race
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("🏆 Race %d ended: team %d wins with %d taps (pool %d)", raceID, ended.WinningTeam, ended.Team1TotalTaps+ended.Team2TotalTaps, ended.PrizePool)
	return nil
}

// ClaimableAmount is a pure read: a winner's proportional share of the pool,
// or 0 for non-winners, unfinished races and zero-total results.
func (s *RaceService) ClaimableAmount(raceID int64, wallet string) (int64, error) {
	var race models.Race
	if err := s.DB.First(&race, "id = ?", raceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRaceNotFound
		}
		return 0, err
	}

	var p models.RaceParticipant
	err := s.DB.Where("race_id = ? AND wallet_address = ?", raceID, normalizeAddress(wallet)).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	return claimableFor(&race, &p), nil
}

func claimableFor(race *models.Race, p *models.RaceParticipant) int64 {
	if race.Status != models.RaceStateEnded || p.Team != race.WinningTeam {
		return 0
	}
	total := race.Team1TotalTaps
	if race.WinningTeam == models.Team2 {
		total = race.Team2TotalTaps
	}
	return proportionalShare(race.PrizePool, p.TapCount, total)
}

// Claim pays a winner their share exactly once. The claimed flag and amount
// are committed before the escrow transfer runs; the transfer is the last
// step of the transaction, so a transfer failure rolls everything back and
// the claim can be retried.
func (s *RaceService) Claim(ctx context.Context, raceID int64, caller string) (int64, error) {
	caller = normalizeAddress(caller)

	unlock := s.lockRace(raceID)
	defer unlock()

	var amount int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var race models.Race
		if err := tx.First(&race, "id = ?", raceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRaceNotFound
			}
			return err
		}

		var p models.RaceParticipant
		err := tx.Where("race_id = ? AND wallet_address = ?", raceID, caller).First(&p).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAWinner
			}
			return err
		}
		if p.Claimed {
			return ErrAlreadyClaimed
		}

		amount = claimableFor(&race, &p)
		if amount == 0 {
			return ErrNotAWinner
		}

		// Commit the claim before any external effect.
		now := time.Now()
		p.Claimed = true
		p.ClaimedAmount = amount
		p.ClaimedAt = &now
		if err := tx.Save(&p).Error; err != nil {
			return err
		}

		race.TotalClaimed += amount
		if err := tx.Save(&race).Error; err != nil {
			return err
		}

		event := models.RaceEvent{
			ID: uuid.NewString(), RaceID: raceID, Type: models.EventWinningsClaimed,
			PlayerAddress: caller, Team: p.Team, Amount: amount,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		if wallet, found, werr := walletForOwner(tx, caller); werr == nil && (!found || !wallet.IsActive) {
			log.Printf("⚠️  No active payout wallet mirrored for %s; attempting transfer anyway", caller)
		}

		// External transfer last; any error aborts the whole transaction.
		if err := s.Payer.Transfer(ctx, caller, amount, fmt.Sprintf("race-%d-claim-%s", raceID, caller)); err != nil {
			return fmt.Errorf("claim payout for race %d: %w", raceID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("💸 Race %d: %s claimed %d", raceID, caller, amount)
	return amount, nil
}

func walletForOwner(tx *gorm.DB, owner string) (models.WalletMirror, bool, error) {
	var wallet models.WalletMirror
	if err := tx.Where("owner_address = ? AND is_active = ?", owner, true).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet, false, nil
		}
		return wallet, false, err
	}
	return wallet, true, nil
}

// ActiveRaceIDs lists ids of races that have not ended, in creation order.
func (s *RaceService) ActiveRaceIDs() ([]int64, error) {
	ids := []int64{}
	err := s.DB.Model(&models.Race{}).
		Where("status <> ?", models.RaceStateEnded).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Details loads one race with its participant count and numeric state code.
func (s *RaceService) Details(raceID int64) (*models.Race, error) {
	var race models.Race
	if err := s.DB.First(&race, "id = ?", raceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRaceNotFound
		}
		return nil, err
	}
	if err := s.DB.Model(&models.RaceParticipant{}).Where("race_id = ?", raceID).Count(&race.TotalPlayers).Error; err != nil {
		return nil, err
	}
	race.StateCode = models.StateCode(race.Status)
	return &race, nil
}

// TeamPlayers returns one team's roster in join order.
func (s *RaceService) TeamPlayers(raceID int64, team int) ([]models.RaceParticipant, error) {
	var players []models.RaceParticipant
	err := s.DB.Where("race_id = ? AND team = ?", raceID, team).
		Order("join_order ASC").
		Find(&players).Error
	return players, err
}

// Participant returns a single roster entry, or nil if the wallet never joined.
func (s *RaceService) Participant(raceID int64, wallet string) (*models.RaceParticipant, error) {
	var p models.RaceParticipant
	err := s.DB.Where("race_id = ? AND wallet_address = ?", raceID, normalizeAddress(wallet)).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ArchiveSettlement uploads an ended race's settlement summary to R2 for
// indexers. Best effort: failures are logged, never surfaced to callers.
func (s *RaceService) ArchiveSettlement(raceID int64) {
	if !utils.R2Enabled() {
		return
	}

	var race models.Race
	if err := s.DB.Preload("Participants").First(&race, "id = ?", raceID).Error; err != nil {
		log.Printf("❌ Settlement archive: failed to load race %d: %v", raceID, err)
		return
	}
	if race.Status != models.RaceStateEnded {
		return
	}

	key := fmt.Sprintf("settlements/race-%d.json", raceID)
	url, err := utils.UploadJSONToR2(key, race)
	if err != nil {
		log.Printf("❌ Settlement archive upload failed for race %d: %v", raceID, err)
		return
	}
	log.Printf("✅ Archived settlement for race %d at %s", raceID, url)
}
