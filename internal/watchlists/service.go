// Package watchlists maintains named instrument lists and the background
// quote refresh that keeps them current.
package watchlists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ksred/desk-api/internal/broker"
	"github.com/ksred/desk-api/internal/contracts"
)

var ErrNotFound = errors.New("watch list not found")

// Service owns watch-list persistence and instrument resolution. Instruments
// are resolved against the live gateway at add time so the stored row pins a
// concrete con_id, not a symbol guess.
type Service struct {
	db      *gorm.DB
	gateway broker.Gateway
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(db *gorm.DB, gw broker.Gateway, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		gateway: gw,
		logger:  logger.With().Str("component", "watchlists").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a named list at the bottom of the ordering. Names are unique; a
// duplicate returns an error from the unique index.
func (s *Service) Create(name, description string) (*WatchList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("watch list name is required")
	}
	list := &WatchList{Name: name, Description: strings.TrimSpace(description)}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var maxPosition int
		if err := tx.Model(&WatchList{}).
			Select("coalesce(max(position), -1)").Scan(&maxPosition).Error; err != nil {
			return err
		}
		list.Position = maxPosition + 1
		return tx.Create(list).Error
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Update changes the list's name and/or description. Nil fields are left
// untouched.
func (s *Service) Update(id uint, name, description *string) (*WatchList, error) {
	list, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, errors.New("watch list name is required")
		}
		list.Name = trimmed
	}
	if description != nil {
		list.Description = strings.TrimSpace(*description)
	}
	if err := s.db.Save(list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Reorder rewrites list positions to match the given id order. Lists not
// named keep their position.
func (s *Service) Reorder(ids []uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for position, id := range ids {
			if err := tx.Model(&WatchList{}).Where("id = ?", id).
				Update("position", position).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) Get(id uint) (*WatchList, error) {
	var list WatchList
	if err := s.db.First(&list, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &list, nil
}

func (s *Service) List() ([]WatchList, error) {
	var lists []WatchList
	if err := s.db.Order("position asc, created_at desc").Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}

// Delete removes the list and its instruments.
func (s *Service) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("watch_list_id = ?", id).Delete(&WatchListInstrument{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Delete(&WatchList{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddInstrument resolves the request against the gateway and stores the
// resulting contract on the list. Adding the same con_id twice is rejected by
// the unique index.
func (s *Service) AddInstrument(ctx context.Context, listID uint, req contracts.SelectionRequest) (*WatchListInstrument, error) {
	if _, err := s.Get(listID); err != nil {
		return nil, err
	}

	contract, _, err := contracts.SelectFromGateway(ctx, s.gateway, req)
	if err != nil {
		return nil, err
	}

	instrument := instrumentFromContract(listID, contract)
	if err := s.db.Create(instrument).Error; err != nil {
		return nil, err
	}
	s.logger.Info().Uint("watch_list_id", listID).Int64("con_id", instrument.ConID).
		Str("display_name", instrument.DisplayName).Msg("Instrument added to watch list")
	return instrument, nil
}

// RemoveInstrument deletes one instrument row; false when it was not on the
// list.
func (s *Service) RemoveInstrument(listID, instrumentID uint) (bool, error) {
	result := s.db.Unscoped().
		Where("id = ? AND watch_list_id = ?", instrumentID, listID).
		Delete(&WatchListInstrument{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Instruments returns a list's rows, oldest first.
func (s *Service) Instruments(listID uint) ([]WatchListInstrument, error) {
	var items []WatchListInstrument
	if err := s.db.Where("watch_list_id = ?", listID).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// RefreshQuotes snapshots every instrument on the list and stores the quote.
// A quote failure for one instrument is logged and skipped; the refresh
// reports how many rows it updated.
func (s *Service) RefreshQuotes(ctx context.Context, listID uint) (int, error) {
	if _, err := s.Get(listID); err != nil {
		return 0, err
	}
	items, err := s.Instruments(listID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		ticker, err := s.gateway.Snapshot(ctx, contractFromInstrument(item))
		if err != nil {
			s.logger.Warn().Err(err).Int64("con_id", item.ConID).Msg("Quote refresh failed for instrument")
			continue
		}
		now := s.now()
		item.Bid = positivePtr(ticker.Bid)
		item.Ask = positivePtr(ticker.Ask)
		item.Last = positivePtr(ticker.Last)
		item.Close = positivePtr(ticker.Close)
		item.QuoteAt = &now
		if err := s.db.Save(item).Error; err != nil {
			return updated, fmt.Errorf("failed to store quote for con_id %d: %w", item.ConID, err)
		}
		updated++
	}
	return updated, nil
}

func instrumentFromContract(listID uint, c *broker.Contract) *WatchListInstrument {
	var strike *float64
	if c.Strike > 0 {
		v := c.Strike
		strike = &v
	}
	ref := contracts.ContractRef{
		ConID:          c.ConID,
		Symbol:         c.Symbol,
		SecType:        c.SecType,
		Exchange:       c.Exchange,
		Currency:       c.Currency,
		LocalSymbol:    c.LocalSymbol,
		TradingClass:   c.TradingClass,
		ContractMonth:  contracts.MonthFromExpiry(c.ContractExpiry),
		ContractExpiry: c.ContractExpiry,
		Multiplier:     c.Multiplier,
		Strike:         strike,
		Right:          c.Right,
	}
	return &WatchListInstrument{
		WatchListID:    listID,
		ConID:          c.ConID,
		Symbol:         c.Symbol,
		SecType:        c.SecType,
		Exchange:       c.Exchange,
		Currency:       c.Currency,
		LocalSymbol:    c.LocalSymbol,
		TradingClass:   c.TradingClass,
		ContractExpiry: c.ContractExpiry,
		Multiplier:     c.Multiplier,
		Strike:         strike,
		Right:          c.Right,
		DisplayName:    contracts.DisplayName(ref, contracts.DisplayOptions{}),
	}
}

func contractFromInstrument(item *WatchListInstrument) broker.Contract {
	var strike float64
	if item.Strike != nil {
		strike = *item.Strike
	}
	return broker.Contract{
		ConID:          item.ConID,
		Symbol:         item.Symbol,
		SecType:        item.SecType,
		Exchange:       item.Exchange,
		Currency:       item.Currency,
		LocalSymbol:    item.LocalSymbol,
		TradingClass:   item.TradingClass,
		ContractExpiry: item.ContractExpiry,
		Multiplier:     item.Multiplier,
		Strike:         strike,
		Right:          item.Right,
	}
}

func positivePtr(v float64) *float64 {
	if v > 0 {
		return &v
	}
	return nil
}
