// Package goals provides record-store operations for yearly reading goals.
package goals

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sabristratos/athneaeum-sub004/internal/database"
	"github.com/sabristratos/athneaeum-sub004/internal/entities"
	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

// Repository handles all reading_goals table operations.
type Repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db}
}

type payload struct {
	Year        int `json:"year"`
	TargetBooks int `json:"target_books"`
	TargetPages int `json:"target_pages,omitempty"`
}

// Set creates or updates the goal for a year.
func (r *Repository) Set(year, targetBooks, targetPages int) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var goal entities.ReadingGoal
		err := tx.Where("year = ?", year).First(&goal).Error
		now := time.Now()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			goal = entities.ReadingGoal{
				Year:        year,
				TargetBooks: targetBooks,
				TargetPages: targetPages,
			}
			goal.CreatedAt = now
			goal.Touch(now)
			return tx.Create(&goal).Error
		}
		if err != nil {
			return err
		}
		goal.TargetBooks = targetBooks
		goal.TargetPages = targetPages
		goal.IsDeleted = false
		goal.Touch(now)
		return tx.Save(&goal).Error
	}, entities.ReadingGoal{}.TableName())
}

// Get returns the visible goal for a year.
func (r *Repository) Get(year int) (*entities.ReadingGoal, error) {
	var goal entities.ReadingGoal
	err := r.db.DB.Where("year = ? AND is_deleted = ?", year, false).First(&goal).Error
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// SoftDelete tombstones a goal until the server acknowledges it.
func (r *Repository) SoftDelete(id uint) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var goal entities.ReadingGoal
		if err := tx.First(&goal, id).Error; err != nil {
			return err
		}
		goal.Tombstone(time.Now())
		return tx.Save(&goal).Error
	}, entities.ReadingGoal{}.TableName())
}

// Table implements syncengine.TableSyncer.
func (r *Repository) Table() string { return entities.ReadingGoal{}.TableName() }

func (r *Repository) CollectPending() ([]syncapi.Change, error) {
	var dirty []entities.ReadingGoal
	err := r.db.DB.Where("is_pending_sync = ?", true).Order("updated_at ASC").Find(&dirty).Error
	if err != nil {
		return nil, err
	}

	changes := make([]syncapi.Change, 0, len(dirty))
	for i := range dirty {
		fields, err := json.Marshal(payload{
			Year:        dirty[i].Year,
			TargetBooks: dirty[i].TargetBooks,
			TargetPages: dirty[i].TargetPages,
		})
		if err != nil {
			return nil, fmt.Errorf("serialize goal %d: %w", dirty[i].ID, err)
		}
		changes = append(changes, syncapi.Change{
			LocalID:   dirty[i].ID,
			IsDeleted: dirty[i].IsDeleted,
			UpdatedAt: dirty[i].UpdatedAt,
			Fields:    fields,
		})
	}
	return changes, nil
}

func (r *Repository) MarkSynced(changes []syncapi.Change, resp *syncapi.PushResponse) (purgeable []uint, err error) {
	collected := syncapi.CollectedTimes(changes)
	err = r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for localID, remoteID := range resp.Assigned {
			var goal entities.ReadingGoal
			if err := tx.First(&goal, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			goal.MarkSynced(remoteID, collected[localID])
			if err := tx.Save(&goal).Error; err != nil {
				return err
			}
		}
		for _, localID := range resp.Acked {
			var goal entities.ReadingGoal
			if err := tx.First(&goal, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if goal.RemoteID == nil {
				return fmt.Errorf("goal %d acked without a remote id", localID)
			}
			cleared := goal.MarkSynced(*goal.RemoteID, collected[localID])
			if err := tx.Save(&goal).Error; err != nil {
				return err
			}
			if cleared && goal.IsDeleted {
				purgeable = append(purgeable, goal.ID)
			}
		}
		return nil
	}, entities.ReadingGoal{}.TableName())
	if err != nil {
		return nil, err
	}
	return purgeable, nil
}

func (r *Repository) ApplyRemote(records []syncapi.Record) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for _, rec := range records {
			var goal entities.ReadingGoal
			err := tx.Where("remote_id = ?", rec.RemoteID).First(&goal).Error
			notFound := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !notFound {
				return err
			}

			if !notFound && goal.IsPendingSync {
				continue
			}

			if rec.IsDeleted {
				if !notFound {
					if err := tx.Delete(&entities.ReadingGoal{}, goal.ID).Error; err != nil {
						return err
					}
				}
				continue
			}

			var p payload
			if err := json.Unmarshal(rec.Fields, &p); err != nil {
				return fmt.Errorf("decode goal %d: %w", rec.RemoteID, err)
			}

			if notFound {
				remoteID := rec.RemoteID
				goal = entities.ReadingGoal{
					Year:        p.Year,
					TargetBooks: p.TargetBooks,
					TargetPages: p.TargetPages,
					SyncEnvelope: entities.SyncEnvelope{
						RemoteID:  &remoteID,
						CreatedAt: rec.UpdatedAt,
						UpdatedAt: rec.UpdatedAt,
					},
				}
				if err := tx.Create(&goal).Error; err != nil {
					return err
				}
				continue
			}

			goal.Year = p.Year
			goal.TargetBooks = p.TargetBooks
			goal.TargetPages = p.TargetPages
			if rec.UpdatedAt.After(goal.UpdatedAt) {
				goal.UpdatedAt = rec.UpdatedAt
			}
			if err := tx.Save(&goal).Error; err != nil {
				return err
			}
		}
		return nil
	}, entities.ReadingGoal{}.TableName())
}

// Purge hard-deletes server-acknowledged tombstones.
func (r *Repository) Purge(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		return tx.Where("id IN ? AND is_deleted = ?", ids, true).
			Delete(&entities.ReadingGoal{}).Error
	}, entities.ReadingGoal{}.TableName())
}
