// Package preferences provides record-store operations for synced user
// preferences, one key/value row per preference.
package preferences

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

// Repository handles all user_preferences table operations.
type Repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db}
}

type payload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Set upserts a preference value.
func (r *Repository) Set(key, value string) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var pref entities.UserPreference
		err := tx.Where("key = ?", key).First(&pref).Error
		now := time.Now()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			pref = entities.UserPreference{Key: key, Value: value}
			pref.CreatedAt = now
			pref.Touch(now)
			return tx.Create(&pref).Error
		}
		if err != nil {
			return err
		}
		pref.Value = value
		pref.IsDeleted = false
		pref.Touch(now)
		return tx.Save(&pref).Error
	}, entities.UserPreference{}.TableName())
}

// Get returns the value for a key, or empty string if unset.
func (r *Repository) Get(key string) (string, error) {
	var pref entities.UserPreference
	err := r.db.DB.Where("key = ? AND is_deleted = ?", key, false).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pref.Value, nil
}

// Table implements syncengine.TableSyncer.
func (r *Repository) Table() string { return entities.UserPreference{}.TableName() }

func (r *Repository) CollectPending() ([]syncapi.Change, error) {
	var dirty []entities.UserPreference
	err := r.db.DB.Where("is_pending_sync = ?", true).Order("updated_at ASC").Find(&dirty).Error
	if err != nil {
		return nil, err
	}

	changes := make([]syncapi.Change, 0, len(dirty))
	for i := range dirty {
		fields, err := json.Marshal(payload{Key: dirty[i].Key, Value: dirty[i].Value})
		if err != nil {
			return nil, fmt.Errorf("serialize preference %d: %w", dirty[i].ID, err)
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
			var pref entities.UserPreference
			if err := tx.First(&pref, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			pref.MarkSynced(remoteID, collected[localID])
			if err := tx.Save(&pref).Error; err != nil {
				return err
			}
		}
		for _, localID := range resp.Acked {
			var pref entities.UserPreference
			if err := tx.First(&pref, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if pref.RemoteID == nil {
				return fmt.Errorf("preference %d acked without a remote id", localID)
			}
			cleared := pref.MarkSynced(*pref.RemoteID, collected[localID])
			if err := tx.Save(&pref).Error; err != nil {
				return err
			}
			if cleared && pref.IsDeleted {
				purgeable = append(purgeable, pref.ID)
			}
		}
		return nil
	}, entities.UserPreference{}.TableName())
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
			var pref entities.UserPreference
			err := tx.Where("remote_id = ?", rec.RemoteID).First(&pref).Error
			notFound := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !notFound {
				return err
			}

			if !notFound && pref.IsPendingSync {
				continue
			}

			if rec.IsDeleted {
				if !notFound {
					if err := tx.Delete(&entities.UserPreference{}, pref.ID).Error; err != nil {
						return err
					}
				}
				continue
			}

			var p payload
			if err := json.Unmarshal(rec.Fields, &p); err != nil {
				return fmt.Errorf("decode preference %d: %w", rec.RemoteID, err)
			}

			if notFound {
				remoteID := rec.RemoteID
				pref = entities.UserPreference{
					Key:   p.Key,
					Value: p.Value,
					SyncEnvelope: entities.SyncEnvelope{
						RemoteID:  &remoteID,
						CreatedAt: rec.UpdatedAt,
						UpdatedAt: rec.UpdatedAt,
					},
				}
				if err := tx.Create(&pref).Error; err != nil {
					return err
				}
				continue
			}

			pref.Key = p.Key
			pref.Value = p.Value
			if rec.UpdatedAt.After(pref.UpdatedAt) {
				pref.UpdatedAt = rec.UpdatedAt
			}
			if err := tx.Save(&pref).Error; err != nil {
				return err
			}
		}
		return nil
	}, entities.UserPreference{}.TableName())
}

// Purge hard-deletes server-acknowledged tombstones.
func (r *Repository) Purge(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		return tx.Where("id IN ? AND is_deleted = ?", ids, true).
			Delete(&entities.UserPreference{}).Error
	}, entities.UserPreference{}.TableName())
}
