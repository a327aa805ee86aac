// Package tags provides record-store operations for user tags.
package tags

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

// Repository handles all tags table operations.
type Repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db}
}

type payload struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// GetOrCreate returns the visible tag with the given name, creating it dirty
// if it does not exist yet.
func (r *Repository) GetOrCreate(name string) (*entities.Tag, error) {
	var tag entities.Tag
	err := r.db.DB.Where("name = ? AND is_deleted = ?", name, false).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tag = entities.Tag{Name: name}
	err = r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		now := time.Now()
		tag.CreatedAt = now
		tag.Touch(now)
		return tx.Create(&tag).Error
	}, entities.Tag{}.TableName())
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// SetColor updates a tag's display color.
func (r *Repository) SetColor(id uint, color string) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var tag entities.Tag
		if err := tx.First(&tag, id).Error; err != nil {
			return err
		}
		tag.Color = color
		tag.Touch(time.Now())
		return tx.Save(&tag).Error
	}, entities.Tag{}.TableName())
}

// SoftDelete tombstones a tag until the server acknowledges it.
func (r *Repository) SoftDelete(id uint) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var tag entities.Tag
		if err := tx.First(&tag, id).Error; err != nil {
			return err
		}
		tag.Tombstone(time.Now())
		return tx.Save(&tag).Error
	}, entities.Tag{}.TableName())
}

// List returns all visible tags.
func (r *Repository) List() ([]entities.Tag, error) {
	var list []entities.Tag
	err := r.db.DB.Where("is_deleted = ?", false).Order("name ASC").Find(&list).Error
	return list, err
}

// Table implements syncengine.TableSyncer.
func (r *Repository) Table() string { return entities.Tag{}.TableName() }

func (r *Repository) CollectPending() ([]syncapi.Change, error) {
	var dirty []entities.Tag
	err := r.db.DB.Where("is_pending_sync = ?", true).Order("updated_at ASC").Find(&dirty).Error
	if err != nil {
		return nil, err
	}

	changes := make([]syncapi.Change, 0, len(dirty))
	for i := range dirty {
		fields, err := json.Marshal(payload{Name: dirty[i].Name, Color: dirty[i].Color})
		if err != nil {
			return nil, fmt.Errorf("serialize tag %d: %w", dirty[i].ID, err)
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
			var tag entities.Tag
			if err := tx.First(&tag, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			tag.MarkSynced(remoteID, collected[localID])
			if err := tx.Save(&tag).Error; err != nil {
				return err
			}
		}
		for _, localID := range resp.Acked {
			var tag entities.Tag
			if err := tx.First(&tag, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if tag.RemoteID == nil {
				return fmt.Errorf("tag %d acked without a remote id", localID)
			}
			cleared := tag.MarkSynced(*tag.RemoteID, collected[localID])
			if err := tx.Save(&tag).Error; err != nil {
				return err
			}
			if cleared && tag.IsDeleted {
				purgeable = append(purgeable, tag.ID)
			}
		}
		return nil
	}, entities.Tag{}.TableName())
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
			var tag entities.Tag
			err := tx.Where("remote_id = ?", rec.RemoteID).First(&tag).Error
			notFound := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !notFound {
				return err
			}

			if !notFound && tag.IsPendingSync {
				continue
			}

			if rec.IsDeleted {
				if !notFound {
					if err := tx.Delete(&entities.Tag{}, tag.ID).Error; err != nil {
						return err
					}
				}
				continue
			}

			var p payload
			if err := json.Unmarshal(rec.Fields, &p); err != nil {
				return fmt.Errorf("decode tag %d: %w", rec.RemoteID, err)
			}

			if notFound {
				remoteID := rec.RemoteID
				tag = entities.Tag{
					Name:  p.Name,
					Color: p.Color,
					SyncEnvelope: entities.SyncEnvelope{
						RemoteID:  &remoteID,
						CreatedAt: rec.UpdatedAt,
						UpdatedAt: rec.UpdatedAt,
					},
				}
				if err := tx.Create(&tag).Error; err != nil {
					return err
				}
				continue
			}

			tag.Name = p.Name
			tag.Color = p.Color
			if rec.UpdatedAt.After(tag.UpdatedAt) {
				tag.UpdatedAt = rec.UpdatedAt
			}
			if err := tx.Save(&tag).Error; err != nil {
				return err
			}
		}
		return nil
	}, entities.Tag{}.TableName())
}

// Purge hard-deletes server-acknowledged tombstones.
func (r *Repository) Purge(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		return tx.Where("id IN ? AND is_deleted = ?", ids, true).
			Delete(&entities.Tag{}).Error
	}, entities.Tag{}.TableName())
}
