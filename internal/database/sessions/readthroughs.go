package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/sabristratos/athneaeum-sub004/internal/database"
	"github.com/sabristratos/athneaeum-sub004/internal/entities"
	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

// ThroughRepository handles all read_throughs table operations.
type ThroughRepository struct {
	db *database.Database
}

func NewThroughRepository(db *database.Database) *ThroughRepository {
	return &ThroughRepository{db: db}
}

type throughPayload struct {
	UserBookRemoteID *int64     `json:"user_book_remote_id,omitempty"`
	Number           int        `json:"number"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

func toThroughPayload(rt *entities.ReadThrough) throughPayload {
	return throughPayload{
		UserBookRemoteID: rt.UserBookRemoteID,
		Number:           rt.Number,
		StartedAt:        rt.StartedAt,
		FinishedAt:       rt.FinishedAt,
	}
}

func (p throughPayload) applyTo(rt *entities.ReadThrough) {
	rt.UserBookRemoteID = p.UserBookRemoteID
	rt.Number = p.Number
	rt.StartedAt = p.StartedAt
	rt.FinishedAt = p.FinishedAt
}

// Start opens a new read-through for a shelf entry, numbered after any
// previous passes.
func (r *ThroughRepository) Start(userBookID uint) (*entities.ReadThrough, error) {
	through := &entities.ReadThrough{UserBookID: userBookID}
	err := r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var userBook entities.UserBook
		if err := tx.First(&userBook, userBookID).Error; err != nil {
			return fmt.Errorf("start read-through for user book %d: %w", userBookID, err)
		}
		var count int64
		if err := tx.Model(&entities.ReadThrough{}).Where("user_book_id = ?", userBookID).Count(&count).Error; err != nil {
			return err
		}
		now := time.Now()
		through.UserBookRemoteID = userBook.RemoteID
		through.Number = int(count) + 1
		through.StartedAt = now
		through.CreatedAt = now
		through.Touch(now)
		return tx.Create(through).Error
	}, entities.ReadThrough{}.TableName())
	if err != nil {
		return nil, err
	}
	return through, nil
}

// Finish closes a read-through.
func (r *ThroughRepository) Finish(id uint) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var through entities.ReadThrough
		if err := tx.First(&through, id).Error; err != nil {
			return err
		}
		now := time.Now()
		through.FinishedAt = &now
		through.Touch(now)
		return tx.Save(&through).Error
	}, entities.ReadThrough{}.TableName())
}

// SoftDelete tombstones a read-through until the server acknowledges it.
func (r *ThroughRepository) SoftDelete(id uint) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var through entities.ReadThrough
		if err := tx.First(&through, id).Error; err != nil {
			return err
		}
		through.Tombstone(time.Now())
		return tx.Save(&through).Error
	}, entities.ReadThrough{}.TableName())
}

// Table implements syncengine.TableSyncer.
func (r *ThroughRepository) Table() string { return entities.ReadThrough{}.TableName() }

func (r *ThroughRepository) CollectPending() ([]syncapi.Change, error) {
	var dirty []entities.ReadThrough
	err := r.db.DB.Where("is_pending_sync = ?", true).Order("updated_at ASC").Find(&dirty).Error
	if err != nil {
		return nil, err
	}

	changes := make([]syncapi.Change, 0, len(dirty))
	for i := range dirty {
		fields, err := json.Marshal(toThroughPayload(&dirty[i]))
		if err != nil {
			return nil, fmt.Errorf("serialize read-through %d: %w", dirty[i].ID, err)
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

// MarkSynced clears dirty flags for the pushed snapshot (read-throughs edited
// after collection stay dirty) and copies new remote ids onto dependent
// reading_sessions rows.
func (r *ThroughRepository) MarkSynced(changes []syncapi.Change, resp *syncapi.PushResponse) (purgeable []uint, err error) {
	collected := syncapi.CollectedTimes(changes)
	err = r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for localID, remoteID := range resp.Assigned {
			var through entities.ReadThrough
			if err := tx.First(&through, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			through.MarkSynced(remoteID, collected[localID])
			if err := tx.Save(&through).Error; err != nil {
				return err
			}
			err := tx.Model(&entities.ReadingSession{}).
				Where("read_through_id = ?", through.ID).
				Update("read_through_remote_id", remoteID).Error
			if err != nil {
				return err
			}
		}
		for _, localID := range resp.Acked {
			var through entities.ReadThrough
			if err := tx.First(&through, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if through.RemoteID == nil {
				return fmt.Errorf("read-through %d acked without a remote id", localID)
			}
			cleared := through.MarkSynced(*through.RemoteID, collected[localID])
			if err := tx.Save(&through).Error; err != nil {
				return err
			}
			if cleared && through.IsDeleted {
				purgeable = append(purgeable, through.ID)
			}
		}
		return nil
	}, entities.ReadThrough{}.TableName(), entities.ReadingSession{}.TableName())
	if err != nil {
		return nil, err
	}
	return purgeable, nil
}

func (r *ThroughRepository) ApplyRemote(records []syncapi.Record) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for _, rec := range records {
			var through entities.ReadThrough
			err := tx.Where("remote_id = ?", rec.RemoteID).First(&through).Error
			notFound := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !notFound {
				return err
			}

			if !notFound && through.IsPendingSync {
				continue
			}

			if rec.IsDeleted {
				if !notFound {
					if err := tx.Delete(&entities.ReadThrough{}, through.ID).Error; err != nil {
						return err
					}
				}
				continue
			}

			var p throughPayload
			if err := json.Unmarshal(rec.Fields, &p); err != nil {
				return fmt.Errorf("decode read-through %d: %w", rec.RemoteID, err)
			}

			if notFound {
				if p.UserBookRemoteID == nil {
					log.Printf("readthroughs: skipping pulled record %d with no parent", rec.RemoteID)
					continue
				}
				var userBook entities.UserBook
				err := tx.Where("remote_id = ?", *p.UserBookRemoteID).First(&userBook).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("readthroughs: skipping pulled record %d, parent user book %d not local yet", rec.RemoteID, *p.UserBookRemoteID)
					continue
				}
				if err != nil {
					return err
				}
				remoteID := rec.RemoteID
				through = entities.ReadThrough{
					UserBookID: userBook.ID,
					SyncEnvelope: entities.SyncEnvelope{
						RemoteID:  &remoteID,
						CreatedAt: rec.UpdatedAt,
						UpdatedAt: rec.UpdatedAt,
					},
				}
				p.applyTo(&through)
				if err := tx.Create(&through).Error; err != nil {
					return err
				}
				continue
			}

			p.applyTo(&through)
			if rec.UpdatedAt.After(through.UpdatedAt) {
				through.UpdatedAt = rec.UpdatedAt
			}
			if err := tx.Save(&through).Error; err != nil {
				return err
			}
		}
		return nil
	}, entities.ReadThrough{}.TableName())
}

// Purge hard-deletes server-acknowledged tombstones.
func (r *ThroughRepository) Purge(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		return tx.Where("id IN ? AND is_deleted = ?", ids, true).
			Delete(&entities.ReadThrough{}).Error
	}, entities.ReadThrough{}.TableName())
}
