// Package sessions provides record-store operations for reading sessions and
// the read-throughs that group them.
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

// Repository handles all reading_sessions table operations.
type Repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db}
}

type payload struct {
	UserBookRemoteID    *int64    `json:"user_book_remote_id,omitempty"`
	ReadThroughRemoteID *int64    `json:"read_through_remote_id,omitempty"`
	StartPage           int       `json:"start_page"`
	EndPage             int       `json:"end_page"`
	DurationMinutes     int       `json:"duration_minutes"`
	ReadAt              time.Time `json:"read_at"`
}

func toPayload(s *entities.ReadingSession) payload {
	return payload{
		UserBookRemoteID:    s.UserBookRemoteID,
		ReadThroughRemoteID: s.ReadThroughRemoteID,
		StartPage:           s.StartPage,
		EndPage:             s.EndPage,
		DurationMinutes:     s.DurationMinutes,
		ReadAt:              s.ReadAt,
	}
}

func (p payload) applyTo(s *entities.ReadingSession) {
	s.UserBookRemoteID = p.UserBookRemoteID
	s.ReadThroughRemoteID = p.ReadThroughRemoteID
	s.StartPage = p.StartPage
	s.EndPage = p.EndPage
	s.DurationMinutes = p.DurationMinutes
	s.ReadAt = p.ReadAt
}

// Log records a reading session against a shelf entry, copying the parent's
// remote identities into the denormalized columns.
func (r *Repository) Log(session *entities.ReadingSession) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var userBook entities.UserBook
		if err := tx.First(&userBook, session.UserBookID).Error; err != nil {
			return fmt.Errorf("log session for user book %d: %w", session.UserBookID, err)
		}
		session.UserBookRemoteID = userBook.RemoteID
		if session.ReadThroughID != nil {
			var through entities.ReadThrough
			if err := tx.First(&through, *session.ReadThroughID).Error; err != nil {
				return fmt.Errorf("log session for read-through %d: %w", *session.ReadThroughID, err)
			}
			session.ReadThroughRemoteID = through.RemoteID
		}
		now := time.Now()
		session.CreatedAt = now
		if session.ReadAt.IsZero() {
			session.ReadAt = now
		}
		session.Touch(now)
		return tx.Create(session).Error
	}, entities.ReadingSession{}.TableName())
}

// UpdatePages corrects the page range and duration of a logged session.
func (r *Repository) UpdatePages(id uint, startPage, endPage, durationMinutes int) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var session entities.ReadingSession
		if err := tx.First(&session, id).Error; err != nil {
			return err
		}
		session.StartPage = startPage
		session.EndPage = endPage
		session.DurationMinutes = durationMinutes
		session.Touch(time.Now())
		return tx.Save(&session).Error
	}, entities.ReadingSession{}.TableName())
}

// SoftDelete tombstones a session until the server acknowledges it.
func (r *Repository) SoftDelete(id uint) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var session entities.ReadingSession
		if err := tx.First(&session, id).Error; err != nil {
			return err
		}
		session.Tombstone(time.Now())
		return tx.Save(&session).Error
	}, entities.ReadingSession{}.TableName())
}

// ListForUserBook returns the visible sessions for a shelf entry, most
// recent first.
func (r *Repository) ListForUserBook(userBookID uint) ([]entities.ReadingSession, error) {
	var list []entities.ReadingSession
	err := r.db.DB.
		Where("user_book_id = ? AND is_deleted = ?", userBookID, false).
		Order("read_at DESC").
		Find(&list).Error
	return list, err
}

// Table implements syncengine.TableSyncer.
func (r *Repository) Table() string { return entities.ReadingSession{}.TableName() }

func (r *Repository) CollectPending() ([]syncapi.Change, error) {
	var dirty []entities.ReadingSession
	err := r.db.DB.Where("is_pending_sync = ?", true).Order("updated_at ASC").Find(&dirty).Error
	if err != nil {
		return nil, err
	}

	changes := make([]syncapi.Change, 0, len(dirty))
	for i := range dirty {
		fields, err := json.Marshal(toPayload(&dirty[i]))
		if err != nil {
			return nil, fmt.Errorf("serialize session %d: %w", dirty[i].ID, err)
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
			var session entities.ReadingSession
			if err := tx.First(&session, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			session.MarkSynced(remoteID, collected[localID])
			if err := tx.Save(&session).Error; err != nil {
				return err
			}
		}
		for _, localID := range resp.Acked {
			var session entities.ReadingSession
			if err := tx.First(&session, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if session.RemoteID == nil {
				return fmt.Errorf("session %d acked without a remote id", localID)
			}
			cleared := session.MarkSynced(*session.RemoteID, collected[localID])
			if err := tx.Save(&session).Error; err != nil {
				return err
			}
			if cleared && session.IsDeleted {
				purgeable = append(purgeable, session.ID)
			}
		}
		return nil
	}, entities.ReadingSession{}.TableName())
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
			var session entities.ReadingSession
			err := tx.Where("remote_id = ?", rec.RemoteID).First(&session).Error
			notFound := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !notFound {
				return err
			}

			if !notFound && session.IsPendingSync {
				continue
			}

			if rec.IsDeleted {
				if !notFound {
					if err := tx.Delete(&entities.ReadingSession{}, session.ID).Error; err != nil {
						return err
					}
				}
				continue
			}

			var p payload
			if err := json.Unmarshal(rec.Fields, &p); err != nil {
				return fmt.Errorf("decode session %d: %w", rec.RemoteID, err)
			}

			if notFound {
				if p.UserBookRemoteID == nil {
					log.Printf("sessions: skipping pulled record %d with no parent", rec.RemoteID)
					continue
				}
				var userBook entities.UserBook
				err := tx.Where("remote_id = ?", *p.UserBookRemoteID).First(&userBook).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("sessions: skipping pulled record %d, parent user book %d not local yet", rec.RemoteID, *p.UserBookRemoteID)
					continue
				}
				if err != nil {
					return err
				}
				remoteID := rec.RemoteID
				session = entities.ReadingSession{
					UserBookID: userBook.ID,
					SyncEnvelope: entities.SyncEnvelope{
						RemoteID:  &remoteID,
						CreatedAt: rec.UpdatedAt,
						UpdatedAt: rec.UpdatedAt,
					},
				}
				p.applyTo(&session)
				if p.ReadThroughRemoteID != nil {
					var through entities.ReadThrough
					if err := tx.Where("remote_id = ?", *p.ReadThroughRemoteID).First(&through).Error; err == nil {
						session.ReadThroughID = &through.ID
					}
				}
				if err := tx.Create(&session).Error; err != nil {
					return err
				}
				continue
			}

			p.applyTo(&session)
			if rec.UpdatedAt.After(session.UpdatedAt) {
				session.UpdatedAt = rec.UpdatedAt
			}
			if err := tx.Save(&session).Error; err != nil {
				return err
			}
		}
		return nil
	}, entities.ReadingSession{}.TableName())
}

// Purge hard-deletes server-acknowledged tombstones.
func (r *Repository) Purge(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		return tx.Where("id IN ? AND is_deleted = ?", ids, true).
			Delete(&entities.ReadingSession{}).Error
	}, entities.ReadingSession{}.TableName())
}
