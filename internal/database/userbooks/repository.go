// Package userbooks provides record-store operations for the user's shelf:
// reading status, progress, ratings and DNF state.
package userbooks

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

// Repository handles all user_books table operations.
type Repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db}
}

type payload struct {
	BookRemoteID *int64                 `json:"book_remote_id,omitempty"`
	Status       entities.ReadingStatus `json:"status"`
	CurrentPage  int                    `json:"current_page"`
	Rating       *int                   `json:"rating,omitempty"`
	Review       string                 `json:"review,omitempty"`
	DnfReason    string                 `json:"dnf_reason,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
}

func toPayload(ub *entities.UserBook) payload {
	return payload{
		BookRemoteID: ub.BookRemoteID,
		Status:       ub.Status,
		CurrentPage:  ub.CurrentPage,
		Rating:       ub.Rating,
		Review:       ub.Review,
		DnfReason:    ub.DnfReason,
		StartedAt:    ub.StartedAt,
		FinishedAt:   ub.FinishedAt,
	}
}

func (p payload) applyTo(ub *entities.UserBook) {
	ub.BookRemoteID = p.BookRemoteID
	ub.Status = p.Status
	ub.CurrentPage = p.CurrentPage
	ub.Rating = p.Rating
	ub.Review = p.Review
	ub.DnfReason = p.DnfReason
	ub.StartedAt = p.StartedAt
	ub.FinishedAt = p.FinishedAt
}

// Add puts a book on the shelf. The denormalized BookRemoteID is copied from
// the parent so a later push can reference the server-side book even before
// an id-mapping pass.
func (r *Repository) Add(bookID uint, status entities.ReadingStatus) (*entities.UserBook, error) {
	userBook := &entities.UserBook{
		BookID: bookID,
		Status: status,
	}
	err := r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.First(&book, bookID).Error; err != nil {
			return fmt.Errorf("shelve book %d: %w", bookID, err)
		}
		userBook.BookRemoteID = book.RemoteID
		now := time.Now()
		userBook.CreatedAt = now
		userBook.Touch(now)
		return tx.Create(userBook).Error
	}, entities.UserBook{}.TableName())
	if err != nil {
		return nil, err
	}
	return userBook, nil
}

func (r *Repository) mutate(id uint, apply func(*entities.UserBook)) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var userBook entities.UserBook
		if err := tx.First(&userBook, id).Error; err != nil {
			return err
		}
		apply(&userBook)
		userBook.Touch(time.Now())
		return tx.Save(&userBook).Error
	}, entities.UserBook{}.TableName())
}

// UpdateStatus moves the book between shelves, stamping StartedAt/FinishedAt
// on the relevant transitions.
func (r *Repository) UpdateStatus(id uint, status entities.ReadingStatus) error {
	return r.mutate(id, func(ub *entities.UserBook) {
		ub.Status = status
		now := time.Now()
		switch status {
		case entities.ReadingStatusReading:
			if ub.StartedAt == nil {
				ub.StartedAt = &now
			}
			ub.FinishedAt = nil
		case entities.ReadingStatusFinished:
			ub.FinishedAt = &now
		}
	})
}

// UpdateProgress records the current page.
func (r *Repository) UpdateProgress(id uint, currentPage int) error {
	return r.mutate(id, func(ub *entities.UserBook) {
		ub.CurrentPage = currentPage
	})
}

// MarkDnf shelves the book as did-not-finish with an optional reason.
func (r *Repository) MarkDnf(id uint, reason string) error {
	return r.mutate(id, func(ub *entities.UserBook) {
		ub.Status = entities.ReadingStatusDnf
		ub.DnfReason = reason
	})
}

// SetRating records a rating and review.
func (r *Repository) SetRating(id uint, rating int, review string) error {
	return r.mutate(id, func(ub *entities.UserBook) {
		ub.Rating = &rating
		ub.Review = review
	})
}

// SoftDelete tombstones the shelf entry until the server acknowledges it.
func (r *Repository) SoftDelete(id uint) error {
	return r.mutate(id, func(ub *entities.UserBook) {
		ub.Tombstone(time.Now())
	})
}

// AddTag attaches a tag. The join rows are device-local; tags themselves sync
// as their own table.
func (r *Repository) AddTag(id, tagID uint) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var userBook entities.UserBook
		if err := tx.First(&userBook, id).Error; err != nil {
			return err
		}
		var tag entities.Tag
		if err := tx.First(&tag, tagID).Error; err != nil {
			return err
		}
		return tx.Model(&userBook).Association("Tags").Append(&tag)
	}, entities.UserBook{}.TableName())
}

func (r *Repository) GetByID(id uint) (*entities.UserBook, error) {
	var userBook entities.UserBook
	err := r.db.DB.Preload("Book").Preload("Tags").First(&userBook, id).Error
	if err != nil {
		return nil, err
	}
	return &userBook, nil
}

// List returns the visible shelf, excluding tombstones.
func (r *Repository) List() ([]entities.UserBook, error) {
	var userBooks []entities.UserBook
	err := r.db.DB.Preload("Book").
		Where("is_deleted = ?", false).
		Order("updated_at DESC").
		Find(&userBooks).Error
	return userBooks, err
}

// ListByStatus returns the visible shelf filtered to one reading status.
func (r *Repository) ListByStatus(status entities.ReadingStatus) ([]entities.UserBook, error) {
	var userBooks []entities.UserBook
	err := r.db.DB.Preload("Book").
		Where("status = ? AND is_deleted = ?", status, false).
		Order("updated_at DESC").
		Find(&userBooks).Error
	return userBooks, err
}

// Table implements syncengine.TableSyncer.
func (r *Repository) Table() string { return entities.UserBook{}.TableName() }

// CollectPending returns every dirty shelf entry, tombstones included.
func (r *Repository) CollectPending() ([]syncapi.Change, error) {
	var dirty []entities.UserBook
	err := r.db.DB.Where("is_pending_sync = ?", true).Order("updated_at ASC").Find(&dirty).Error
	if err != nil {
		return nil, err
	}

	changes := make([]syncapi.Change, 0, len(dirty))
	for i := range dirty {
		fields, err := json.Marshal(toPayload(&dirty[i]))
		if err != nil {
			return nil, fmt.Errorf("serialize user book %d: %w", dirty[i].ID, err)
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

// MarkSynced clears dirty flags for acknowledged records in the pushed
// snapshot (records edited after collection stay dirty) and copies newly
// assigned remote ids onto dependent read_throughs and reading_sessions rows.
func (r *Repository) MarkSynced(changes []syncapi.Change, resp *syncapi.PushResponse) (purgeable []uint, err error) {
	collected := syncapi.CollectedTimes(changes)
	err = r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for localID, remoteID := range resp.Assigned {
			var userBook entities.UserBook
			if err := tx.First(&userBook, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			userBook.MarkSynced(remoteID, collected[localID])
			if err := tx.Save(&userBook).Error; err != nil {
				return err
			}
			err := tx.Model(&entities.ReadThrough{}).
				Where("user_book_id = ?", userBook.ID).
				Update("user_book_remote_id", remoteID).Error
			if err != nil {
				return err
			}
			err = tx.Model(&entities.ReadingSession{}).
				Where("user_book_id = ?", userBook.ID).
				Update("user_book_remote_id", remoteID).Error
			if err != nil {
				return err
			}
		}

		for _, localID := range resp.Acked {
			var userBook entities.UserBook
			if err := tx.First(&userBook, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if userBook.RemoteID == nil {
				return fmt.Errorf("user book %d acked without a remote id", localID)
			}
			cleared := userBook.MarkSynced(*userBook.RemoteID, collected[localID])
			if err := tx.Save(&userBook).Error; err != nil {
				return err
			}
			if cleared && userBook.IsDeleted {
				purgeable = append(purgeable, userBook.ID)
			}
		}
		return nil
	}, entities.UserBook{}.TableName(), entities.ReadThrough{}.TableName(), entities.ReadingSession{}.TableName())
	if err != nil {
		return nil, err
	}
	return purgeable, nil
}

// ApplyRemote applies pulled shelf entries. Dirty local records are preserved
// and win over the server version until pushed.
func (r *Repository) ApplyRemote(records []syncapi.Record) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for _, rec := range records {
			var userBook entities.UserBook
			err := tx.Where("remote_id = ?", rec.RemoteID).First(&userBook).Error
			notFound := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !notFound {
				return err
			}

			if !notFound && userBook.IsPendingSync {
				continue
			}

			if rec.IsDeleted {
				if !notFound {
					if err := tx.Delete(&entities.UserBook{}, userBook.ID).Error; err != nil {
						return err
					}
				}
				continue
			}

			var p payload
			if err := json.Unmarshal(rec.Fields, &p); err != nil {
				return fmt.Errorf("decode user book %d: %w", rec.RemoteID, err)
			}

			if notFound {
				if p.BookRemoteID == nil {
					log.Printf("userbooks: skipping pulled record %d with no parent book", rec.RemoteID)
					continue
				}
				var book entities.Book
				err := tx.Where("remote_id = ?", *p.BookRemoteID).First(&book).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("userbooks: skipping pulled record %d, parent book %d not local yet", rec.RemoteID, *p.BookRemoteID)
					continue
				}
				if err != nil {
					return err
				}
				remoteID := rec.RemoteID
				userBook = entities.UserBook{
					BookID: book.ID,
					SyncEnvelope: entities.SyncEnvelope{
						RemoteID:  &remoteID,
						CreatedAt: rec.UpdatedAt,
						UpdatedAt: rec.UpdatedAt,
					},
				}
				p.applyTo(&userBook)
				if err := tx.Create(&userBook).Error; err != nil {
					return err
				}
				continue
			}

			p.applyTo(&userBook)
			if rec.UpdatedAt.After(userBook.UpdatedAt) {
				userBook.UpdatedAt = rec.UpdatedAt
			}
			if err := tx.Save(&userBook).Error; err != nil {
				return err
			}
		}
		return nil
	}, entities.UserBook{}.TableName())
}

// Purge hard-deletes server-acknowledged tombstones.
func (r *Repository) Purge(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		return tx.Where("id IN ? AND is_deleted = ?", ids, true).
			Delete(&entities.UserBook{}).Error
	}, entities.UserBook{}.TableName())
}
