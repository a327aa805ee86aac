// Package books provides record-store operations for the shared book catalog,
// including the staged custom-cover upload flow.
package books

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

// Repository handles all book table operations.
type Repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db}
}

// payload is the wire shape of a book's syncable fields.
type payload struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn,omitempty"`
	CoverURL        string `json:"cover_url,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	PublicationYear int    `json:"publication_year,omitempty"`
	PageCount       int    `json:"page_count,omitempty"`
}

func toPayload(b *entities.Book) payload {
	return payload{
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		CoverURL:        b.CoverURL,
		Publisher:       b.Publisher,
		PublicationYear: b.PublicationYear,
		PageCount:       b.PageCount,
	}
}

func (p payload) applyTo(b *entities.Book) {
	b.Title = p.Title
	b.Author = p.Author
	b.ISBN = p.ISBN
	b.CoverURL = p.CoverURL
	b.Publisher = p.Publisher
	b.PublicationYear = p.PublicationYear
	b.PageCount = p.PageCount
}

// Create inserts a new book as dirty, to be assigned a remote id on the next
// push.
func (r *Repository) Create(book *entities.Book) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		now := time.Now()
		book.CreatedAt = now
		book.Touch(now)
		return tx.Create(book).Error
	}, entities.Book{}.TableName())
}

// mutate loads, applies and saves one book inside a single transaction,
// refreshing the envelope.
func (r *Repository) mutate(id uint, apply func(*entities.Book)) error {
	return r.db.Write(database.OriginLocal, func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.First(&book, id).Error; err != nil {
			return err
		}
		apply(&book)
		book.Touch(time.Now())
		return tx.Save(&book).Error
	}, entities.Book{}.TableName())
}

// UpdateDetails replaces the user-editable catalog fields.
func (r *Repository) UpdateDetails(id uint, title, author, isbn string, pageCount int) error {
	return r.mutate(id, func(b *entities.Book) {
		b.Title = title
		b.Author = author
		b.ISBN = isbn
		b.PageCount = pageCount
	})
}

// StageCover records a local file path as the book's custom cover, pending
// upload. The asset-upload phase rewrites it to a remote URL before push.
func (r *Repository) StageCover(id uint, localPath string) error {
	return r.mutate(id, func(b *entities.Book) {
		b.CoverStagedPath = localPath
		b.CoverUploadPending = true
	})
}

// FinishCoverUpload rewrites the cover reference to the server URL and clears
// the pending-upload flag. The record stays dirty so the generic push carries
// the new URL.
func (r *Repository) FinishCoverUpload(id uint, url string) error {
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.First(&book, id).Error; err != nil {
			return err
		}
		book.CoverURL = url
		book.CoverStagedPath = ""
		book.CoverUploadPending = false
		book.Touch(time.Now())
		return tx.Save(&book).Error
	}, entities.Book{}.TableName())
}

// SoftDelete tombstones a book. It disappears from queries but stays in the
// store until the server acknowledges the deletion.
func (r *Repository) SoftDelete(id uint) error {
	return r.mutate(id, func(b *entities.Book) {
		b.Tombstone(time.Now())
	})
}

func (r *Repository) GetByID(id uint) (*entities.Book, error) {
	var book entities.Book
	if err := r.db.DB.First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// List returns all books visible to the user, excluding tombstones.
func (r *Repository) List() ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.DB.Where("is_deleted = ?", false).Order("title ASC").Find(&books).Error
	return books, err
}

// FindByISBN looks up a visible book by ISBN.
func (r *Repository) FindByISBN(isbn string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.DB.Where("isbn = ? AND is_deleted = ?", isbn, false).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// PendingCoverUploads returns books with a staged cover awaiting upload.
func (r *Repository) PendingCoverUploads() ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.DB.
		Where("cover_upload_pending = ? AND is_deleted = ?", true, false).
		Find(&books).Error
	return books, err
}

// Table implements syncengine.TableSyncer.
func (r *Repository) Table() string { return entities.Book{}.TableName() }

// CollectPending returns every dirty record, tombstones included, oldest
// local change first.
func (r *Repository) CollectPending() ([]syncapi.Change, error) {
	var dirty []entities.Book
	err := r.db.DB.Where("is_pending_sync = ?", true).Order("updated_at ASC").Find(&dirty).Error
	if err != nil {
		return nil, err
	}

	changes := make([]syncapi.Change, 0, len(dirty))
	for i := range dirty {
		fields, err := json.Marshal(toPayload(&dirty[i]))
		if err != nil {
			return nil, fmt.Errorf("serialize book %d: %w", dirty[i].ID, err)
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

// MarkSynced applies the server's identity assignments and acknowledgements
// for the pushed snapshot. A book edited after collection keeps its dirty
// flag and is pushed again next cycle. New remote ids are copied onto the
// denormalized parent reference of dependent user_books rows either way.
// Returns local ids of tombstones the server has recorded, now safe to purge.
func (r *Repository) MarkSynced(changes []syncapi.Change, resp *syncapi.PushResponse) (purgeable []uint, err error) {
	collected := syncapi.CollectedTimes(changes)
	err = r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for localID, remoteID := range resp.Assigned {
			var book entities.Book
			if err := tx.First(&book, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			book.MarkSynced(remoteID, collected[localID])
			if err := tx.Save(&book).Error; err != nil {
				return err
			}
			err := tx.Model(&entities.UserBook{}).
				Where("book_id = ?", book.ID).
				Update("book_remote_id", remoteID).Error
			if err != nil {
				return err
			}
		}

		for _, localID := range resp.Acked {
			var book entities.Book
			if err := tx.First(&book, localID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if book.RemoteID == nil {
				return fmt.Errorf("book %d acked without a remote id", localID)
			}
			cleared := book.MarkSynced(*book.RemoteID, collected[localID])
			if err := tx.Save(&book).Error; err != nil {
				return err
			}
			if cleared && book.IsDeleted {
				purgeable = append(purgeable, book.ID)
			}
		}
		return nil
	}, entities.Book{}.TableName(), entities.UserBook{}.TableName())
	if err != nil {
		return nil, err
	}
	return purgeable, nil
}

// ApplyRemote applies pulled server records in one transaction. A local
// record that is still dirty is never overwritten; its version wins and is
// pushed next cycle.
func (r *Repository) ApplyRemote(records []syncapi.Record) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		for _, rec := range records {
			var book entities.Book
			err := tx.Where("remote_id = ?", rec.RemoteID).First(&book).Error
			notFound := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !notFound {
				return err
			}

			if !notFound && book.IsPendingSync {
				continue
			}

			if rec.IsDeleted {
				if !notFound {
					if err := tx.Delete(&entities.Book{}, book.ID).Error; err != nil {
						return err
					}
				}
				continue
			}

			var p payload
			if err := json.Unmarshal(rec.Fields, &p); err != nil {
				return fmt.Errorf("decode book %d: %w", rec.RemoteID, err)
			}

			if notFound {
				remoteID := rec.RemoteID
				book = entities.Book{
					SyncEnvelope: entities.SyncEnvelope{
						RemoteID:  &remoteID,
						CreatedAt: rec.UpdatedAt,
						UpdatedAt: rec.UpdatedAt,
					},
				}
				p.applyTo(&book)
				if err := tx.Create(&book).Error; err != nil {
					return err
				}
				continue
			}

			p.applyTo(&book)
			if rec.UpdatedAt.After(book.UpdatedAt) {
				book.UpdatedAt = rec.UpdatedAt
			}
			if err := tx.Save(&book).Error; err != nil {
				return err
			}
		}
		return nil
	}, entities.Book{}.TableName())
}

// Purge hard-deletes server-acknowledged tombstones.
func (r *Repository) Purge(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Write(database.OriginSync, func(tx *gorm.DB) error {
		return tx.Where("id IN ? AND is_deleted = ?", ids, true).
			Delete(&entities.Book{}).Error
	}, entities.Book{}.TableName())
}
