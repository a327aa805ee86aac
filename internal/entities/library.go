package entities

import (
	"time"
)

type ReadingStatus string

const (
	ReadingStatusWantToRead ReadingStatus = "want_to_read"
	ReadingStatusReading    ReadingStatus = "reading"
	ReadingStatusFinished   ReadingStatus = "finished"
	ReadingStatusDnf        ReadingStatus = "dnf"
)

// Book is the catalog entry shared across user libraries.
type Book struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	Title           string `gorm:"index;size:512" json:"title"`
	Author          string `gorm:"index;size:256" json:"author"`
	ISBN            string `gorm:"index;size:20" json:"isbn,omitempty"`
	CoverURL        string `gorm:"size:2048" json:"cover_url,omitempty"`
	Publisher       string `gorm:"size:256" json:"publisher,omitempty"`
	PublicationYear int    `json:"publication_year,omitempty"`
	PageCount       int    `json:"page_count,omitempty"`

	// A custom cover staged as a local file. The staged path is uploaded and
	// rewritten to CoverURL before the record is pushed.
	CoverStagedPath    string `gorm:"size:1024" json:"-"`
	CoverUploadPending bool   `gorm:"index;default:false" json:"-"`

	SyncEnvelope `gorm:"embedded"`
}

// UserBook is a book on the user's shelf, with reading state.
// BookRemoteID is denormalized from the parent Book so push payloads can
// reference the server-side parent before any id-mapping pass runs.
type UserBook struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	BookID       uint          `gorm:"index" json:"book_id"`
	BookRemoteID *int64        `json:"book_remote_id,omitempty"`
	Status       ReadingStatus `gorm:"size:20;default:'want_to_read'" json:"status"`
	CurrentPage  int           `json:"current_page"`
	Rating       *int          `json:"rating,omitempty"`
	Review       string        `gorm:"type:text" json:"review,omitempty"`
	DnfReason    string        `gorm:"size:512" json:"dnf_reason,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`

	Book Book  `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Tags []Tag `gorm:"many2many:user_book_tags;" json:"tags,omitempty"`

	SyncEnvelope `gorm:"embedded"`
}

// ReadThrough groups the sessions of one complete pass through a book,
// so re-reads keep separate histories.
type ReadThrough struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserBookID       uint       `gorm:"index" json:"user_book_id"`
	UserBookRemoteID *int64     `json:"user_book_remote_id,omitempty"`
	Number           int        `gorm:"default:1" json:"number"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`

	SyncEnvelope `gorm:"embedded"`
}

// ReadingSession is a single sitting of reading.
type ReadingSession struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UserBookID          uint       `gorm:"index" json:"user_book_id"`
	UserBookRemoteID    *int64     `json:"user_book_remote_id,omitempty"`
	ReadThroughID       *uint      `gorm:"index" json:"read_through_id,omitempty"`
	ReadThroughRemoteID *int64     `json:"read_through_remote_id,omitempty"`
	StartPage           int        `json:"start_page"`
	EndPage             int        `json:"end_page"`
	DurationMinutes     int        `json:"duration_minutes"`
	ReadAt              time.Time  `gorm:"index" json:"read_at"`

	SyncEnvelope `gorm:"embedded"`
}

type Tag struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"uniqueIndex;size:100" json:"name"`
	Color string `gorm:"size:10" json:"color,omitempty"`

	SyncEnvelope `gorm:"embedded"`
}

type ReadingGoal struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	Year        int  `gorm:"uniqueIndex" json:"year"`
	TargetBooks int  `json:"target_books"`
	TargetPages int  `json:"target_pages,omitempty"`

	SyncEnvelope `gorm:"embedded"`
}

type UserPreference struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Key   string `gorm:"uniqueIndex;size:100" json:"key"`
	Value string `gorm:"type:text" json:"value"`

	SyncEnvelope `gorm:"embedded"`
}

func (Book) TableName() string           { return "books" }
func (UserBook) TableName() string       { return "user_books" }
func (ReadThrough) TableName() string    { return "read_throughs" }
func (ReadingSession) TableName() string { return "reading_sessions" }
func (Tag) TableName() string            { return "tags" }
func (ReadingGoal) TableName() string    { return "reading_goals" }
func (UserPreference) TableName() string { return "user_preferences" }

// SyncTableOrder is the fixed parent-before-child order used by the change
// collector on push and by the pull executor when applying server changes.
var SyncTableOrder = []string{
	"tags",
	"books",
	"user_books",
	"read_throughs",
	"reading_sessions",
	"reading_goals",
	"user_preferences",
}
