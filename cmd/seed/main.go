// Command seed creates a local library database with sample data from public
// domain books, left dirty so a first sync exercises the full push path.
// Usage: go run cmd/seed/main.go [-db path/to/athenaeum.db]
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/sabristratos/athneaeum-sub004/internal/config"
	"github.com/sabristratos/athneaeum-sub004/internal/database"
	"github.com/sabristratos/athneaeum-sub004/internal/database/books"
	"github.com/sabristratos/athneaeum-sub004/internal/database/goals"
	"github.com/sabristratos/athneaeum-sub004/internal/database/preferences"
	"github.com/sabristratos/athneaeum-sub004/internal/database/sessions"
	"github.com/sabristratos/athneaeum-sub004/internal/database/tags"
	"github.com/sabristratos/athneaeum-sub004/internal/database/userbooks"
	"github.com/sabristratos/athneaeum-sub004/internal/entities"
)

func main() {
	dbPath := flag.String("db", config.DefaultDatabasePath, "path to the library database file")
	flag.Parse()

	log.Printf("Seeding library database at %s...", *dbPath)

	// Start fresh
	if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing database: %v", err)
	}

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	bookRepo := books.NewRepository(db)
	shelfRepo := userbooks.NewRepository(db)
	throughRepo := sessions.NewThroughRepository(db)
	sessionRepo := sessions.NewRepository(db)
	tagRepo := tags.NewRepository(db)
	goalRepo := goals.NewRepository(db)
	prefRepo := preferences.NewRepository(db)

	tagIDs := seedTags(tagRepo)

	for _, cfg := range sampleLibrary() {
		book := cfg.book
		if err := bookRepo.Create(&book); err != nil {
			log.Printf("Failed to save book %s: %v", book.Title, err)
			continue
		}

		shelf, err := shelfRepo.Add(book.ID, cfg.status)
		if err != nil {
			log.Printf("Failed to shelve %s: %v", book.Title, err)
			continue
		}

		for _, tagName := range cfg.tagNames {
			if id, ok := tagIDs[tagName]; ok {
				if err := shelfRepo.AddTag(shelf.ID, id); err != nil {
					log.Printf("Failed to tag %s with %s: %v", book.Title, tagName, err)
				}
			}
		}

		if cfg.status == entities.ReadingStatusReading || cfg.status == entities.ReadingStatusFinished {
			seedReadingHistory(shelfRepo, throughRepo, sessionRepo, shelf.ID, cfg)
		}

		if cfg.rating > 0 {
			if err := shelfRepo.SetRating(shelf.ID, cfg.rating, cfg.review); err != nil {
				log.Printf("Failed to rate %s: %v", book.Title, err)
			}
		}

		log.Printf("Seeded: %s by %s (%s)", book.Title, book.Author, cfg.status)
	}

	year := time.Now().Year()
	if err := goalRepo.Set(year, 24, 8000); err != nil {
		log.Printf("Failed to set reading goal: %v", err)
	}
	if err := prefRepo.Set("theme", "sepia"); err != nil {
		log.Printf("Failed to set preference: %v", err)
	}
	if err := prefRepo.Set("default_shelf", "want_to_read"); err != nil {
		log.Printf("Failed to set preference: %v", err)
	}

	log.Println("Library database seeded successfully!")
}

func seedTags(repo *tags.Repository) map[string]uint {
	names := []string{"philosophy", "fiction", "classic", "science"}
	ids := make(map[string]uint)
	for _, name := range names {
		tag, err := repo.GetOrCreate(name)
		if err != nil {
			log.Printf("Failed to create tag %s: %v", name, err)
			continue
		}
		ids[name] = tag.ID
	}
	return ids
}

func seedReadingHistory(shelfRepo *userbooks.Repository, throughRepo *sessions.ThroughRepository, sessionRepo *sessions.Repository, shelfID uint, cfg libraryEntry) {
	through, err := throughRepo.Start(shelfID)
	if err != nil {
		log.Printf("Failed to start read-through: %v", err)
		return
	}

	page := 0
	readAt := time.Now().AddDate(0, 0, -len(cfg.sessionPages))
	for _, pages := range cfg.sessionPages {
		session := &entities.ReadingSession{
			UserBookID:      shelfID,
			ReadThroughID:   &through.ID,
			StartPage:       page,
			EndPage:         page + pages,
			DurationMinutes: pages, // roughly a page a minute
			ReadAt:          readAt,
		}
		if err := sessionRepo.Log(session); err != nil {
			log.Printf("Failed to log session: %v", err)
			return
		}
		page += pages
		readAt = readAt.AddDate(0, 0, 1)
	}

	if err := shelfRepo.UpdateProgress(shelfID, page); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}

	if cfg.status == entities.ReadingStatusFinished {
		if err := throughRepo.Finish(through.ID); err != nil {
			log.Printf("Failed to finish read-through: %v", err)
		}
		if err := shelfRepo.UpdateStatus(shelfID, entities.ReadingStatusFinished); err != nil {
			log.Printf("Failed to mark finished: %v", err)
		}
	}
}

// libraryEntry holds a book plus its shelf state for seeding.
type libraryEntry struct {
	book         entities.Book
	status       entities.ReadingStatus
	tagNames     []string
	sessionPages []int
	rating       int
	review       string
}

func sampleLibrary() []libraryEntry {
	return []libraryEntry{
		{
			book: entities.Book{
				Title:           "Meditations",
				Author:          "Marcus Aurelius",
				PublicationYear: 180,
				PageCount:       254,
			},
			status:       entities.ReadingStatusFinished,
			tagNames:     []string{"philosophy", "classic"},
			sessionPages: []int{40, 60, 80, 74},
			rating:       5,
			review:       "Still the best bedside book there is.",
		},
		{
			book: entities.Book{
				Title:           "Letters from a Stoic",
				Author:          "Seneca",
				PublicationYear: 65,
				PageCount:       254,
			},
			status:       entities.ReadingStatusReading,
			tagNames:     []string{"philosophy", "classic"},
			sessionPages: []int{30, 45},
		},
		{
			book: entities.Book{
				Title:           "On the Origin of Species",
				Author:          "Charles Darwin",
				PublicationYear: 1859,
				PageCount:       502,
			},
			status:   entities.ReadingStatusWantToRead,
			tagNames: []string{"science", "classic"},
		},
		{
			book: entities.Book{
				Title:           "Pride and Prejudice",
				Author:          "Jane Austen",
				ISBN:            "9780141439518",
				PublicationYear: 1813,
				PageCount:       432,
			},
			status:       entities.ReadingStatusFinished,
			tagNames:     []string{"fiction", "classic"},
			sessionPages: []int{90, 120, 110, 112},
			rating:       4,
			review:       "Sharper than its reputation suggests.",
		},
		{
			book: entities.Book{
				Title:           "War and Peace",
				Author:          "Leo Tolstoy",
				PublicationYear: 1869,
				PageCount:       1225,
			},
			status:   entities.ReadingStatusWantToRead,
			tagNames: []string{"fiction", "classic"},
		},
		{
			book: entities.Book{
				Title:           "Crime and Punishment",
				Author:          "Fyodor Dostoevsky",
				PublicationYear: 1866,
				PageCount:       671,
			},
			status:       entities.ReadingStatusReading,
			tagNames:     []string{"fiction", "classic"},
			sessionPages: []int{55, 70, 65},
		},
		{
			book: entities.Book{
				Title:           "Frankenstein",
				Author:          "Mary Shelley",
				PublicationYear: 1818,
				PageCount:       280,
			},
			status:   entities.ReadingStatusWantToRead,
			tagNames: []string{"fiction", "classic", "science"},
		},
		{
			book: entities.Book{
				Title:           "The Picture of Dorian Gray",
				Author:          "Oscar Wilde",
				PublicationYear: 1890,
				PageCount:       304,
			},
			status:       entities.ReadingStatusFinished,
			tagNames:     []string{"fiction", "classic"},
			sessionPages: []int{76, 110, 118},
			rating:       5,
			review:       "Every epigram lands.",
		},
	}
}
