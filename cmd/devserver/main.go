// Command devserver is a reference sync server for local development and
// integration testing. State is held in memory and lost on restart.
// Usage: go run cmd/devserver/main.go [-port 8188]
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

func main() {
	port := flag.Int("port", 8188, "port to listen on")
	username := flag.String("username", "demo", "account username")
	password := flag.String("password", "demo", "account password")
	coversDir := flag.String("covers-dir", "", "directory for uploaded covers (default: temp dir)")
	flag.Parse()

	dir := *coversDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "devserver-covers-*")
		if err != nil {
			log.Fatalf("Failed to create covers dir: %v", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	srv := &server{
		username:     *username,
		passwordHash: hash,
		coversDir:    dir,
		baseURL:      fmt.Sprintf("http://localhost:%d", *port),
		tables:       make(map[string]*table),
		tokens:       make(map[string]bool),
	}

	router := gin.Default()
	router.GET("/api/health", srv.health)
	router.POST("/api/auth/login", srv.login)

	authed := router.Group("/api/sync", srv.requireAuth)
	authed.POST("/push/:table", srv.push)
	authed.GET("/pull", srv.pull)
	authed.POST("/covers/:local_id", srv.uploadCover)

	log.Printf("Dev sync server listening on :%d (user=%s, covers=%s)", *port, *username, dir)
	if err := router.Run(fmt.Sprintf(":%d", *port)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// record is one stored row with its server-side metadata.
type record struct {
	remoteID  int64
	isDeleted bool
	updatedAt time.Time
	fields    []byte
}

// table holds one table's records plus the local-id dedup map that makes
// retried create batches idempotent.
type table struct {
	records map[int64]*record
	byLocal map[uint]int64
	nextID  int64
}

type server struct {
	username     string
	passwordHash []byte
	coversDir    string
	baseURL      string

	mu     sync.Mutex
	tables map[string]*table
	tokens map[string]bool
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) login(c *gin.Context) {
	var req syncapi.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Username != s.username ||
		bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()

	c.JSON(http.StatusOK, syncapi.LoginResponse{Token: token})
}

func (s *server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	s.mu.Lock()
	valid := s.tokens[token]
	s.mu.Unlock()

	if !valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}

func (s *server) getTable(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{
			records: make(map[int64]*record),
			byLocal: make(map[uint]int64),
			nextID:  1,
		}
		s.tables[name] = t
	}
	return t
}

func (s *server) push(c *gin.Context) {
	tableName := c.Param("table")

	var req syncapi.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.getTable(tableName)
	now := time.Now().UTC()
	resp := syncapi.PushResponse{Assigned: make(map[uint]int64)}

	for _, change := range req.Changes {
		remoteID, known := t.byLocal[change.LocalID]

		switch {
		case known:
			rec := t.records[remoteID]
			rec.isDeleted = change.IsDeleted
			rec.updatedAt = now
			if len(change.Fields) > 0 {
				rec.fields = change.Fields
			}
			resp.Acked = append(resp.Acked, change.LocalID)

		case change.IsDeleted:
			// A tombstone for a record we never saw; nothing to store.
			resp.Acked = append(resp.Acked, change.LocalID)

		default:
			remoteID = t.nextID
			t.nextID++
			t.byLocal[change.LocalID] = remoteID
			t.records[remoteID] = &record{
				remoteID:  remoteID,
				updatedAt: now,
				fields:    change.Fields,
			}
			resp.Assigned[change.LocalID] = remoteID
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *server) pull(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since parameter"})
			return
		}
		since = parsed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := syncapi.PullResponse{
		Tables:     make(map[string][]syncapi.Record),
		ServerTime: time.Now().UTC(),
	}

	for name, t := range s.tables {
		for _, rec := range t.records {
			if !rec.updatedAt.After(since) {
				continue
			}
			resp.Tables[name] = append(resp.Tables[name], syncapi.Record{
				RemoteID:  rec.remoteID,
				IsDeleted: rec.isDeleted,
				UpdatedAt: rec.updatedAt,
				Fields:    rec.fields,
			})
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *server) uploadCover(c *gin.Context) {
	localID, err := strconv.ParseUint(c.Param("local_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid local id"})
		return
	}

	name := fmt.Sprintf("cover_%d_%d.jpg", localID, time.Now().UnixNano())
	path := filepath.Join(s.coversDir, name)

	file, err := os.Create(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store cover"})
		return
	}
	defer file.Close()

	if _, err := io.Copy(file, c.Request.Body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store cover"})
		return
	}

	c.JSON(http.StatusOK, syncapi.UploadResponse{URL: s.baseURL + "/covers/" + name})
}
