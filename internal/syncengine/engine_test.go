package syncengine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabristratos/athneaeum-sub004/internal/entities"
	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

type fakeSyncer struct {
	table     string
	pending   []syncapi.Change
	pushResp  *syncapi.PushResponse
	purgeable []uint

	collected  int
	marked     []*syncapi.PushResponse
	markedWith [][]syncapi.Change
	applied    [][]syncapi.Record
	purged     [][]uint
	applyOrder *[]string
}

func (f *fakeSyncer) Table() string { return f.table }

func (f *fakeSyncer) CollectPending() ([]syncapi.Change, error) {
	f.collected++
	return f.pending, nil
}

func (f *fakeSyncer) MarkSynced(changes []syncapi.Change, resp *syncapi.PushResponse) ([]uint, error) {
	f.markedWith = append(f.markedWith, changes)
	f.marked = append(f.marked, resp)
	return f.purgeable, nil
}

func (f *fakeSyncer) ApplyRemote(records []syncapi.Record) error {
	f.applied = append(f.applied, records)
	if f.applyOrder != nil {
		*f.applyOrder = append(*f.applyOrder, f.table)
	}
	return nil
}

func (f *fakeSyncer) Purge(ids []uint) error {
	f.purged = append(f.purged, ids)
	return nil
}

type fakeAPI struct {
	mu         sync.Mutex
	pushErr    error
	pullErr    error
	pullResp   *syncapi.PullResponse
	pushTables []string
	uploadErr  error
	uploadURL  string
	uploads    []uint
	pushDelay  time.Duration
}

func (f *fakeAPI) PushBatch(ctx context.Context, table string, changes []syncapi.Change) (*syncapi.PushResponse, error) {
	if f.pushDelay > 0 {
		time.Sleep(f.pushDelay)
	}
	f.mu.Lock()
	f.pushTables = append(f.pushTables, table)
	f.mu.Unlock()
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	resp := &syncapi.PushResponse{}
	for _, c := range changes {
		if c.IsDeleted {
			resp.Acked = append(resp.Acked, c.LocalID)
		} else {
			if resp.Assigned == nil {
				resp.Assigned = map[uint]int64{}
			}
			resp.Assigned[c.LocalID] = int64(c.LocalID) + 100
		}
	}
	return resp, nil
}

func (f *fakeAPI) Pull(ctx context.Context, since *time.Time) (*syncapi.PullResponse, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if f.pullResp != nil {
		return f.pullResp, nil
	}
	return &syncapi.PullResponse{ServerTime: time.Now()}, nil
}

func (f *fakeAPI) UploadCover(ctx context.Context, localID uint, cover io.Reader) (string, error) {
	f.uploads = append(f.uploads, localID)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadURL, nil
}

type fakeState struct {
	pulledAt *time.Time
	pushedAt *time.Time
}

func (f *fakeState) LastPulledAt() (*time.Time, error) { return f.pulledAt, nil }
func (f *fakeState) SetLastPulledAt(t time.Time) error { f.pulledAt = &t; return nil }
func (f *fakeState) SetLastPushedAt(t time.Time) error { f.pushedAt = &t; return nil }

type fakeCreds struct {
	hasToken bool
	cleared  bool
}

func (f *fakeCreds) HasToken() bool { return f.hasToken }
func (f *fakeCreds) Clear() error   { f.cleared = true; return nil }

type fakeNetwork struct{ online bool }

func (f *fakeNetwork) IsOnline() bool { return f.online }

type fakeCoverSource struct {
	pending  []entities.Book
	finished map[uint]string
}

func (f *fakeCoverSource) PendingCoverUploads() ([]entities.Book, error) {
	return f.pending, nil
}

func (f *fakeCoverSource) FinishCoverUpload(id uint, remoteURL string) error {
	if f.finished == nil {
		f.finished = map[uint]string{}
	}
	f.finished[id] = remoteURL
	return nil
}

type fakeCoverFiles struct {
	missing   map[string]bool
	discarded []uint
}

func (f *fakeCoverFiles) Open(path string) (io.ReadCloser, error) {
	if f.missing[path] {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(strings.NewReader("jpeg")), nil
}

func (f *fakeCoverFiles) Discard(bookID uint) error {
	f.discarded = append(f.discarded, bookID)
	return nil
}

type fakePurgeQueue struct {
	enqueued map[string][]uint
	err      error
}

func (f *fakePurgeQueue) EnqueuePurge(table string, ids []uint) error {
	if f.err != nil {
		return f.err
	}
	if f.enqueued == nil {
		f.enqueued = map[string][]uint{}
	}
	f.enqueued[table] = ids
	return nil
}

func newTestEngine(api *fakeAPI, syncers ...TableSyncer) (*Engine, *fakeState, *fakeCreds) {
	state := &fakeState{}
	creds := &fakeCreds{hasToken: true}
	engine := New(Config{
		API:     api,
		Syncers: syncers,
		State:   state,
		Creds:   creds,
		Network: &fakeNetwork{online: true},
	})
	return engine, state, creds
}

func TestEngine_OfflineShortCircuits(t *testing.T) {
	api := &fakeAPI{}
	syncer := &fakeSyncer{table: "books", pending: []syncapi.Change{{LocalID: 1}}}
	engine := New(Config{
		API:     api,
		Syncers: []TableSyncer{syncer},
		State:   &fakeState{},
		Creds:   &fakeCreds{hasToken: true},
		Network: &fakeNetwork{online: false},
	})

	result := engine.Sync(context.Background())

	assert.Equal(t, StatusOffline, result.Status)
	assert.Zero(t, syncer.collected, "no work attempted while offline")
}

func TestEngine_NotSignedIn(t *testing.T) {
	engine, _, creds := newTestEngine(&fakeAPI{})
	creds.hasToken = false

	result := engine.Sync(context.Background())

	assert.Equal(t, StatusError, result.Status)
	assert.True(t, result.AuthExpired)
	assert.False(t, creds.cleared, "nothing to clear when no token exists")
}

func TestEngine_FullRun(t *testing.T) {
	serverTime := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		pullResp: &syncapi.PullResponse{
			Tables: map[string][]syncapi.Record{
				"books":      {{RemoteID: 1}, {RemoteID: 2}},
				"user_books": {{RemoteID: 3}},
			},
			ServerTime: serverTime,
		},
	}

	var applyOrder []string
	books := &fakeSyncer{
		table:      "books",
		pending:    []syncapi.Change{{LocalID: 1}, {LocalID: 2, IsDeleted: true}},
		applyOrder: &applyOrder,
	}
	shelf := &fakeSyncer{table: "user_books", applyOrder: &applyOrder}

	engine, state, _ := newTestEngine(api, books, shelf)
	result := engine.Sync(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Pushed)
	assert.Equal(t, 3, result.Pulled)

	require.Len(t, books.marked, 1)
	assert.Equal(t, int64(101), books.marked[0].Assigned[1])
	assert.Equal(t, []uint{2}, books.marked[0].Acked)
	require.Len(t, books.markedWith, 1)
	assert.Equal(t, books.pending, books.markedWith[0], "the verdict is applied against the pushed snapshot")

	// Tables with nothing dirty are not pushed; pulls still apply parent-first.
	assert.Equal(t, []string{"books"}, api.pushTables)
	assert.Equal(t, []string{"books", "user_books"}, applyOrder)

	require.NotNil(t, state.pulledAt)
	assert.True(t, state.pulledAt.Equal(serverTime), "pull watermark is the server's clock")
	assert.NotNil(t, state.pushedAt)
}

func TestEngine_UnauthorizedClearsCredential(t *testing.T) {
	api := &fakeAPI{pushErr: syncapi.ErrUnauthorized}
	syncer := &fakeSyncer{table: "books", pending: []syncapi.Change{{LocalID: 1}}}

	engine, state, creds := newTestEngine(api, syncer)
	result := engine.Sync(context.Background())

	assert.Equal(t, StatusError, result.Status)
	assert.True(t, result.AuthExpired)
	assert.True(t, creds.cleared)
	assert.Nil(t, state.pulledAt, "pull never ran")
}

func TestEngine_PullFailureKeepsWatermark(t *testing.T) {
	api := &fakeAPI{pullErr: errors.New("boom")}
	syncer := &fakeSyncer{table: "books"}

	engine, state, _ := newTestEngine(api, syncer)
	result := engine.Sync(context.Background())

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "pull")
	assert.Nil(t, state.pulledAt, "failed pull leaves the watermark so the next run re-pulls")
}

func TestEngine_PurgeInline(t *testing.T) {
	api := &fakeAPI{}
	syncer := &fakeSyncer{
		table:     "books",
		pending:   []syncapi.Change{{LocalID: 5, IsDeleted: true}},
		purgeable: []uint{5},
	}

	engine, _, _ := newTestEngine(api, syncer)
	result := engine.Sync(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, syncer.purged, 1)
	assert.Equal(t, []uint{5}, syncer.purged[0])
}

func TestEngine_PurgeViaQueue(t *testing.T) {
	api := &fakeAPI{}
	syncer := &fakeSyncer{
		table:     "books",
		pending:   []syncapi.Change{{LocalID: 5, IsDeleted: true}},
		purgeable: []uint{5},
	}
	queue := &fakePurgeQueue{}

	state := &fakeState{}
	engine := New(Config{
		API:        api,
		Syncers:    []TableSyncer{syncer},
		State:      state,
		Creds:      &fakeCreds{hasToken: true},
		Network:    &fakeNetwork{online: true},
		PurgeQueue: queue,
	})

	result := engine.Sync(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []uint{5}, queue.enqueued["books"])
	assert.Empty(t, syncer.purged, "queued purges are not run inline")
}

func TestEngine_CoverUploadsRunBeforePush(t *testing.T) {
	api := &fakeAPI{uploadURL: "https://server/covers/1.jpg"}
	syncer := &fakeSyncer{table: "books"}
	source := &fakeCoverSource{pending: []entities.Book{
		{ID: 1, CoverStagedPath: "/staged/a.jpg"},
		{ID: 2, CoverStagedPath: "/staged/missing.jpg"},
	}}
	files := &fakeCoverFiles{missing: map[string]bool{"/staged/missing.jpg": true}}

	state := &fakeState{}
	engine := New(Config{
		API:         api,
		Syncers:     []TableSyncer{syncer},
		State:       state,
		Creds:       &fakeCreds{hasToken: true},
		Network:     &fakeNetwork{online: true},
		CoverSource: source,
		CoverFiles:  files,
	})

	result := engine.Sync(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.CoversUploaded, "unreadable staged file is skipped, not fatal")
	assert.Equal(t, "https://server/covers/1.jpg", source.finished[1])
	assert.Equal(t, []uint{1}, files.discarded)
}

func TestEngine_SingleFlight(t *testing.T) {
	api := &fakeAPI{pushDelay: 100 * time.Millisecond}
	syncer := &fakeSyncer{table: "books", pending: []syncapi.Change{{LocalID: 1}}}
	engine, _, _ := newTestEngine(api, syncer)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Sync(context.Background())
		}(i)
	}
	wg.Wait()

	statuses := map[Status]int{}
	for _, r := range results {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[StatusSuccess])
	assert.Equal(t, 1, statuses[StatusAlreadySyncing])
	assert.False(t, engine.IsSyncing())
}

func TestEngine_PublishesResults(t *testing.T) {
	engine, _, _ := newTestEngine(&fakeAPI{}, &fakeSyncer{table: "books"})

	var got []Result
	cancel := engine.Broadcaster().Subscribe(func(r Result) {
		got = append(got, r)
	})
	defer cancel()

	engine.Sync(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, StatusSuccess, got[0].Status)
}
