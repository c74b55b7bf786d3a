package status

import (
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/clearmedia/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.MediaFile{}))
	return db
}

func insertPending(t *testing.T, db *gorm.DB) uint64 {
	row := database.MediaFile{
		DeviceID: 1, Inode: 1, OriginalFilepath: "/s/a.mkv", OriginalFilename: "a.mkv",
		Status: database.StatusPending,
	}
	require.NoError(t, db.Create(&row).Error)
	return row.ID
}

func TestClaimTransitionsPendingToProcessing(t *testing.T) {
	db := newTestDB(t)
	m := New(db, hclog.NewNullLogger())
	id := insertPending(t, db)

	row, err := m.Claim(id)
	require.NoError(t, err)
	assert.Equal(t, database.StatusProcessing, row.Status)
	assert.Equal(t, 0, row.RetryCount)
}

func TestClaimOnlyOneWorkerWins(t *testing.T) {
	db := newTestDB(t)
	m := New(db, hclog.NewNullLogger())
	id := insertPending(t, db)

	var wg sync.WaitGroup
	successes := 0
	var mu sync.Mutex

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Claim(id); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestCompleteRequiresProcessingStatus(t *testing.T) {
	db := newTestDB(t)
	m := New(db, hclog.NewNullLogger())
	id := insertPending(t, db)

	err := m.Complete(id, CompleteResult{NewFilepath: "/t/x.mkv", TmdbID: 1})
	assert.ErrorIs(t, err, ErrStale)

	_, err = m.Claim(id)
	require.NoError(t, err)

	err = m.Complete(id, CompleteResult{NewFilepath: "/t/x.mkv", TmdbID: 1, MediaType: database.MediaTypeMovie})
	require.NoError(t, err)

	var row database.MediaFile
	require.NoError(t, db.First(&row, id).Error)
	assert.Equal(t, database.StatusCompleted, row.Status)
	assert.Equal(t, "/t/x.mkv", row.NewFilepath)
}

func TestRetryOnCompletedIsNoOp(t *testing.T) {
	db := newTestDB(t)
	m := New(db, hclog.NewNullLogger())
	id := insertPending(t, db)

	_, err := m.Claim(id)
	require.NoError(t, err)
	require.NoError(t, m.Complete(id, CompleteResult{NewFilepath: "/t/x.mkv", MediaType: database.MediaTypeMovie}))

	err = m.Retry(id)
	assert.ErrorIs(t, err, ErrStale)
}

func TestRetryReclaimBumpsRetryCount(t *testing.T) {
	db := newTestDB(t)
	m := New(db, hclog.NewNullLogger())
	id := insertPending(t, db)

	_, err := m.Claim(id)
	require.NoError(t, err)
	require.NoError(t, m.Fail(id, "boom"))

	require.NoError(t, m.Retry(id))

	row, err := m.Claim(id)
	require.NoError(t, err)
	assert.Equal(t, 1, row.RetryCount)
}
