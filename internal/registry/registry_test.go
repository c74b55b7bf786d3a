package registry

import (
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

func TestRegisterIfNewCreatesRow(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, hclog.NewNullLogger())

	id, wasNew, err := reg.RegisterIfNew("/s/movie.mkv", 1, 100, 1024)
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.NotZero(t, id)

	row, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, database.StatusPending, row.Status)
	assert.Equal(t, "movie.mkv", row.OriginalFilename)
}

func TestRegisterIfNewIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, hclog.NewNullLogger())

	id1, wasNew1, err := reg.RegisterIfNew("/s/movie.mkv", 1, 100, 1024)
	require.NoError(t, err)
	require.True(t, wasNew1)

	id2, wasNew2, err := reg.RegisterIfNew("/s/movie.mkv", 1, 100, 1024)
	require.NoError(t, err)
	assert.False(t, wasNew2)
	assert.Equal(t, id1, id2)

	var count int64
	require.NoError(t, db.Model(&database.MediaFile{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRegisterIfNewDistinguishesByIdentity(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, hclog.NewNullLogger())

	id1, _, err := reg.RegisterIfNew("/s/a.mkv", 1, 100, 1024)
	require.NoError(t, err)
	id2, _, err := reg.RegisterIfNew("/s/b.mkv", 1, 101, 2048)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}
