package blobstore

import (
	"context"
	"testing"

	"github.com/medbridge-health/medbridge/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Blobstore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Blob{}))

	return New(db)
}

func TestPutGetRoundTrip(t *testing.T) {
	bs := newTestStore(t)
	ctx := context.Background()

	data := []byte("encrypted record payload")

	c, err := bs.Put(ctx, data)
	require.NoError(t, err)

	b, err := bs.Get(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, data, b.RawData())

	t.Run("cid is deterministic", func(t *testing.T) {
		c2, err := bs.Put(ctx, data)
		require.NoError(t, err)
		assert.Equal(t, c, c2)
	})

	t.Run("reput bumps refcount", func(t *testing.T) {
		var blob models.Blob
		require.NoError(t, bs.db.Raw("SELECT * FROM blobs WHERE cid = ?", c.Bytes()).Scan(&blob).Error)
		assert.Equal(t, 2, blob.RefCount)
	})
}

func TestHas(t *testing.T) {
	bs := newTestStore(t)
	ctx := context.Background()

	c, err := bs.Put(ctx, []byte("some bytes"))
	require.NoError(t, err)

	ok, err := bs.Has(ctx, c)
	require.NoError(t, err)
	assert.True(t, ok)

	missing, err := bs.Put(ctx, []byte("other bytes"))
	require.NoError(t, err)
	require.NoError(t, bs.db.Exec("DELETE FROM blobs WHERE cid = ?", missing.Bytes()).Error)

	ok, err = bs.Has(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}
