package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/medbridge-health/medbridge/models"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Blobstore is the content-addressed store for encrypted record payloads.
// Credentials reference blobs by CID; nothing in here can read the plaintext.
type Blobstore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Blobstore {
	return &Blobstore{db: db}
}

// Put stores data under its CIDv1 (raw codec, sha2-256). Re-putting the same
// bytes bumps the refcount instead of duplicating the row.
func (bs *Blobstore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}

	c := cid.NewCidV1(cid.Raw, hash)

	b := models.Blob{
		Cid:       c.Bytes(),
		CreatedAt: time.Now().UTC(),
		RefCount:  1,
		Value:     data,
	}

	if err := bs.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cid"}},
		DoUpdates: clause.Assignments(map[string]any{"ref_count": gorm.Expr("ref_count + 1")}),
	}).Create(&b).Error; err != nil {
		return cid.Undef, err
	}

	return c, nil
}

func (bs *Blobstore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	var blob models.Blob
	if err := bs.db.WithContext(ctx).Raw("SELECT * FROM blobs WHERE cid = ?", c.Bytes()).Scan(&blob).Error; err != nil {
		return nil, err
	}

	if blob.Value == nil {
		return nil, fmt.Errorf("blob not found: %s", c.String())
	}

	// NewBlockWithCid re-hashes, so a corrupted row fails here instead of
	// handing bad bytes to a hospital.
	b, err := blocks.NewBlockWithCid(blob.Value, c)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (bs *Blobstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	type Result struct {
		Found bool
	}
	var result Result
	if err := bs.db.WithContext(ctx).Raw("SELECT EXISTS(SELECT 1 FROM blobs WHERE cid = ?) AS found", c.Bytes()).Scan(&result).Error; err != nil {
		return false, err
	}
	return result.Found, nil
}
