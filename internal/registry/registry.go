// Package registry is the persistent mapping from filesystem identity to a
// MediaFile row (§4.2): register_if_new keeps registration idempotent under
// concurrent scans via the (device_id, inode) uniqueness constraint.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/clearmedia/internal/database"
)

// Registry is a thin gorm-backed wrapper around the media_files table's
// identity half; the status half lives in internal/status.
type Registry struct {
	db     *gorm.DB
	logger hclog.Logger
}

func New(db *gorm.DB, logger hclog.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

// RegisterIfNew inserts a new PENDING row for (deviceID, inode) if one does
// not already exist, returning the row id and whether it was newly created.
// On a uniqueness conflict from a concurrent scan it falls back to a lookup
// and returns the existing id with wasNew=false.
func (r *Registry) RegisterIfNew(path string, deviceID, inode, size uint64) (id uint64, wasNew bool, err error) {
	now := time.Now()
	row := database.MediaFile{
		DeviceID:         deviceID,
		Inode:            inode,
		OriginalFilepath: path,
		OriginalFilename: filepath.Base(path),
		FileSize:         size,
		Status:           database.StatusPending,
		RetryCount:       0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = r.db.Create(&row).Error
	if err == nil {
		return row.ID, true, nil
	}

	if !isUniqueConstraintErr(err) {
		return 0, false, fmt.Errorf("register media file: %w", err)
	}

	var existing database.MediaFile
	lookupErr := r.db.Where("device_id = ? AND inode = ?", deviceID, inode).First(&existing).Error
	if lookupErr != nil {
		return 0, false, fmt.Errorf("lookup existing media file after conflict: %w", lookupErr)
	}

	r.logger.Debug("discovery matched an existing row", "path", path, "id", existing.ID)
	return existing.ID, false, nil
}

// Get loads a row by id.
func (r *Registry) Get(id uint64) (*database.MediaFile, error) {
	var row database.MediaFile
	if err := r.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get media file %d: %w", id, err)
	}
	return &row, nil
}

// isUniqueConstraintErr is driver-agnostic on purpose: sqlite and postgres
// phrase the same violation differently, and gorm does not normalise it.
func isUniqueConstraintErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
