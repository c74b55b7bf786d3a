// Package status implements the MediaFile state machine (§4.7): every
// transition is a single-row update guarded by the row's current status, so
// at-most-one caller can ever observe success for a given transition — the
// database update's affected-row count is the source of truth, not a
// read-then-write race.
package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/clearmedia/internal/database"
)

// ErrStale is returned when the guarded transition's WHERE clause matched
// zero rows: the row was not in the expected status, so another worker or a
// concurrent retry already acted on it.
var ErrStale = errors.New("status: stale transition")

type Manager struct {
	db     *gorm.DB
	logger hclog.Logger
}

func New(db *gorm.DB, logger hclog.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// Claim attempts the PENDING -> PROCESSING transition for id. On success it
// returns the row as it now stands (with RetryCount already bumped for a
// non-first attempt). ErrStale means another worker already claimed it, or
// it is not currently PENDING.
func (m *Manager) Claim(id uint64) (*database.MediaFile, error) {
	var row database.MediaFile
	if err := m.db.First(&row, id).Error; err != nil {
		return nil, fmt.Errorf("claim: load row %d: %w", id, err)
	}

	retryCount := row.RetryCount
	if row.UpdatedAt.After(row.CreatedAt) {
		// Not the row's very first claim attempt; bump retry_count as §4.7
		// requires for every transition into PROCESSING after the first.
		retryCount++
	}

	result := m.db.Model(&database.MediaFile{}).
		Where("id = ? AND status = ?", id, database.StatusPending).
		Updates(map[string]interface{}{
			"status":      database.StatusProcessing,
			"retry_count": retryCount,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("claim: update row %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrStale
	}

	row.Status = database.StatusProcessing
	row.RetryCount = retryCount
	return &row, nil
}

// CompleteResult carries the fields §4.7 requires to be set in the same
// mutation as a PROCESSING -> COMPLETED transition.
type CompleteResult struct {
	NewFilepath   string
	TmdbID        int64
	MediaType     database.MediaType
	ProcessedData string
}

func (m *Manager) Complete(id uint64, res CompleteResult) error {
	return m.transition(id, database.StatusProcessing, map[string]interface{}{
		"status":         database.StatusCompleted,
		"new_filepath":   res.NewFilepath,
		"tmdb_id":        res.TmdbID,
		"media_type":     res.MediaType,
		"processed_data": res.ProcessedData,
		"error_message":  "",
	})
}

func (m *Manager) NoMatch(id uint64, errorMessage string) error {
	return m.transition(id, database.StatusProcessing, map[string]interface{}{
		"status":        database.StatusNoMatch,
		"error_message": errorMessage,
	})
}

func (m *Manager) Conflict(id uint64, newFilepath, errorMessage string) error {
	return m.transition(id, database.StatusProcessing, map[string]interface{}{
		"status":        database.StatusConflict,
		"new_filepath":  newFilepath,
		"error_message": errorMessage,
	})
}

func (m *Manager) Fail(id uint64, errorMessage string) error {
	return m.transition(id, database.StatusProcessing, map[string]interface{}{
		"status":        database.StatusFailed,
		"error_message": errorMessage,
	})
}

// SaveProgress persists a partial result (analyser guess and/or catalogue
// match) without changing status, so a row that later fails still carries
// whatever upstream progress was made in this attempt.
func (m *Manager) SaveProgress(id uint64, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	result := m.db.Model(&database.MediaFile{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("save progress for row %d: %w", id, result.Error)
	}
	return nil
}

// Retry transitions a terminal non-success row back to PENDING so the
// dispatcher can re-enqueue it. retry_count is left untouched; it only ever
// increases on a subsequent Claim.
func (m *Manager) Retry(id uint64) error {
	result := m.db.Model(&database.MediaFile{}).
		Where("id = ? AND status IN ?", id, []database.Status{
			database.StatusFailed, database.StatusNoMatch, database.StatusConflict,
		}).
		Updates(map[string]interface{}{
			"status":     database.StatusPending,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("retry row %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

func (m *Manager) transition(id uint64, from database.Status, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	result := m.db.Model(&database.MediaFile{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("transition row %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		m.logger.Warn("stale transition", "id", id, "from", from, "to", fields["status"])
		return ErrStale
	}
	return nil
}
