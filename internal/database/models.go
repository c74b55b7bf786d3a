package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Status is the state-machine position of a MediaFile row.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusNoMatch    Status = "NO_MATCH"
	StatusConflict   Status = "CONFLICT"
)

func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *Status) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = Status(v)
	case []byte:
		*s = Status(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", value)
	}
	return nil
}

// MediaType is the catalogue match's kind, populated once a match is found.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

func (mt MediaType) Value() (driver.Value, error) {
	return string(mt), nil
}

func (mt *MediaType) Scan(value interface{}) error {
	if value == nil {
		*mt = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*mt = MediaType(v)
	case []byte:
		*mt = MediaType(v)
	default:
		return fmt.Errorf("cannot scan %T into MediaType", value)
	}
	return nil
}

// MediaFile is the sole persistent entity: one row per filesystem file
// discovered by the scanner, tracked through analysis, catalogue matching,
// and linking.
type MediaFile struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	// Filesystem identity. (DeviceID, Inode) is a uniqueness key; duplicate
	// discoveries of the same underlying file resolve to the same row.
	DeviceID uint64 `gorm:"not null;uniqueIndex:idx_device_inode" json:"device_id"`
	Inode    uint64 `gorm:"not null;uniqueIndex:idx_device_inode" json:"inode"`

	OriginalFilepath string `gorm:"not null" json:"original_filepath"`
	OriginalFilename string `gorm:"not null;index" json:"original_filename"`
	FileSize         uint64 `gorm:"not null" json:"file_size"`

	Status     Status `gorm:"type:text;not null;default:'PENDING';index" json:"status"`
	RetryCount int    `gorm:"not null;default:0" json:"retry_count"`

	TmdbID    *int64     `json:"tmdb_id,omitempty"`
	MediaType *MediaType `gorm:"type:text" json:"media_type,omitempty"`

	// LLMGuess and ProcessedData hold selected upstream responses as JSON
	// text; stored even on a failed attempt so a later retry or diagnostic
	// read sees whatever progress was made before the step that failed.
	LLMGuess      string `gorm:"type:text" json:"llm_guess,omitempty"`
	ProcessedData string `gorm:"type:text" json:"processed_data,omitempty"`

	NewFilepath  string `json:"new_filepath,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (MediaFile) TableName() string {
	return "media_files"
}
