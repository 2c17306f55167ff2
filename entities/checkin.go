package entities

import (
	"time"

	"github.com/google/uuid"

	"checkin-pipeline/constant"
)

// CheckinRecord is the per-user-per-date row a successful upload reconciles
// into. Uniqueness of (user_id, date) is the only write protection the row
// needs: updates are idempotent merges.
type CheckinRecord struct {
	ID              uuid.UUID              `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID          string                 `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:unique_user_date"`
	Date            string                 `json:"date" gorm:"type:varchar(10);not null;uniqueIndex:unique_user_date"`
	VideoReference  *string                `json:"video_reference" gorm:"type:varchar(500)"`
	DurationSeconds *int                   `json:"duration_seconds" gorm:"type:integer"`
	SizeBytes       *int64                 `json:"size_bytes" gorm:"type:bigint"`
	Notes           *string                `json:"notes" gorm:"type:text"`
	Status          constant.CheckinStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	CreatedAt       time.Time              `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time              `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (CheckinRecord) TableName() string {
	return "checkins"
}
