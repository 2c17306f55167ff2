package repository

import (
	"context"
	"database/sql"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"checkin-pipeline/constant"
	"checkin-pipeline/entities"
)

// MediaFields are the check-in columns this pipeline owns. Everything else on
// the row (notes written earlier, status set by the surrounding feature) is
// left untouched on update.
type MediaFields struct {
	VideoReference  string
	DurationSeconds int
	SizeBytes       int64
	Notes           *string
}

type CheckinRepository interface {
	GetDB() *gorm.DB
	GetCheckin(ctx context.Context, userID, date string) (*entities.CheckinRecord, error)
	UpsertCheckin(ctx context.Context, userID, date string, fields MediaFields) (*entities.CheckinRecord, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) CheckinRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) GetCheckin(ctx context.Context, userID, date string) (*entities.CheckinRecord, error) {
	record := &entities.CheckinRecord{}
	err := r.GetDB().WithContext(ctx).First(record, "user_id = ? AND date = ?", userID, date).Error
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpsertCheckin creates the day's record with a default status when absent,
// otherwise updates only the media fields in place. The write is a single
// ON CONFLICT statement on (user_id, date), so concurrent first saves for the
// same day degrade to an update instead of a unique violation.
func (r *repo) UpsertCheckin(ctx context.Context, userID, date string, fields MediaFields) (*entities.CheckinRecord, error) {
	record := &entities.CheckinRecord{
		UserID:          userID,
		Date:            date,
		VideoReference:  &fields.VideoReference,
		DurationSeconds: &fields.DurationSeconds,
		SizeBytes:       &fields.SizeBytes,
		Notes:           fields.Notes,
		Status:          constant.CheckinStatusPending,
	}
	err := r.GetDB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(conflictAssignments(fields)),
	}).Create(record).Error
	if err != nil {
		return nil, err
	}
	return record, nil
}

// conflictAssignments is the media-only update set applied when the day's row
// already exists; status and prior notes stay as they were.
func conflictAssignments(fields MediaFields) map[string]interface{} {
	updates := map[string]interface{}{
		"video_reference":  fields.VideoReference,
		"duration_seconds": fields.DurationSeconds,
		"size_bytes":       fields.SizeBytes,
	}
	if fields.Notes != nil {
		updates["notes"] = *fields.Notes
	}
	return updates
}
