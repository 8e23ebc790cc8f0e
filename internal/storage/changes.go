package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"evalgo.org/serverhub/models"
)

// AppendCommit persists one change commit with its records and returns the
// commit id. The journal is append-only; nothing here ever updates an
// existing row.
func (s *Store) AppendCommit(ctx context.Context, commit *models.ChangeCommit) (int64, error) {
	row := ChangeCommitModel{
		App:       commit.App,
		User:      commit.User,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	for i, rec := range commit.Records {
		recRow := ChangeRecordModel{
			CommitID: row.ID,
			Kind:     string(rec.Kind),
			Hostname: rec.Hostname,
			Payload:  string(rec.Payload),
			Position: i,
		}
		if err := s.db.WithContext(ctx).Create(&recRow).Error; err != nil {
			return 0, err
		}
	}
	s.debugLog("appended commit %d with %d records", row.ID, len(commit.Records))
	return row.ID, nil
}

// GetCommit loads one commit with its records, or nil if absent.
func (s *Store) GetCommit(ctx context.Context, id int64) (*models.ChangeCommit, error) {
	var row ChangeCommitModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	commits, err := s.attachRecords(ctx, []*models.ChangeCommit{commitFromRow(row)})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

// ListCommits returns commits newest-first with their records, plus the
// total count for pagination.
func (s *Store) ListCommits(ctx context.Context, limit, offset int) ([]*models.ChangeCommit, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&ChangeCommitModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []ChangeCommitModel
	err := s.db.WithContext(ctx).
		Order("id DESC").Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	commits := make([]*models.ChangeCommit, len(rows))
	for i, row := range rows {
		commits[i] = commitFromRow(row)
	}
	commits, err = s.attachRecords(ctx, commits)
	if err != nil {
		return nil, 0, err
	}
	return commits, total, nil
}

func commitFromRow(row ChangeCommitModel) *models.ChangeCommit {
	return &models.ChangeCommit{
		ID:        row.ID,
		App:       row.App,
		User:      row.User,
		CreatedAt: row.CreatedAt,
	}
}

func (s *Store) attachRecords(ctx context.Context, commits []*models.ChangeCommit) ([]*models.ChangeCommit, error) {
	if len(commits) == 0 {
		return commits, nil
	}
	ids := make([]int64, len(commits))
	byID := make(map[int64]*models.ChangeCommit, len(commits))
	for i, c := range commits {
		ids[i] = c.ID
		byID[c.ID] = c
	}
	var recRows []ChangeRecordModel
	err := s.db.WithContext(ctx).
		Where("commit_id IN ?", ids).
		Order("commit_id, position").
		Find(&recRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range recRows {
		c := byID[row.CommitID]
		c.Records = append(c.Records, models.ChangeRecord{
			ID:       row.ID,
			Kind:     models.ChangeKind(row.Kind),
			Hostname: row.Hostname,
			Payload:  json.RawMessage(row.Payload),
		})
	}
	return commits, nil
}
