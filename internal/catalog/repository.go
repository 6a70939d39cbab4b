package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

type Repository interface {
	CreateRender(ctx context.Context, render *Render) error
	GetRender(ctx context.Context, id string) (*Render, error)
	ListRenders(ctx context.Context, limit int) ([]*Render, error)
	UpdateRenderStatus(ctx context.Context, id, status, errorMsg string) error
	SaveRenderResult(ctx context.Context, render *Render) error
	SetRenderRemoteKey(ctx context.Context, id, key string) error

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobStage(ctx context.Context, id, stage string, progress int) error
	RetryJob(ctx context.Context, id, errorMsg string) error
	CountJobsByStatus(ctx context.Context, status string) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const renderColumns = `id, title, status, background, script, audio_path, video_path, timeline, total_duration_ms, remote_key, error, created_at, updated_at`

func (r *SQLiteRepository) CreateRender(ctx context.Context, rd *Render) error {
	scriptJSON, err := json.Marshal(rd.Script)
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO renders (id, title, status, background, script, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rd.ID, rd.Title, rd.Status, rd.Background, string(scriptJSON),
		stamp(rd.CreatedAt), stamp(rd.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetRender(ctx context.Context, id string) (*Render, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	rd, err := scanRender(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rd, err
}

func (r *SQLiteRepository) ListRenders(ctx context.Context, limit int) ([]*Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+renderColumns+` FROM renders ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renders []*Render
	for rows.Next() {
		rd, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, rd)
	}
	return renders, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRender(s scanner) (*Render, error) {
	var (
		rd                          Render
		scriptJSON                  string
		audio, video, tl, key, errS sql.NullString
		createdAt, updatedAt        string
	)
	err := s.Scan(&rd.ID, &rd.Title, &rd.Status, &rd.Background, &scriptJSON,
		&audio, &video, &tl, &rd.TotalDurationMs, &key, &errS, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scriptJSON), &rd.Script); err != nil {
		return nil, fmt.Errorf("decode script of render %s: %w", rd.ID, err)
	}
	if tl.Valid && tl.String != "" {
		var t timeline.Timeline
		if err := json.Unmarshal([]byte(tl.String), &t); err != nil {
			return nil, fmt.Errorf("decode timeline of render %s: %w", rd.ID, err)
		}
		rd.Timeline = &t
	}
	rd.AudioPath = audio.String
	rd.VideoPath = video.String
	rd.RemoteKey = key.String
	rd.Error = errS.String
	rd.CreatedAt = parseTime(createdAt)
	rd.UpdatedAt = parseTime(updatedAt)
	return &rd, nil
}

func (r *SQLiteRepository) UpdateRenderStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE renders SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), now(), id)
	return err
}

// SaveRenderResult stores the outputs and timeline and marks the render
// completed.
func (r *SQLiteRepository) SaveRenderResult(ctx context.Context, rd *Render) error {
	var tl sql.NullString
	if rd.Timeline != nil {
		data, err := json.Marshal(rd.Timeline)
		if err != nil {
			return fmt.Errorf("encode timeline: %w", err)
		}
		tl = sql.NullString{String: string(data), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE renders SET status = ?, background = ?, audio_path = ?, video_path = ?, timeline = ?,
			total_duration_ms = ?, error = NULL, updated_at = ?
		WHERE id = ?
	`, RenderStatusCompleted, rd.Background, nullString(rd.AudioPath), nullString(rd.VideoPath), tl,
		rd.TotalDurationMs, now(), rd.ID)
	return err
}

func (r *SQLiteRepository) SetRenderRemoteKey(ctx context.Context, id, key string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE renders SET remote_key = ?, updated_at = ? WHERE id = ?`, key, now(), id)
	return err
}

const jobColumns = `id, type, status, render_id, stage, progress, attempts, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, nullString(j.RenderID), nullString(j.Stage),
		j.Progress, j.Attempts, nullString(j.Error),
		stamp(j.CreatedAt), stamp(j.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var renderID, stage, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&j.ID, &j.Type, &j.Status, &renderID, &stage, &j.Progress, &j.Attempts, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.RenderID = renderID.String
	j.Stage = stage.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobStage(ctx context.Context, id, stage string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, progress = ?, updated_at = ? WHERE id = ?
	`, stage, progress, now(), id)
	return err
}

// RetryJob puts a job back in the queue and counts the attempt.
func (r *SQLiteRepository) RetryJob(ctx context.Context, id, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', attempts = attempts + 1, error = ?, updated_at = ? WHERE id = ?
	`, nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) CountJobsByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE status = ?", status).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// stampFormat is fixed width so stored stamps sort lexically.
const stampFormat = "2006-01-02T15:04:05.000000Z"

func stamp(t time.Time) string {
	return t.UTC().Format(stampFormat)
}

func now() string {
	return stamp(time.Now())
}

// parseTime accepts our RFC3339 stamps and sqlite's datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
