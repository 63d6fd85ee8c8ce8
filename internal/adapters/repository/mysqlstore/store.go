// Package mysqlstore is the MySQL-backed report store.
package mysqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

// Config holds the configuration for the MySQL connection pool.
type Config struct {
	// DSN format: "user:password@tcp(host:port)/dbname"
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Store implements repository.Store on MySQL.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// normalizeDSN forces time parsing in UTC so DATETIME columns scan into time.Time.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Open creates the pool and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mysql dsn cannot be empty")
	}
	def := DefaultConfig()
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = def.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = def.ConnMaxIdleTime
	}

	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store { return &Store{db: db} }

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func encodeOverrides(o rubric.Overrides) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode overrides: %w", err)
	}
	return b, nil
}

func submissionArgs(sub model.Submission) ([]any, error) {
	overrides, err := encodeOverrides(sub.Overrides)
	if err != nil {
		return nil, err
	}
	var overall sql.NullInt64
	if sub.OverallScore != nil {
		overall = sql.NullInt64{Int64: int64(*sub.OverallScore), Valid: true}
	}
	return []any{
		sub.ID, nullString(sub.BatchID), sub.CandidateName, sub.CandidateEmail, sub.RepoURL,
		sub.HostedURL, sub.VideoURL, overrides, string(sub.Status), string(sub.Stage), sub.Progress,
		nullString(sub.ErrorMessage), string(sub.FailedStage), sub.CancelRequested, overall,
		string(sub.Grade), sub.CreatedAt.UTC(), sub.UpdatedAt.UTC(), nullTime(sub.StartedAt),
		nullTime(sub.ProcessedAt), sub.Duration.Milliseconds(),
	}, nil
}

func scanSubmission(row scanner) (model.Submission, error) {
	var (
		sub                        model.Submission
		batchID, errMsg            sql.NullString
		overrides                  []byte
		status, stage, failedStage string
		grade                      string
		overall                    sql.NullInt64
		startedAt, processedAt     sql.NullTime
		durationMs                 int64
	)
	err := row.Scan(&sub.ID, &batchID, &sub.CandidateName, &sub.CandidateEmail, &sub.RepoURL,
		&sub.HostedURL, &sub.VideoURL, &overrides, &status, &stage, &sub.Progress, &errMsg,
		&failedStage, &sub.CancelRequested, &overall, &grade, &sub.CreatedAt, &sub.UpdatedAt,
		&startedAt, &processedAt, &durationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("scan submission: %w", err)
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &sub.Overrides); err != nil {
			return model.Submission{}, fmt.Errorf("decode overrides: %w", err)
		}
	}
	sub.BatchID = batchID.String
	sub.ErrorMessage = errMsg.String
	sub.Status = model.Status(status)
	sub.Stage = model.Stage(stage)
	sub.FailedStage = model.Stage(failedStage)
	sub.Grade = rubric.Grade(grade)
	if overall.Valid {
		v := int(overall.Int64)
		sub.OverallScore = &v
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	sub.StartedAt = timePtr(startedAt)
	sub.ProcessedAt = timePtr(processedAt)
	sub.Duration = time.Duration(durationMs) * time.Millisecond
	return sub, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSubmission(ctx context.Context, db execer, sub model.Submission) error {
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			batch_id = VALUES(batch_id), candidate_name = VALUES(candidate_name),
			candidate_email = VALUES(candidate_email), repo_url = VALUES(repo_url),
			hosted_url = VALUES(hosted_url), video_url = VALUES(video_url), overrides = VALUES(overrides),
			status = VALUES(status), stage = VALUES(stage), progress = VALUES(progress),
			error_message = VALUES(error_message), failed_stage = VALUES(failed_stage),
			cancel_requested = VALUES(cancel_requested), overall_score = VALUES(overall_score),
			grade = VALUES(grade), updated_at = VALUES(updated_at), started_at = VALUES(started_at),
			processed_at = VALUES(processed_at), duration_ms = VALUES(duration_ms)`, args...)
	if err != nil {
		return fmt.Errorf("upsert submission %s: %w", sub.ID, err)
	}
	return nil
}

// SaveSubmission inserts or replaces sub.
func (s *Store) SaveSubmission(ctx context.Context, sub model.Submission) error {
	defer observe("save_submission", time.Now())
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}
	return upsertSubmission(ctx, s.db, sub)
}

// LoadSubmission returns the submission with id.
func (s *Store) LoadSubmission(ctx context.Context, id string) (model.Submission, error) {
	defer observe("load_submission", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	return scanSubmission(row)
}

// listQuery builds the filtered, paged listing statement.
func listQuery(f model.SubmissionFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	var b strings.Builder
	b.WriteString("SELECT " + submissionColumns + " FROM submissions")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id ASC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		// MySQL requires a LIMIT with OFFSET.
		b.WriteString(" LIMIT 18446744073709551615 OFFSET ?")
		args = append(args, f.Offset)
	}
	return b.String(), args
}

// ListSubmissions returns submissions matching f, newest first.
func (s *Store) ListSubmissions(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, error) {
	defer observe("list_submissions", time.Now())
	if f.Limit < 0 || f.Offset < 0 {
		return nil, repository.ErrInvalidLimit
	}
	query, args := listQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// mutate loads id under a row lock, applies fn and writes the result back.
func (s *Store) mutate(ctx context.Context, id string, fn func(tx *sql.Tx, sub *model.Submission) error) (model.Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Submission{}, fmt.Errorf("begin transaction failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ? FOR UPDATE`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		return model.Submission{}, err
	}
	if err := fn(tx, &sub); err != nil {
		return model.Submission{}, err
	}
	if err := upsertSubmission(ctx, tx, sub); err != nil {
		return model.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Submission{}, fmt.Errorf("commit failed: %w", err)
	}
	return sub, nil
}

// UpdateStatus applies u to the stored submission.
func (s *Store) UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error {
	defer observe("update_status", time.Now())
	_, err := s.mutate(ctx, id, func(_ *sql.Tx, sub *model.Submission) error {
		u.Apply(sub, time.Now().UTC())
		return nil
	})
	return err
}

// RequestCancel flags a non-terminal submission for cancellation.
func (s *Store) RequestCancel(ctx context.Context, id string) (model.Submission, error) {
	defer observe("request_cancel", time.Now())
	return s.mutate(ctx, id, func(_ *sql.Tx, sub *model.Submission) error {
		if !sub.Status.Terminal() {
			sub.CancelRequested = true
			sub.UpdatedAt = time.Now().UTC()
		}
		return nil
	})
}

// SaveReport writes r and completes the submission in one transaction.
func (s *Store) SaveReport(ctx context.Context, id string, r model.ScoreReport) error {
	defer observe("save_report", time.Now())
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.mutate(ctx, id, func(tx *sql.Tx, sub *model.Submission) error {
		repository.Complete(sub, r)
		_, err := tx.ExecContext(ctx, `INSERT INTO score_reports (submission_id, report, created_at)
			VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE report = VALUES(report), created_at = VALUES(created_at)`,
			id, payload, r.GeneratedAt.UTC())
		if err != nil {
			return fmt.Errorf("save report %s: %w", id, err)
		}
		return nil
	})
	return err
}

// LoadReport returns the report for id.
func (s *Store) LoadReport(ctx context.Context, id string) (model.ScoreReport, error) {
	defer observe("load_report", time.Now())
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT report FROM score_reports WHERE submission_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreReport{}, repository.ErrNotFound
	}
	if err != nil {
		return model.ScoreReport{}, fmt.Errorf("load report %s: %w", id, err)
	}
	var r model.ScoreReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return model.ScoreReport{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

// SaveBatch inserts or replaces b.
func (s *Store) SaveBatch(ctx context.Context, b model.Batch) error {
	defer observe("save_batch", time.Now())
	overrides, err := encodeOverrides(b.Overrides)
	if err != nil {
		return err
	}
	var avg sql.NullFloat64
	if b.AverageScore != nil {
		avg = sql.NullFloat64{Float64: *b.AverageScore, Valid: true}
	}
	b.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `INSERT INTO batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), description = VALUES(description), overrides = VALUES(overrides),
			status = VALUES(status), total = VALUES(total), completed = VALUES(completed),
			failed = VALUES(failed), pending = VALUES(pending), average_score = VALUES(average_score),
			updated_at = VALUES(updated_at), started_at = VALUES(started_at), completed_at = VALUES(completed_at)`,
		b.ID, b.Name, nullString(b.Description), overrides, string(b.Status), b.Total, b.Completed,
		b.Failed, b.Pending, avg, b.CreatedAt.UTC(), b.UpdatedAt, nullTime(b.StartedAt), nullTime(b.CompletedAt))
	if err != nil {
		return fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	return nil
}

func scanBatch(row scanner) (model.Batch, error) {
	var (
		b                      model.Batch
		desc                   sql.NullString
		overrides              []byte
		status                 string
		avg                    sql.NullFloat64
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Name, &desc, &overrides, &status, &b.Total, &b.Completed, &b.Failed,
		&b.Pending, &avg, &b.CreatedAt, &b.UpdatedAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Batch{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Batch{}, fmt.Errorf("scan batch: %w", err)
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &b.Overrides); err != nil {
			return model.Batch{}, fmt.Errorf("decode overrides: %w", err)
		}
	}
	b.Description = desc.String
	b.Status = model.BatchStatus(status)
	if avg.Valid {
		v := avg.Float64
		b.AverageScore = &v
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completedAt)
	return b, nil
}

// LoadBatch returns the batch with id.
func (s *Store) LoadBatch(ctx context.Context, id string) (model.Batch, error) {
	defer observe("load_batch", time.Now())
	return scanBatch(s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id))
}

// ListBatches returns every batch, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]model.Batch, error) {
	defer observe("list_batches", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
