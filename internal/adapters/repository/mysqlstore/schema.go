package mysqlstore

// schema is applied by EnsureSchema. Reports and overrides are JSON columns.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id               VARCHAR(64)  NOT NULL PRIMARY KEY,
		batch_id         VARCHAR(64)  NULL,
		candidate_name   VARCHAR(255) NOT NULL,
		candidate_email  VARCHAR(255) NOT NULL,
		repo_url         VARCHAR(512) NOT NULL,
		hosted_url       VARCHAR(512) NOT NULL DEFAULT '',
		video_url        VARCHAR(512) NOT NULL DEFAULT '',
		overrides        JSON         NULL,
		status           VARCHAR(16)  NOT NULL,
		stage            VARCHAR(16)  NOT NULL,
		progress         INT          NOT NULL DEFAULT 0,
		error_message    TEXT         NULL,
		failed_stage     VARCHAR(16)  NOT NULL DEFAULT '',
		cancel_requested BOOLEAN      NOT NULL DEFAULT FALSE,
		overall_score    INT          NULL,
		grade            VARCHAR(4)   NOT NULL DEFAULT '',
		created_at       DATETIME(6)  NOT NULL,
		updated_at       DATETIME(6)  NOT NULL,
		started_at       DATETIME(6)  NULL,
		processed_at     DATETIME(6)  NULL,
		duration_ms      BIGINT       NOT NULL DEFAULT 0,
		INDEX idx_submissions_batch (batch_id),
		INDEX idx_submissions_status (status),
		INDEX idx_submissions_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS score_reports (
		submission_id VARCHAR(64) NOT NULL PRIMARY KEY,
		report        JSON        NOT NULL,
		created_at    DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS batches (
		id            VARCHAR(64)  NOT NULL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		description   TEXT         NULL,
		overrides     JSON         NULL,
		status        VARCHAR(16)  NOT NULL,
		total         INT          NOT NULL DEFAULT 0,
		completed     INT          NOT NULL DEFAULT 0,
		failed        INT          NOT NULL DEFAULT 0,
		pending       INT          NOT NULL DEFAULT 0,
		average_score DOUBLE       NULL,
		created_at    DATETIME(6)  NOT NULL,
		updated_at    DATETIME(6)  NOT NULL,
		started_at    DATETIME(6)  NULL,
		completed_at  DATETIME(6)  NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

const submissionColumns = `id, batch_id, candidate_name, candidate_email, repo_url, hosted_url, video_url,
	overrides, status, stage, progress, error_message, failed_stage, cancel_requested,
	overall_score, grade, created_at, updated_at, started_at, processed_at, duration_ms`

const batchColumns = `id, name, description, overrides, status, total, completed, failed, pending,
	average_score, created_at, updated_at, started_at, completed_at`
