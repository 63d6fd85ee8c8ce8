package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeRow assigns values positionally, standing in for a driver row.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func TestNormalizeDSN(t *testing.T) {
	Convey("DSNs are forced to parse times in UTC", t, func() {
		dsn, err := normalizeDSN("user:pass@tcp(localhost:3306)/intern")
		So(err, ShouldBeNil)
		So(dsn, ShouldContainSubstring, "parseTime=true")
		So(dsn, ShouldContainSubstring, "tcp(localhost:3306)/intern")

		_, err = normalizeDSN("not a dsn")
		So(err, ShouldNotBeNil)
	})
}

func TestOpenValidation(t *testing.T) {
	Convey("Open rejects a missing DSN before dialing", t, func() {
		_, err := Open(context.Background(), Config{})
		So(err, ShouldNotBeNil)

		_, err = Open(context.Background(), Config{DSN: "missing-slash"})
		So(err, ShouldNotBeNil)
	})
}

func TestListQuery(t *testing.T) {
	Convey("Listing queries carry filters and paging as placeholders", t, func() {
		q, args := listQuery(model.SubmissionFilter{})
		So(q, ShouldNotContainSubstring, "WHERE")
		So(q, ShouldEndWith, "ORDER BY created_at DESC, id ASC")
		So(args, ShouldBeEmpty)

		q, args = listQuery(model.SubmissionFilter{BatchID: "b1", Status: model.StatusCompleted, Limit: 10, Offset: 20})
		So(q, ShouldContainSubstring, "WHERE batch_id = ? AND status = ?")
		So(q, ShouldEndWith, "LIMIT ? OFFSET ?")
		So(args, ShouldResemble, []any{"b1", "completed", 10, 20})

		q, args = listQuery(model.SubmissionFilter{Offset: 5})
		So(q, ShouldContainSubstring, "OFFSET ?")
		So(args, ShouldResemble, []any{5})
	})
}

func TestSubmissionRowRoundTrip(t *testing.T) {
	Convey("A submission survives the column mapping", t, func() {
		started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		processed := started.Add(90 * time.Second)
		score := 77
		in := model.Submission{
			ID: "s1", BatchID: "b1", CandidateName: "Ada", CandidateEmail: "ada@example.com",
			RepoURL: "https://github.com/ada/app", HostedURL: "https://ada.dev",
			Overrides:    rubric.Overrides{RulesText: "use PDO"},
			Status:       model.StatusCompleted,
			Stage:        model.StageCompleted,
			Progress:     100,
			OverallScore: &score,
			Grade:        rubric.GradeFor(score),
			CreatedAt:    started.Add(-time.Minute),
			UpdatedAt:    processed,
			StartedAt:    &started,
			ProcessedAt:  &processed,
			Duration:     90 * time.Second,
		}
		args, err := submissionArgs(in)
		So(err, ShouldBeNil)
		So(len(args), ShouldEqual, len(strings.Split(submissionColumns, ",")))

		out, err := scanSubmission(fakeRow{values: args})
		So(err, ShouldBeNil)
		So(out, ShouldResemble, in)
	})

	Convey("A missing row maps to ErrNotFound", t, func() {
		_, err := scanSubmission(fakeRow{err: sql.ErrNoRows})
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		_, err = scanBatch(fakeRow{err: sql.ErrNoRows})
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
	})
}

func TestSchema(t *testing.T) {
	Convey("The schema creates every table idempotently", t, func() {
		So(len(schema), ShouldEqual, 3)
		for _, stmt := range schema {
			So(stmt, ShouldStartWith, "CREATE TABLE IF NOT EXISTS")
		}
	})
}
