package service

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

const maxImportRows = 5_000

// Import columns. name, email and github_url are required.
const (
	columnName      = "name"
	columnEmail     = "email"
	columnGitHubURL = "github_url"
	columnHostedURL = "hosted_url"
	columnVideoURL  = "video_url"
)

var requiredColumns = []string{columnName, columnEmail, columnGitHubURL}

// RowError describes a CSV row that was not imported. Row is the line number
// in the file; the header is line 1.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult reports the outcome of ImportBatchCSV.
type ImportResult struct {
	IDs    []string   `json:"ids"`
	Errors []RowError `json:"errors,omitempty"`
}

type importRow struct {
	line int
	in   SubmissionInput
}

// ImportBatchCSV adds one member to a pending batch per valid CSV row. Rows
// that fail validation are skipped and reported; the import fails only when
// the header is wrong or no row is valid.
func (s *Service) ImportBatchCSV(ctx context.Context, batchID string, r io.Reader) (ImportResult, error) {
	rows, rowErrs, err := parseImport(r)
	if err != nil {
		return ImportResult{}, err
	}
	if len(rows) == 0 {
		return ImportResult{Errors: rowErrs}, noValidRows(rowErrs)
	}

	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	res := ImportResult{Errors: rowErrs}
	_, err = s.tracker.Update(ctx, batchID, func(ctx context.Context) error {
		b, err := s.store.LoadBatch(ctx, batchID)
		if err != nil {
			return storeError(err, "batch")
		}
		if b.Status != model.BatchPending {
			return errors.Newf(errors.Conflict, "cannot import into batch in status %s", b.Status)
		}
		subs := make([]model.Submission, 0, len(rows))
		for _, row := range rows {
			sub, err := s.newMember(row.in, b)
			if err != nil {
				res.Errors = append(res.Errors, RowError{Row: row.line, Message: err.Error()})
				continue
			}
			subs = append(subs, sub)
		}
		if len(subs) == 0 {
			return noValidRows(res.Errors)
		}
		added, err := s.addMembers(ctx, b, subs)
		res.IDs = added.IDs
		return err
	})
	if err != nil {
		return res, refreshError(err)
	}
	s.logger.Info(ctx, "csv imported into batch",
		logger.String("batch_id", batchID),
		logger.Int("added", len(res.IDs)),
		logger.Int("skipped", len(res.Errors)))
	return res, nil
}

// parseImport reads the header and every row. Rows are normalized and
// validated here so the batch lock is held only for the writes.
func parseImport(r io.Reader) ([]importRow, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, errors.BadRequest("csv is empty")
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.InvalidParams, "invalid csv: %v", err)
	}
	cols := columnIndex(header)
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, nil, errors.Newf(errors.InvalidParams, "csv is missing columns: %s", strings.Join(missing, ", "))
	}

	var (
		rows    []importRow
		rowErrs []RowError
	)
	for n := 0; ; n++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, errors.InvalidParams, "invalid csv: %v", err)
		}
		if n == maxImportRows {
			return nil, nil, errors.Newf(errors.InvalidParams, "csv has more than %d rows", maxImportRows)
		}
		line, _ := cr.FieldPos(0)
		in, err := rowInput(record, cols)
		if err == nil {
			in = in.Normalize()
			err = in.Validate()
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: line, Message: err.Error()})
			continue
		}
		rows = append(rows, importRow{line: line, in: in})
	}
	return rows, rowErrs, nil
}

// columnIndex maps lower-cased header names to their positions. A leading
// byte order mark is ignored.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func rowInput(record []string, cols map[string]int) (SubmissionInput, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}
	for _, v := range record {
		if !utf8.ValidString(v) {
			return SubmissionInput{}, errors.BadRequest("row is not valid UTF-8")
		}
	}
	return SubmissionInput{
		CandidateName:  cell(columnName),
		CandidateEmail: cell(columnEmail),
		RepoURL:        cell(columnGitHubURL),
		HostedURL:      cell(columnHostedURL),
		VideoURL:       cell(columnVideoURL),
	}, nil
}

func noValidRows(rowErrs []RowError) error {
	if len(rowErrs) == 0 {
		return errors.BadRequest("csv has no submissions")
	}
	first := rowErrs[0]
	return errors.Newf(errors.InvalidParams, "csv has no valid submissions; row %d: %s", first.Row, first.Message)
}
