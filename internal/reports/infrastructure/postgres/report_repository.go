package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	reports "sitewatch/internal/reports/domain"
)

const defaultReportsTable = "generated_reports"

const reportColumns = `id, report_type, period_days, filters, data, generated_at`

// ReportRepository is a Postgres implementation of reports.ReportRepository.
type ReportRepository struct {
	db    DBTX
	table string
}

// NewReportRepository constructs a repository.
func NewReportRepository(db DBTX, opts ...ReportOption) *ReportRepository {
	repo := &ReportRepository{db: db, table: defaultReportsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ReportOption configures the repository.
type ReportOption func(*ReportRepository)

// WithReportsTable overrides the default table name.
func WithReportsTable(table string) ReportOption {
	return func(repo *ReportRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a cached report by id.
func (r *ReportRepository) Get(ctx context.Context, id string) (*reports.GeneratedReport, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, reportColumns, r.table)
	return scanReport(r.db.QueryRowContext(ctx, query, id))
}

// List returns cached reports newest first, optionally filtered by type.
func (r *ReportRepository) List(ctx context.Context, reportType reports.ReportType, limit int) ([]reports.GeneratedReport, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report repo: nil db")
	}
	if limit <= 0 {
		limit = 20
	}

	where := ""
	args := []any{limit}
	if reportType != "" {
		where = "WHERE report_type = $2"
		args = append(args, string(reportType))
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
%s
ORDER BY generated_at DESC
LIMIT $1`, reportColumns, r.table, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reports.GeneratedReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *report)
	}
	return result, rows.Err()
}

// Save inserts a generated report.
func (r *ReportRepository) Save(ctx context.Context, report *reports.GeneratedReport) error {
	if r == nil || r.db == nil {
		return errors.New("report repo: nil db")
	}
	if report == nil {
		return errors.New("report repo: nil report")
	}

	filters, err := json.Marshal(report.Filters)
	if err != nil {
		return err
	}
	data, err := json.Marshal(report.Report)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, report_type, period_days, filters, data, generated_at)
VALUES ($1, $2, $3, $4, $5, $6)`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		report.ID,
		string(report.Type),
		report.PeriodDays,
		filters,
		data,
		report.GeneratedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(scanner rowScanner) (*reports.GeneratedReport, error) {
	var (
		report  reports.GeneratedReport
		filters []byte
		data    []byte
	)
	err := scanner.Scan(
		&report.ID,
		&report.Type,
		&report.PeriodDays,
		&filters,
		&data,
		&report.GeneratedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &report.Filters); err != nil {
			return nil, fmt.Errorf("report repo: decode filters: %w", err)
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &report.Report); err != nil {
			return nil, fmt.Errorf("report repo: decode data: %w", err)
		}
	}
	return &report, nil
}
