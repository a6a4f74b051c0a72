package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	alarms "sitewatch/internal/alarms/domain"
)

const defaultAlarmsTable = "alarms"

const alarmColumns = `id, ts, site_id, site_name, region, severity, category, message, status,
	details, composite_rule_id, threshold_id, asset_id, reading_id, source,
	acknowledged_at, acknowledged_by, resolved_at, resolved_by, created_at, updated_at`

// AlarmRepository is a Postgres implementation of alarms.AlarmRepository.
// Trigger runs inside a transaction with a row lock so the scheduler and
// operator actions cannot race into two open alarms for one key.
type AlarmRepository struct {
	db    *sql.DB
	table string
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB, opts ...AlarmOption) *AlarmRepository {
	repo := &AlarmRepository{db: db, table: defaultAlarmsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// AlarmOption configures the repository.
type AlarmOption func(*AlarmRepository)

// WithAlarmsTable overrides the default table name.
func WithAlarmsTable(table string) AlarmOption {
	return func(repo *AlarmRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get fetches an alarm by id.
func (r *AlarmRepository) Get(ctx context.Context, id string) (*alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1`, alarmColumns, r.table)
	return scanAlarm(r.db.QueryRowContext(ctx, query, id))
}

// List returns alarms matching the filter, newest first.
func (r *AlarmRepository) List(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	where, args := buildFilter(filter)
	query := fmt.Sprintf(`
SELECT %s
FROM %s
%s
ORDER BY ts DESC`, alarmColumns, r.table, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Trigger creates an alarm for its (rule, asset) key, or refreshes the open
// one in place. An acknowledged alarm stays acknowledged on refresh.
func (r *AlarmRepository) Trigger(ctx context.Context, alarm *alarms.Alarm) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return false, errors.New("alarm repo: nil alarm")
	}
	if alarm.ID == "" || alarm.CompositeRuleID == 0 || alarm.AssetID == 0 {
		return false, errors.New("alarm repo: missing fields")
	}
	details, err := json.Marshal(alarm.Details)
	if err != nil {
		return false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE composite_rule_id = $1 AND asset_id = $2 AND status IN ('active', 'acknowledged')
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE`, alarmColumns, r.table)
	existing, err := scanAlarm(tx.QueryRowContext(ctx, query, alarm.CompositeRuleID, alarm.AssetID))
	if err != nil {
		return false, err
	}

	if existing != nil {
		update := fmt.Sprintf(`
UPDATE %s
SET ts = $1, message = $2, details = $3, reading_id = $4, updated_at = $5
WHERE id = $6`, r.table)
		if _, err := tx.ExecContext(ctx, update,
			alarm.Timestamp, alarm.Message, details, nullableInt64(alarm.ReadingID),
			alarm.UpdatedAt, existing.ID); err != nil {
			return false, err
		}
		if err := tx.Commit(); err != nil {
			return false, err
		}
		refreshed := *existing
		refreshed.Timestamp = alarm.Timestamp
		refreshed.Message = alarm.Message
		refreshed.Details = alarm.Details
		refreshed.ReadingID = alarm.ReadingID
		refreshed.UpdatedAt = alarm.UpdatedAt
		*alarm = refreshed
		return false, nil
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`, r.table, alarmColumns)
	if _, err := tx.ExecContext(ctx, insert,
		alarm.ID, alarm.Timestamp, alarm.SiteID, alarm.SiteName, alarm.Region,
		alarm.Severity, alarm.Category, alarm.Message, alarm.Status, details,
		alarm.CompositeRuleID, nullableInt64(alarm.ThresholdID), alarm.AssetID,
		nullableInt64(alarm.ReadingID), alarm.Source,
		nullableTime(alarm.AcknowledgedAt), nullableString(alarm.AcknowledgedBy),
		nullableTime(alarm.ResolvedAt), nullableString(alarm.ResolvedBy),
		alarm.CreatedAt, alarm.UpdatedAt); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ResolveOpenExcept resolves every open alarm of a rule whose asset is not
// in the matched set, returning the rows it changed.
func (r *AlarmRepository) ResolveOpenExcept(ctx context.Context, ruleID int64, matchedAssets []int64, by string, at time.Time) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if matchedAssets == nil {
		matchedAssets = []int64{}
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, resolved_at = $2, resolved_by = $3, updated_at = $2
WHERE composite_rule_id = $4 AND status IN ('active', 'acknowledged')
	AND asset_id <> ALL($5)
RETURNING %s`, r.table, alarmColumns)

	rows, err := r.db.QueryContext(ctx, query, alarms.StatusResolved, at.UTC(), by, ruleID, matchedAssets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkAcknowledged marks an alarm as acknowledged.
func (r *AlarmRepository) MarkAcknowledged(ctx context.Context, id, by string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, acknowledged_at = $2, acknowledged_by = $3, updated_at = $2
WHERE id = $4`, r.table)
	_, err := r.db.ExecContext(ctx, query, alarms.StatusAcknowledged, at.UTC(), by, id)
	return err
}

// MarkResolved marks an alarm as resolved.
func (r *AlarmRepository) MarkResolved(ctx context.Context, id, by string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, resolved_at = $2, resolved_by = $3, updated_at = $2
WHERE id = $4`, r.table)
	_, err := r.db.ExecContext(ctx, query, alarms.StatusResolved, at.UTC(), by, id)
	return err
}

// Delete removes an alarm row.
func (r *AlarmRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

// Clear archives or deletes alarms matching the filter in one statement.
func (r *AlarmRepository) Clear(ctx context.Context, action alarms.ClearAction, filter alarms.Filter) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("alarm repo: nil db")
	}
	where, args := buildFilter(filter)

	var query string
	switch action {
	case alarms.ClearDelete:
		query = fmt.Sprintf("DELETE FROM %s %s", r.table, where)
	case alarms.ClearArchive:
		set := fmt.Sprintf("SET status = '%s', updated_at = NOW()", alarms.StatusArchived)
		query = fmt.Sprintf("UPDATE %s %s %s", r.table, set, where)
	default:
		return 0, fmt.Errorf("alarm repo: unknown clear action %q", action)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildFilter(filter alarms.Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	} else if !filter.IncludeArchived {
		add("status <> $%d", alarms.StatusArchived)
	}
	if filter.Severity != "" {
		add("severity = $%d", filter.Severity)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.SiteID != 0 {
		add("site_id = $%d", filter.SiteID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := "WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}
	return where, args
}

type alarmScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row alarmScanner) (*alarms.Alarm, error) {
	var alarm alarms.Alarm
	var details []byte
	var thresholdID, readingID sql.NullInt64
	var source, acknowledgedBy, resolvedBy sql.NullString
	var acknowledgedAt, resolvedAt sql.NullTime
	if err := row.Scan(
		&alarm.ID,
		&alarm.Timestamp,
		&alarm.SiteID,
		&alarm.SiteName,
		&alarm.Region,
		&alarm.Severity,
		&alarm.Category,
		&alarm.Message,
		&alarm.Status,
		&details,
		&alarm.CompositeRuleID,
		&thresholdID,
		&alarm.AssetID,
		&readingID,
		&source,
		&acknowledgedAt,
		&acknowledgedBy,
		&resolvedAt,
		&resolvedBy,
		&alarm.CreatedAt,
		&alarm.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &alarm.Details); err != nil {
			return nil, err
		}
	}
	if thresholdID.Valid {
		alarm.ThresholdID = thresholdID.Int64
	}
	if readingID.Valid {
		alarm.ReadingID = readingID.Int64
	}
	if source.Valid {
		alarm.Source = source.String
	}
	if acknowledgedAt.Valid {
		alarm.AcknowledgedAt = acknowledgedAt.Time.UTC()
	}
	if acknowledgedBy.Valid {
		alarm.AcknowledgedBy = acknowledgedBy.String
	}
	if resolvedAt.Valid {
		alarm.ResolvedAt = resolvedAt.Time.UTC()
	}
	if resolvedBy.Valid {
		alarm.ResolvedBy = resolvedBy.String
	}
	alarm.Timestamp = alarm.Timestamp.UTC()
	alarm.CreatedAt = alarm.CreatedAt.UTC()
	alarm.UpdatedAt = alarm.UpdatedAt.UTC()
	return &alarm, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableInt64(value int64) sql.NullInt64 {
	if value == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: value, Valid: true}
}
