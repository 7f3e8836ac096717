package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// IndexAnalysis inserts the index row for a stored audit record
func (r *Repository) IndexAnalysis(entry *IndexEntry) error {
	stmt, err := r.db.GetPreparedStatement("insert_analysis")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		entry.ID, entry.GenderBias, entry.Stereotype, entry.LanguageDominance,
		entry.Overall, entry.FairnessScore, entry.RiskLevel, entry.Language,
		entry.ContentHash, entry.ContentLength, entry.HitCount,
		entry.StoragePath, entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to index analysis: %w", err)
	}

	return nil
}

// GetAnalysis reads one index entry by analysis id. Returns sql.ErrNoRows
// unchanged when the id is not indexed.
func (r *Repository) GetAnalysis(id string) (*IndexEntry, error) {
	stmt, err := r.db.GetPreparedStatement("get_analysis")
	if err != nil {
		return nil, err
	}

	var entry IndexEntry
	err = stmt.QueryRow(id).Scan(
		&entry.ID, &entry.GenderBias, &entry.Stereotype, &entry.LanguageDominance,
		&entry.Overall, &entry.FairnessScore, &entry.RiskLevel, &entry.Language,
		&entry.ContentHash, &entry.ContentLength, &entry.HitCount,
		&entry.StoragePath, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// DeleteAnalysis removes one index entry, reporting whether a row existed
func (r *Repository) DeleteAnalysis(id string) (bool, error) {
	stmt, err := r.db.GetPreparedStatement("delete_analysis")
	if err != nil {
		return false, err
	}

	result, err := stmt.Exec(id)
	if err != nil {
		return false, fmt.Errorf("failed to delete analysis index entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListFilter narrows an index listing. Zero values mean unfiltered.
type ListFilter struct {
	Limit     int
	Date      string // YYYY-MM-DD, matches created_at's calendar day
	RiskLevel string
}

// ListAnalyses returns index entries newest first, honoring the filter
func (r *Repository) ListAnalyses(filter ListFilter) ([]*IndexEntry, error) {
	query := `SELECT id, gender_bias, stereotype, language_dominance, overall,
		fairness_score, risk_level, language, content_hash, content_length,
		hit_count, storage_path, ip_address, user_agent, created_at
		FROM analysis_index`

	where := []string{}
	args := []interface{}{}

	if filter.Date != "" {
		where = append(where, `date(created_at) = ?`)
		args = append(args, filter.Date)
	}
	if filter.RiskLevel != "" {
		where = append(where, `risk_level = ?`)
		args = append(args, filter.RiskLevel)
	}

	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	entries := []*IndexEntry{}
	for rows.Next() {
		var entry IndexEntry
		if err := rows.Scan(
			&entry.ID, &entry.GenderBias, &entry.Stereotype, &entry.LanguageDominance,
			&entry.Overall, &entry.FairnessScore, &entry.RiskLevel, &entry.Language,
			&entry.ContentHash, &entry.ContentLength, &entry.HitCount,
			&entry.StoragePath, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// AllScores returns every indexed row's score columns for aggregate stats
func (r *Repository) AllScores() ([]*IndexEntry, error) {
	rows, err := r.db.Query(`SELECT id, gender_bias, stereotype, language_dominance, overall, risk_level
		FROM analysis_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	entries := []*IndexEntry{}
	for rows.Next() {
		var entry IndexEntry
		if err := rows.Scan(&entry.ID, &entry.GenderBias, &entry.Stereotype,
			&entry.LanguageDominance, &entry.Overall, &entry.RiskLevel); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// DeleteIndexOlderThan removes index rows older than the cutoff, returning
// how many rows were deleted. Used by retention cleanup.
func (r *Repository) DeleteIndexOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM analysis_index WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired index entries: %w", err)
	}
	return result.RowsAffected()
}

// LogRequest logs an API request under the client's accounting key
func (r *Repository) LogRequest(clientKey, ipAddress, endpoint, method, userAgent string) error {
	stmt, err := r.db.GetPreparedStatement("insert_request_log")
	if err != nil {
		return err
	}

	reqLog := NewRequestLog(clientKey, ipAddress, endpoint, method, userAgent)
	_, err = stmt.Exec(reqLog.ID, reqLog.ClientKey, reqLog.IPAddress,
		reqLog.Endpoint, reqLog.Method, reqLog.UserAgent, reqLog.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log request: %w", err)
	}

	return nil
}

// GetDailyUsage counts a client's requests for the current UTC day
func (r *Repository) GetDailyUsage(clientKey string, dailyLimit int) (*UsageStats, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	stmt, err := r.db.GetPreparedStatement("count_requests_today")
	if err != nil {
		return nil, err
	}

	var count int
	if err := stmt.QueryRow(clientKey, dayStart, dayEnd).Scan(&count); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	return &UsageStats{
		ClientKey:     clientKey,
		RequestsToday: count,
		DailyLimit:    dailyLimit,
		DayStart:      dayStart,
		DayEnd:        dayEnd,
	}, nil
}
