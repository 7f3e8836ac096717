package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/montanaflynn/stats"

	"github.com/ZanzyTHEbar/fairscan/internal/analysis"
	"github.com/ZanzyTHEbar/fairscan/internal/database"
	apperrors "github.com/ZanzyTHEbar/fairscan/internal/errors"
	"github.com/ZanzyTHEbar/fairscan/internal/resilience"
	"github.com/ZanzyTHEbar/fairscan/internal/storage"
)

// Service owns the audit trail: the JSON file store is the record of
// truth, the SQLite index a derived, queryable view. A nil or failing
// index degrades the service (file-scan listings, no stats) but never
// blocks storing or retrieving records.
type Service struct {
	store *storage.Store
	repo  *database.Repository
	cache *StatsCache
}

// NewService creates the audit service. repo may be nil when the index
// database is unavailable.
func NewService(store *storage.Store, repo *database.Repository) *Service {
	return &Service{
		store: store,
		repo:  repo,
		cache: NewStatsCache(5 * time.Minute),
	}
}

// IndexAvailable reports whether the SQLite index is wired up
func (s *Service) IndexAvailable() bool { return s.repo != nil }

// StoreRecord writes the audit file (retried on transient failure) and
// indexes it. Index failures are logged, not returned: the file copy is
// authoritative.
func (s *Service) StoreRecord(ctx context.Context, record *analysis.AnalysisRecord, ipAddress, userAgent string) (string, error) {
	var location string

	config := resilience.DefaultRetryConfig()
	config.RetryableErrors = func(error) bool { return true }

	err := resilience.RetryWithConfig(ctx, config, func() error {
		var putErr error
		location, putErr = s.store.Put(record)
		return putErr
	})
	if err != nil {
		return "", apperrors.NewStorageError("failed to store audit record", err)
	}

	if s.repo != nil {
		entry := indexEntryFor(record, location, ipAddress, userAgent)
		if err := s.repo.IndexAnalysis(entry); err != nil {
			slog.Warn("Failed to index audit record; file store remains authoritative",
				"analysis_id", record.AnalysisID, "error", err)
		} else {
			s.cache.Invalidate()
		}
	}

	return location, nil
}

// GetRecord retrieves one stored record by id
func (s *Service) GetRecord(analysisID string) (*storage.StoredRecord, error) {
	record, err := s.store.Get(analysisID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("analysis", analysisID)
		}
		return nil, apperrors.NewStorageError("failed to read audit record", err)
	}
	return record, nil
}

// ListEntry is one row of an audit listing: the index summary when the
// index serves it, or a summary derived from the stored file on fallback.
type ListEntry struct {
	AnalysisID    string  `json:"analysis_id"`
	Timestamp     string  `json:"timestamp"`
	Overall       float64 `json:"overall"`
	FairnessScore float64 `json:"fairness_score"`
	RiskLevel     string  `json:"risk_level"`
	Language      string  `json:"language"`
	HitCount      int     `json:"hit_count"`
}

// ListResponse is the audit listing envelope
type ListResponse struct {
	Entries []ListEntry `json:"entries"`
	Total   int         `json:"total"`
	Source  string      `json:"source"` // "index" or "file_scan"
}

// List returns stored analyses newest first. The index serves filtered
// queries; when it is unavailable the file store is scanned instead, so
// listing degrades rather than fails.
func (s *Service) List(limit int, date, riskLevel string) (*ListResponse, error) {
	if s.repo != nil {
		entries, err := s.repo.ListAnalyses(database.ListFilter{Limit: limit, Date: date, RiskLevel: riskLevel})
		if err == nil {
			response := &ListResponse{Entries: make([]ListEntry, 0, len(entries)), Source: "index"}
			for _, e := range entries {
				response.Entries = append(response.Entries, ListEntry{
					AnalysisID:    e.ID,
					Timestamp:     e.CreatedAt.UTC().Format(time.RFC3339),
					Overall:       e.Overall,
					FairnessScore: e.FairnessScore,
					RiskLevel:     e.RiskLevel,
					Language:      e.Language,
					HitCount:      e.HitCount,
				})
			}
			response.Total = len(response.Entries)
			return response, nil
		}
		slog.Warn("Audit index listing failed; falling back to file scan", "error", err)
	}

	return s.listFromFiles(limit, date, riskLevel)
}

func (s *Service) listFromFiles(limit int, date, riskLevel string) (*ListResponse, error) {
	records, err := s.store.List(0)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to scan audit directory", err)
	}

	response := &ListResponse{Entries: []ListEntry{}, Source: "file_scan"}
	for _, record := range records {
		if date != "" && !timestampOnDate(record.Timestamp, date) {
			continue
		}
		if riskLevel != "" && string(record.FairnessMetrics.RiskLevel) != riskLevel {
			continue
		}

		response.Entries = append(response.Entries, ListEntry{
			AnalysisID:    record.AnalysisID,
			Timestamp:     record.Timestamp,
			Overall:       record.BiasDetection.BiasScores.Overall,
			FairnessScore: record.FairnessMetrics.FairnessScore,
			RiskLevel:     string(record.FairnessMetrics.RiskLevel),
			Language:      record.Language,
			HitCount:      len(record.Hits),
		})

		if limit > 0 && len(response.Entries) >= limit {
			break
		}
	}

	response.Total = len(response.Entries)
	return response, nil
}

// DeleteRecord removes the audit file and its index row. Missing index
// rows are not an error; a missing file is.
func (s *Service) DeleteRecord(analysisID string) error {
	if err := s.store.Delete(analysisID); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.NewNotFoundError("analysis", analysisID)
		}
		return apperrors.NewStorageError("failed to delete audit record", err)
	}

	if s.repo != nil {
		if _, err := s.repo.DeleteAnalysis(analysisID); err != nil {
			slog.Warn("Failed to delete audit index entry", "analysis_id", analysisID, "error", err)
		}
		s.cache.Invalidate()
	}

	return nil
}

// Stats summarizes the indexed audit trail
type Stats struct {
	Count          int                `json:"count"`
	OverallMean    float64            `json:"overall_mean"`
	OverallMedian  float64            `json:"overall_median"`
	OverallP90     float64            `json:"overall_p90"`
	RiskHistogram  map[string]int     `json:"risk_histogram"`
	DimensionMeans map[string]float64 `json:"dimension_means"`
}

// GetStats computes aggregate statistics over the indexed records. Cached
// briefly since every dashboard poll hits it.
func (s *Service) GetStats() (*Stats, error) {
	if s.repo == nil {
		return nil, apperrors.NewStorageError("audit index unavailable", sql.ErrConnDone)
	}

	if cached, found := s.cache.Get(); found {
		return cached, nil
	}

	entries, err := s.repo.AllScores()
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read audit index", err)
	}

	result := &Stats{
		Count:          len(entries),
		RiskHistogram:  map[string]int{},
		DimensionMeans: map[string]float64{},
	}

	if len(entries) == 0 {
		s.cache.Set(result)
		return result, nil
	}

	overall := make([]float64, 0, len(entries))
	gender := make([]float64, 0, len(entries))
	stereotype := make([]float64, 0, len(entries))
	dominance := make([]float64, 0, len(entries))

	for _, e := range entries {
		overall = append(overall, e.Overall)
		gender = append(gender, e.GenderBias)
		stereotype = append(stereotype, e.Stereotype)
		dominance = append(dominance, e.LanguageDominance)
		result.RiskHistogram[e.RiskLevel]++
	}

	if result.OverallMean, err = stats.Mean(overall); err != nil {
		return nil, apperrors.NewInternalError("failed to compute overall mean", err)
	}
	if result.OverallMedian, err = stats.Median(overall); err != nil {
		return nil, apperrors.NewInternalError("failed to compute overall median", err)
	}
	if result.OverallP90, err = stats.Percentile(overall, 90); err != nil {
		return nil, apperrors.NewInternalError("failed to compute overall p90", err)
	}

	for name, sample := range map[string][]float64{
		"gender_bias":        gender,
		"stereotype":         stereotype,
		"language_dominance": dominance,
	} {
		mean, err := stats.Mean(sample)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to compute dimension mean", err)
		}
		result.DimensionMeans[name] = mean
	}

	s.cache.Set(result)
	return result, nil
}

// CacheStats exposes the stats cache counters
func (s *Service) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}

// indexEntryFor builds the index row for a record. The content itself
// never reaches the index, only its hash and length.
func indexEntryFor(record *analysis.AnalysisRecord, location, ipAddress, userAgent string) *database.IndexEntry {
	hash := sha256.Sum256([]byte(record.InputText))

	createdAt, err := time.Parse(time.RFC3339, record.Timestamp)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	return &database.IndexEntry{
		ID:                record.AnalysisID,
		GenderBias:        record.BiasDetection.BiasScores.GenderBias,
		Stereotype:        record.BiasDetection.BiasScores.Stereotype,
		LanguageDominance: record.BiasDetection.BiasScores.LanguageDominance,
		Overall:           record.BiasDetection.BiasScores.Overall,
		FairnessScore:     record.FairnessMetrics.FairnessScore,
		RiskLevel:         string(record.FairnessMetrics.RiskLevel),
		Language:          record.Language,
		ContentHash:       hex.EncodeToString(hash[:]),
		ContentLength:     utf8.RuneCountInString(record.InputText),
		HitCount:          len(record.Hits),
		StoragePath:       location,
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
		CreatedAt:         createdAt,
	}
}

// timestampOnDate reports whether an RFC3339 timestamp falls on the given
// YYYY-MM-DD day.
func timestampOnDate(timestamp, date string) bool {
	return len(timestamp) >= len(date) && timestamp[:len(date)] == date
}
