package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/fairscan/internal/database"
	"github.com/ZanzyTHEbar/fairscan/internal/errors"
	"github.com/ZanzyTHEbar/fairscan/internal/storage"
)

// DefaultRetentionDays is how long analysis records are kept before the
// retention sweep removes them.
const DefaultRetentionDays = 90

// PrivacyService handles data retention and erasure for stored analyses.
// Submitted content lives only in the audit store; this service is the one
// place that removes it, either on request or when retention expires.
type PrivacyService struct {
	store         *storage.Store
	repo          *database.Repository
	retentionDays int
}

// NewService creates a new privacy service. repo may be nil when the SQLite
// index is unavailable; erasure and retention then operate on files alone.
func NewService(store *storage.Store, repo *database.Repository, retentionDays int) *PrivacyService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &PrivacyService{
		store:         store,
		repo:          repo,
		retentionDays: retentionDays,
	}
}

// HashContent returns the SHA-256 hex digest of content. The index stores
// this digest instead of the text so listings never expose submissions.
func (ps *PrivacyService) HashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// EraseRecord removes a stored analysis and its index row. Unlike routine
// deletion, erasure treats a surviving index row as an error: the caller is
// exercising a right to be forgotten and must know if anything remains.
func (ps *PrivacyService) EraseRecord(analysisID string) error {
	if err := ps.store.Delete(analysisID); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("analysis", analysisID)
		}
		return errors.NewStorageError("failed to erase analysis record", err)
	}

	if ps.repo != nil {
		if _, err := ps.repo.DeleteAnalysis(analysisID); err != nil {
			return errors.NewStorageError("record erased but index row could not be removed", err)
		}
	}

	slog.Info("Analysis record erased", "analysis_id", analysisID)
	return nil
}

// CleanupResult reports what a retention sweep removed
type CleanupResult struct {
	Cutoff          time.Time `json:"cutoff"`
	RecordsDeleted  int       `json:"records_deleted"`
	IndexRowsPurged int64     `json:"index_rows_purged"`
}

// RunRetentionCleanup deletes records older than the retention window
func (ps *PrivacyService) RunRetentionCleanup() (*CleanupResult, error) {
	cutoff := time.Now().AddDate(0, 0, -ps.retentionDays)

	deleted, err := ps.store.DeleteOlderThan(cutoff)
	if err != nil {
		return nil, errors.NewStorageError("retention cleanup failed", err)
	}

	result := &CleanupResult{
		Cutoff:         cutoff,
		RecordsDeleted: deleted,
	}

	if ps.repo != nil {
		purged, err := ps.repo.DeleteIndexOlderThan(cutoff)
		if err != nil {
			// The files are gone; a stale index row only holds scores and a
			// content hash, so log and let the next sweep retry.
			slog.Warn("Retention sweep could not purge index rows", "error", err)
		} else {
			result.IndexRowsPurged = purged
		}
	}

	slog.Info("Retention cleanup completed",
		"cutoff", cutoff.Format(time.RFC3339),
		"records_deleted", result.RecordsDeleted,
		"index_rows_purged", result.IndexRowsPurged,
	)

	return result, nil
}

// StartRetentionLoop runs the retention sweep once a day until ctx is done
func (ps *PrivacyService) StartRetentionLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := ps.RunRetentionCleanup(); err != nil {
					slog.Error("Scheduled retention cleanup failed", "error", err)
				}
			}
		}
	}()
}

// PolicyInfo describes the data handling policy for the policy endpoint
func (ps *PrivacyService) PolicyInfo() map[string]interface{} {
	return map[string]interface{}{
		"retention_days":       ps.retentionDays,
		"content_in_logs":      false,
		"content_in_index":     false,
		"index_stores":         "scores, risk level, SHA-256 content hash",
		"anonymization_method": "SHA-256",
		"erasure_endpoint":     "DELETE /api/v1/analysis/:id",
	}
}

// HandlePolicy serves the data handling policy
func (ps *PrivacyService) HandlePolicy(c *gin.Context) {
	c.JSON(http.StatusOK, ps.PolicyInfo())
}

// HandleCleanup triggers a retention sweep on demand
func (ps *PrivacyService) HandleCleanup(c *gin.Context) {
	result, err := ps.RunRetentionCleanup()
	if err != nil {
		appErr := errors.ToAppError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": appErr.Msg})
		return
	}

	c.JSON(http.StatusOK, result)
}
