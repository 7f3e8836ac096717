package privacy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/fairscan/internal/analysis"
	"github.com/ZanzyTHEbar/fairscan/internal/database"
	"github.com/ZanzyTHEbar/fairscan/internal/errors"
	"github.com/ZanzyTHEbar/fairscan/internal/storage"
)

func newTestPrivacyService(t *testing.T) (*PrivacyService, *storage.Store, *database.Repository) {
	t.Helper()

	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	return NewService(store, repo, 30), store, repo
}

func putRecord(t *testing.T, store *storage.Store, id string) {
	t.Helper()

	record := &analysis.AnalysisRecord{
		AnalysisID: id,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	_, err := store.Put(record)
	require.NoError(t, err)
}

func TestHashContent(t *testing.T) {
	ps, _, _ := newTestPrivacyService(t)

	first := ps.HashContent("some submitted text")
	second := ps.HashContent("some submitted text")
	other := ps.HashContent("different text")

	assert.Len(t, first, 64)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}

func TestEraseRecord(t *testing.T) {
	ps, store, repo := newTestPrivacyService(t)

	putRecord(t, store, "erase-me")
	require.NoError(t, repo.IndexAnalysis(&database.IndexEntry{
		ID:        "erase-me",
		RiskLevel: "low",
		CreatedAt: time.Now(),
	}))

	require.NoError(t, ps.EraseRecord("erase-me"))

	assert.False(t, store.Exists("erase-me"))
	_, err := repo.GetAnalysis("erase-me")
	assert.Error(t, err)
}

func TestEraseRecordNotFound(t *testing.T) {
	ps, _, _ := newTestPrivacyService(t)

	err := ps.EraseRecord("missing")
	require.Error(t, err)

	appErr := errors.ToAppError(err)
	assert.Equal(t, errors.CategoryNotFound, appErr.Category)
}

func TestEraseRecordWithoutIndex(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	ps := NewService(store, nil, 30)
	putRecord(t, store, "file-only")

	require.NoError(t, ps.EraseRecord("file-only"))
	assert.False(t, store.Exists("file-only"))
}

func TestRetentionCleanup(t *testing.T) {
	ps, store, repo := newTestPrivacyService(t)

	// An expired record, written directly so stored_at predates the cutoff
	expired := storage.StoredRecord{
		AnalysisRecord: analysis.AnalysisRecord{AnalysisID: "expired"},
		StoredAt:       time.Now().UTC().AddDate(0, 0, -60).Format(time.RFC3339),
		StorageType:    storage.StorageTypeLocalFile,
	}
	data, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), "expired.json"), data, 0644))
	require.NoError(t, repo.IndexAnalysis(&database.IndexEntry{
		ID:        "expired",
		RiskLevel: "low",
		CreatedAt: time.Now().AddDate(0, 0, -60),
	}))

	putRecord(t, store, "fresh")
	require.NoError(t, repo.IndexAnalysis(&database.IndexEntry{
		ID:        "fresh",
		RiskLevel: "low",
		CreatedAt: time.Now(),
	}))

	result, err := ps.RunRetentionCleanup()
	require.NoError(t, err)

	assert.Equal(t, 1, result.RecordsDeleted)
	assert.Equal(t, int64(1), result.IndexRowsPurged)
	assert.False(t, store.Exists("expired"))
	assert.True(t, store.Exists("fresh"))

	_, err = repo.GetAnalysis("fresh")
	assert.NoError(t, err)
}

func TestPolicyInfo(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	ps := NewService(store, nil, 0)
	info := ps.PolicyInfo()

	assert.Equal(t, DefaultRetentionDays, info["retention_days"])
	assert.Equal(t, false, info["content_in_logs"])
	assert.Equal(t, "SHA-256", info["anonymization_method"])
}
