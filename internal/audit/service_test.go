package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/fairscan/internal/analysis"
	"github.com/ZanzyTHEbar/fairscan/internal/database"
	apperrors "github.com/ZanzyTHEbar/fairscan/internal/errors"
	"github.com/ZanzyTHEbar/fairscan/internal/storage"
)

func newTestService(t *testing.T, withIndex bool) (*Service, *database.Repository) {
	t.Helper()

	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	var repo *database.Repository
	if withIndex {
		db, err := database.NewDB(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		repo = database.NewRepository(db)
	}

	return NewService(store, repo), repo
}

func analyzeText(t *testing.T, text string) *analysis.AnalysisRecord {
	t.Helper()

	catalog, err := analysis.NewCatalog()
	require.NoError(t, err)
	pipeline := analysis.NewPipeline(catalog)
	record, err := pipeline.Analyze(text, "", nil)
	require.NoError(t, err)
	return record
}

func TestStoreRecordRoundTrip(t *testing.T) {
	service, repo := newTestService(t, true)
	record := analyzeText(t, "He told the team that nurses are naturally caring.")

	location, err := service.StoreRecord(context.Background(), record, "203.0.113.9", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, location)

	stored, err := service.GetRecord(record.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, record.AnalysisID, stored.AnalysisID)
	assert.Equal(t, record.InputText, stored.InputText)

	entry, err := repo.GetAnalysis(record.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, record.BiasDetection.BiasScores.Overall, entry.Overall)
	assert.Equal(t, string(record.FairnessMetrics.RiskLevel), entry.RiskLevel)
	assert.Equal(t, len(record.Hits), entry.HitCount)
	assert.Len(t, entry.ContentHash, 64)
	assert.Equal(t, location, entry.StoragePath)
}

func TestStoreRecordWithoutIndex(t *testing.T) {
	service, _ := newTestService(t, false)
	record := analyzeText(t, "The project plan covers three milestones.")

	location, err := service.StoreRecord(context.Background(), record, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, location)

	stored, err := service.GetRecord(record.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, record.AnalysisID, stored.AnalysisID)
}

func TestGetRecordNotFound(t *testing.T) {
	service, _ := newTestService(t, true)

	_, err := service.GetRecord("no-such-analysis")
	require.Error(t, err)

	appErr := apperrors.ToAppError(err)
	assert.Equal(t, apperrors.CategoryNotFound, appErr.Category)
}

func TestDeleteRecord(t *testing.T) {
	service, repo := newTestService(t, true)
	record := analyzeText(t, "He said the policy was final.")

	_, err := service.StoreRecord(context.Background(), record, "", "")
	require.NoError(t, err)

	require.NoError(t, service.DeleteRecord(record.AnalysisID))

	_, err = service.GetRecord(record.AnalysisID)
	require.Error(t, err)

	_, err = repo.GetAnalysis(record.AnalysisID)
	require.Error(t, err)
}

func TestDeleteRecordNotFound(t *testing.T) {
	service, _ := newTestService(t, true)

	err := service.DeleteRecord("no-such-analysis")
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryNotFound, apperrors.ToAppError(err).Category)
}

func TestListUsesIndex(t *testing.T) {
	service, _ := newTestService(t, true)

	texts := []string{
		"He joined the board as chairman.",
		"The team shipped the release on schedule.",
		"Only top-tier graduates need apply.",
	}
	for _, text := range texts {
		record := analyzeText(t, text)
		_, err := service.StoreRecord(context.Background(), record, "", "")
		require.NoError(t, err)
	}

	response, err := service.List(10, "", "")
	require.NoError(t, err)
	assert.Equal(t, "index", response.Source)
	assert.Equal(t, 3, response.Total)
}

func TestListFallsBackToFileScan(t *testing.T) {
	service, _ := newTestService(t, false)

	record := analyzeText(t, "He said men are better suited for leadership.")
	_, err := service.StoreRecord(context.Background(), record, "", "")
	require.NoError(t, err)

	response, err := service.List(10, "", "")
	require.NoError(t, err)
	assert.Equal(t, "file_scan", response.Source)
	assert.Equal(t, 1, response.Total)
	assert.Equal(t, record.AnalysisID, response.Entries[0].AnalysisID)
	assert.Equal(t, len(record.Hits), response.Entries[0].HitCount)
}

func TestListRiskLevelFilter(t *testing.T) {
	service, _ := newTestService(t, true)

	biased := analyzeText(t, "He said men are better suited for leadership than women.")
	neutral := analyzeText(t, "The quarterly report summarizes revenue by region.")

	for _, record := range []*analysis.AnalysisRecord{biased, neutral} {
		_, err := service.StoreRecord(context.Background(), record, "", "")
		require.NoError(t, err)
	}

	response, err := service.List(10, "", "low")
	require.NoError(t, err)
	for _, entry := range response.Entries {
		assert.Equal(t, "low", entry.RiskLevel)
	}

	found := false
	for _, entry := range response.Entries {
		if entry.AnalysisID == neutral.AnalysisID {
			found = true
		}
	}
	assert.True(t, found, "neutral record should be listed under low risk")
}

func TestGetStats(t *testing.T) {
	service, _ := newTestService(t, true)

	texts := []string{
		"He told her the chairman had decided.",
		"Nurses are naturally caring and emotional.",
		"The meeting starts at nine.",
	}
	for _, text := range texts {
		record := analyzeText(t, text)
		_, err := service.StoreRecord(context.Background(), record, "", "")
		require.NoError(t, err)
	}

	result, err := service.GetStats()
	require.NoError(t, err)

	assert.Equal(t, 3, result.Count)
	assert.GreaterOrEqual(t, result.OverallMean, 0.0)
	assert.LessOrEqual(t, result.OverallMean, 1.0)
	assert.GreaterOrEqual(t, result.OverallP90, result.OverallMedian)

	histogramTotal := 0
	for _, count := range result.RiskHistogram {
		histogramTotal += count
	}
	assert.Equal(t, 3, histogramTotal)

	assert.Contains(t, result.DimensionMeans, "gender_bias")
	assert.Contains(t, result.DimensionMeans, "stereotype")
	assert.Contains(t, result.DimensionMeans, "language_dominance")
}

func TestGetStatsEmptyIndex(t *testing.T) {
	service, _ := newTestService(t, true)

	result, err := service.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Empty(t, result.RiskHistogram)
}

func TestGetStatsWithoutIndex(t *testing.T) {
	service, _ := newTestService(t, false)

	_, err := service.GetStats()
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryStorage, apperrors.ToAppError(err).Category)
}

func TestStatsCacheInvalidatedByWrites(t *testing.T) {
	service, _ := newTestService(t, true)

	first := analyzeText(t, "The agenda covers two topics.")
	_, err := service.StoreRecord(context.Background(), first, "", "")
	require.NoError(t, err)

	before, err := service.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, before.Count)

	second := analyzeText(t, "He said the elderly struggle with new tools.")
	_, err = service.StoreRecord(context.Background(), second, "", "")
	require.NoError(t, err)

	after, err := service.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, after.Count)
}

func TestStatsCache(t *testing.T) {
	cache := NewStatsCache(50 * time.Millisecond)

	_, found := cache.Get()
	assert.False(t, found)

	cache.Set(&Stats{Count: 7})
	cached, found := cache.Get()
	require.True(t, found)
	assert.Equal(t, 7, cached.Count)

	time.Sleep(60 * time.Millisecond)
	_, found = cache.Get()
	assert.False(t, found, "expired entry should miss")

	cache.Set(&Stats{Count: 9})
	cache.Invalidate()
	_, found = cache.Get()
	assert.False(t, found)

	counters := cache.Stats()
	assert.Equal(t, int64(1), counters["hits"])
	assert.Equal(t, int64(1), counters["invalidated"])
}
