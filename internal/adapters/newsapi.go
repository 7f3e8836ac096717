package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/fairscan/internal/resilience"
)

const defaultNewsAPIBaseURL = "https://newsapi.org/v2"

// NewsArticle is one article as returned by NewsAPI
type NewsArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type newsAPIResponse struct {
	Status       string        `json:"status"`
	TotalResults int           `json:"totalResults"`
	Articles     []NewsArticle `json:"articles"`
	Code         string        `json:"code"`
	Message      string        `json:"message"`
}

// SourceShare is one source's share of the fetched article set
type SourceShare struct {
	Source   string  `json:"source"`
	Articles int     `json:"articles"`
	Share    float64 `json:"share"`
}

// DominanceReport summarizes how concentrated news coverage of a query is
// across sources. Concentration is a Herfindahl-style index: the sum of
// squared source shares, 1/n for perfectly even coverage up to 1.0 for a
// single dominating source.
type DominanceReport struct {
	Query         string        `json:"query"`
	ArticleCount  int           `json:"article_count"`
	SourceCount   int           `json:"source_count"`
	Concentration float64       `json:"concentration"`
	TopSources    []SourceShare `json:"top_sources"`
	GeneratedAt   string        `json:"generated_at"`
}

// NewsAPIAdapter fetches articles from NewsAPI for source-dominance analysis
type NewsAPIAdapter struct {
	apiKey  string
	baseURL string
	pool    *resilience.ConnectionPool
}

// NewNewsAPIAdapter creates a NewsAPI adapter with connection pooling and a
// circuit breaker. An empty apiKey produces a disabled adapter.
func NewNewsAPIAdapter(apiKey string) *NewsAPIAdapter {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})

	pool := resilience.NewConnectionPool(10, 20, 30*time.Second, cb)

	return &NewsAPIAdapter{
		apiKey:  apiKey,
		baseURL: defaultNewsAPIBaseURL,
		pool:    pool,
	}
}

// Enabled reports whether an API key is configured
func (n *NewsAPIAdapter) Enabled() bool {
	return n.apiKey != ""
}

// FetchArticles fetches articles matching the query, newest first
func (n *NewsAPIAdapter) FetchArticles(ctx context.Context, query string, limit int) ([]NewsArticle, error) {
	if !n.Enabled() {
		return nil, fmt.Errorf("newsapi adapter is not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	endpoint := fmt.Sprintf("%s/everything?q=%s&pageSize=%s&sortBy=publishedAt",
		n.baseURL, url.QueryEscape(query), strconv.Itoa(limit))

	resp, err := n.makeRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch articles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("newsapi error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var payload newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode newsapi response: %w", err)
	}

	if payload.Status != "ok" {
		return nil, fmt.Errorf("newsapi error: %s (%s)", payload.Message, payload.Code)
	}

	return payload.Articles, nil
}

// SourceDominance fetches coverage for a query and reports how concentrated
// it is across sources.
func (n *NewsAPIAdapter) SourceDominance(ctx context.Context, query string, limit int) (*DominanceReport, error) {
	articles, err := n.FetchArticles(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	return BuildDominanceReport(query, articles), nil
}

// BuildDominanceReport aggregates per-source shares and the concentration
// index for a set of articles. Split out so it can run on any article set.
func BuildDominanceReport(query string, articles []NewsArticle) *DominanceReport {
	report := &DominanceReport{
		Query:        query,
		ArticleCount: len(articles),
		TopSources:   []SourceShare{},
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	if len(articles) == 0 {
		return report
	}

	counts := map[string]int{}
	for _, article := range articles {
		name := article.Source.Name
		if name == "" {
			name = "unknown"
		}
		counts[name]++
	}

	report.SourceCount = len(counts)

	total := float64(len(articles))
	for source, count := range counts {
		share := float64(count) / total
		report.Concentration += share * share
		report.TopSources = append(report.TopSources, SourceShare{
			Source:   source,
			Articles: count,
			Share:    share,
		})
	}

	// Largest share first, ties broken by name for stable output
	sort.Slice(report.TopSources, func(i, j int) bool {
		if report.TopSources[i].Articles != report.TopSources[j].Articles {
			return report.TopSources[i].Articles > report.TopSources[j].Articles
		}
		return report.TopSources[i].Source < report.TopSources[j].Source
	})

	if len(report.TopSources) > 10 {
		report.TopSources = report.TopSources[:10]
	}

	return report
}

// makeRequest makes an HTTP request to NewsAPI using the connection pool
func (n *NewsAPIAdapter) makeRequest(ctx context.Context, method, endpoint string) (*http.Response, error) {
	headers := map[string]string{
		"X-Api-Key":  n.apiKey,
		"User-Agent": "fairscan/1.0",
	}

	return n.pool.DoRequest(ctx, method, endpoint, headers)
}

// GetPoolStats returns connection pool statistics
func (n *NewsAPIAdapter) GetPoolStats() map[string]interface{} {
	return n.pool.GetStats()
}

// Close closes the connection pool
func (n *NewsAPIAdapter) Close() error {
	return n.pool.Close()
}
