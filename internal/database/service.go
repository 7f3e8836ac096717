package database

import "fmt"

// UsageService provides daily per-client quota accounting. The client key
// is opaque: an X-API-Key header when present, the client IP otherwise.
// There is no authentication scheme behind it.
type UsageService struct {
	repo       *Repository
	dailyLimit int
}

// NewUsageService creates a new usage service with the given daily limit
func NewUsageService(repo *Repository, dailyLimit int) *UsageService {
	if dailyLimit <= 0 {
		dailyLimit = 100
	}
	return &UsageService{
		repo:       repo,
		dailyLimit: dailyLimit,
	}
}

// DailyLimit returns the configured per-client daily limit
func (s *UsageService) DailyLimit() int { return s.dailyLimit }

// RequestResult represents the result of processing a request
type RequestResult struct {
	Usage          *UsageStats `json:"usage"`
	CanMakeRequest bool        `json:"can_make_request"`
	RequestLogged  bool        `json:"request_logged"`
}

// ProcessRequest checks the client's quota and, for analyze requests under
// the limit, records the request against it.
func (s *UsageService) ProcessRequest(clientKey, ipAddress, endpoint, method, userAgent string) (*RequestResult, error) {
	usage, err := s.repo.GetDailyUsage(clientKey, s.dailyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to check request limits: %w", err)
	}

	result := &RequestResult{
		Usage:          usage,
		CanMakeRequest: usage.RequestsToday < s.dailyLimit,
	}

	// Only analyze requests consume quota
	if endpoint == "/api/v1/analyze" && result.CanMakeRequest {
		if err := s.repo.LogRequest(clientKey, ipAddress, endpoint, method, userAgent); err != nil {
			return nil, fmt.Errorf("failed to log request: %w", err)
		}
		result.RequestLogged = true
		result.Usage.RequestsToday++
	}

	return result, nil
}

// GetUsageStats returns today's usage for a client
func (s *UsageService) GetUsageStats(clientKey string) (*UsageStats, error) {
	return s.repo.GetDailyUsage(clientKey, s.dailyLimit)
}
