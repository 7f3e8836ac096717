package database

import (
	"time"

	"github.com/google/uuid"
)

// IndexEntry is one analysis_index row: the queryable summary of a stored
// audit record. It carries a hash of the content, never the content itself.
type IndexEntry struct {
	ID                string    `json:"id" db:"id"`
	GenderBias        float64   `json:"gender_bias" db:"gender_bias"`
	Stereotype        float64   `json:"stereotype" db:"stereotype"`
	LanguageDominance float64   `json:"language_dominance" db:"language_dominance"`
	Overall           float64   `json:"overall" db:"overall"`
	FairnessScore     float64   `json:"fairness_score" db:"fairness_score"`
	RiskLevel         string    `json:"risk_level" db:"risk_level"`
	Language          string    `json:"language" db:"language"`
	ContentHash       string    `json:"content_hash" db:"content_hash"`
	ContentLength     int       `json:"content_length" db:"content_length"`
	HitCount          int       `json:"hit_count" db:"hit_count"`
	StoragePath       string    `json:"storage_path" db:"storage_path"`
	IPAddress         string    `json:"-" db:"ip_address"`
	UserAgent         string    `json:"-" db:"user_agent"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// RequestLog tracks API requests for daily usage accounting. The client key
// is an opaque accounting identifier (API key header or client IP), not an
// authenticated principal.
type RequestLog struct {
	ID        string    `json:"id" db:"id"`
	ClientKey string    `json:"client_key" db:"client_key"`
	IPAddress string    `json:"-" db:"ip_address"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	Method    string    `json:"method" db:"method"`
	UserAgent string    `json:"-" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UsageStats represents one client's usage for the current day
type UsageStats struct {
	ClientKey     string    `json:"client_key"`
	RequestsToday int       `json:"requests_today"`
	DailyLimit    int       `json:"daily_limit"`
	DayStart      time.Time `json:"day_start"`
	DayEnd        time.Time `json:"day_end"`
}

// Remaining returns how many requests the client has left today
func (u *UsageStats) Remaining() int {
	remaining := u.DailyLimit - u.RequestsToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewRequestLog creates a new request log entry
func NewRequestLog(clientKey, ipAddress, endpoint, method, userAgent string) *RequestLog {
	return &RequestLog{
		ID:        uuid.New().String(),
		ClientKey: clientKey,
		IPAddress: ipAddress,
		Endpoint:  endpoint,
		Method:    method,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}
}
