package types

import "time"

// Content length bounds enforced at the transport boundary, in characters.
const (
	MinContentLength = 1
	MaxContentLength = 10000
)

// Metadata carries optional free-form context about the submitted content
type Metadata struct {
	Source    string     `json:"source,omitempty"`
	Author    string     `json:"author,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	URL       string     `json:"url,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// AnalyzeRequest represents the request structure for the analyze endpoint
type AnalyzeRequest struct {
	Content  string    `json:"content" binding:"required"`
	Language string    `json:"language,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}
