package models

import (
	"time"
)

// FileDescriptor is what the presentation layer hands to ingestion for one selected file.
// ClauseCount is an optional eager estimate from the processing collaborator.
type FileDescriptor struct {
	Name        string `json:"name"`
	MediaType   string `json:"mediaType"`
	SizeBytes   int64  `json:"sizeBytes"`
	StorageKey  string `json:"storageKey,omitempty"`
	ClauseCount int    `json:"clauseCount,omitempty"`
}

// Document represents a user-submitted file tracked by the registry.
type Document struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	MediaType       string    `json:"mediaType"`
	SizeBytes       int64     `json:"sizeBytes"`
	StorageKey      string    `json:"storageKey,omitempty"`
	UploadedAt      time.Time `json:"uploadedAt"`
	Processed       bool      `json:"processed"`
	ClauseCount     int       `json:"clauseCount"`
	ProcessingError string    `json:"processingError,omitempty"`
}

// Source is a citation pointing from a response back to a document clause.
// Page is nil when the collaborator does not know it.
type Source struct {
	Document  string  `json:"document"`
	Clause    string  `json:"clause"`
	Relevance float64 `json:"relevance"`
	Page      *int    `json:"page,omitempty"`
}

// QueryResponse is the terminal artifact of one orchestration cycle.
type QueryResponse struct {
	Query            string    `json:"query"`
	Answer           string    `json:"answer"`
	Confidence       float64   `json:"confidence"`
	Sources          []Source  `json:"sources"`
	Reasoning        string    `json:"reasoning"`
	Timestamp        time.Time `json:"timestamp"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
}

// Clause is one extracted passage of a processed document.
type Clause struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"documentId"`
	Label      string    `db:"label" json:"label"`
	Text       string    `db:"text" json:"text"`
	Page       int       `db:"page" json:"page,omitempty"`
	Position   int       `db:"position" json:"position"`
	TokenCount int       `db:"token_count" json:"tokenCount"`
	Embedding  []float32 `db:"embedding" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ScoredClause is a search hit from a clause store.
type ScoredClause struct {
	Clause
	Score float64 `json:"score"`
}

// Metrics is the aggregate view the system metrics panel renders.
type Metrics struct {
	DocumentsCount int `json:"documentsCount"`
	ProcessedCount int `json:"processedCount"`
	TotalClauses   int `json:"totalClauses"`
}

// IntPtr is a helper for optional pages.
func IntPtr(v int) *int {
	return &v
}
