package models

import (
	"time"

	"github.com/google/uuid"
)

type IngestionStatus string

const (
	IngestionReceived      IngestionStatus = "received"
	IngestionExtracted     IngestionStatus = "extracted"
	IngestionDedupResolved IngestionStatus = "dedup_resolved"
	IngestionIndexed       IngestionStatus = "indexed"
	IngestionSearchable    IngestionStatus = "searchable"
	IngestionFailed        IngestionStatus = "failed"
)

// IngestionJob tracks one résumé through the pipeline. Every transition is
// timestamped so the received-to-searchable window can be measured against
// the freshness target.
type IngestionJob struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Status          IngestionStatus `gorm:"not null;default:'received';index" json:"status"`
	RawText         string          `gorm:"type:text" json:"-"`
	ContentHash     string          `gorm:"type:text;index" json:"-"`
	Source          string          `gorm:"type:text" json:"source"`
	FileURI         string          `gorm:"type:text" json:"file_uri,omitempty"`
	FileType        string          `gorm:"type:text" json:"file_type,omitempty"`
	FactsJSON       string          `gorm:"type:text" json:"-"`
	CandidateID     *uuid.UUID      `gorm:"type:uuid" json:"candidate_id,omitempty"`
	MergedInto      *uuid.UUID      `gorm:"type:uuid" json:"merged_into,omitempty"`
	Attempts        int             `gorm:"not null;default:0" json:"attempts"`
	ErrorMessage    *string         `gorm:"type:text" json:"error_message,omitempty"`
	ReceivedAt      time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"received_at"`
	ExtractedAt     *time.Time      `json:"extracted_at,omitempty"`
	DedupResolvedAt *time.Time      `json:"dedup_resolved_at,omitempty"`
	IndexedAt       *time.Time      `json:"indexed_at,omitempty"`
	SearchableAt    *time.Time      `json:"searchable_at,omitempty"`
	UpdatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// Terminal reports whether the job has reached a state the pipeline will not
// advance past.
func (j *IngestionJob) Terminal() bool {
	return j.Status == IngestionSearchable || j.Status == IngestionFailed
}

// FreshnessLag is the time from receipt to searchability, or zero if the job
// never became searchable.
func (j *IngestionJob) FreshnessLag() time.Duration {
	if j.SearchableAt == nil {
		return 0
	}
	return j.SearchableAt.Sub(j.ReceivedAt)
}
