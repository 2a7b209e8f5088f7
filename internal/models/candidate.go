package models

import (
	"time"

	"github.com/google/uuid"
)

type CandidateStatus string

const (
	CandidateActive  CandidateStatus = "active"
	CandidateMerged  CandidateStatus = "merged"
	CandidateDeleted CandidateStatus = "deleted"
)

// Candidate is the canonical record for one person. There is exactly one
// active record per person; records subsumed by a merge stay in the table
// with status "merged" and MergedInto pointing at the survivor. Deletion is
// a status change, never a hard delete, so lineage stays traceable.
type Candidate struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Name            string          `gorm:"type:text" json:"name"`
	Email           string          `gorm:"type:text" json:"email"`
	Phone           string          `gorm:"type:text" json:"phone"`
	NormalizedEmail string          `gorm:"type:text;index" json:"-"`
	NormalizedPhone string          `gorm:"type:text;index" json:"-"`
	NameKey         string          `gorm:"type:text;index" json:"-"`
	Location        string          `gorm:"type:text" json:"location"`
	YearsExperience *float64        `gorm:"type:decimal(4,1)" json:"years_experience,omitempty"`
	CurrentTitle    string          `gorm:"type:text" json:"current_title"`
	CurrentCompany  string          `gorm:"type:text" json:"current_company"`
	Skills          []string        `gorm:"serializer:json" json:"skills"`
	RawText         string          `gorm:"type:text" json:"-"`
	ContentHash     string          `gorm:"type:text;index" json:"-"`
	Source          string          `gorm:"type:text" json:"source"`
	Status          CandidateStatus `gorm:"not null;default:'active';index" json:"status"`
	MergedInto      *uuid.UUID      `gorm:"type:uuid" json:"merged_into,omitempty"`
	Version         int             `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Provenance records where the value of one canonical field came from.
// Rows are append-only: when a merge replaces a field value, the old row is
// kept with Current=false so the losing value is never lost.
type Provenance struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CandidateID uuid.UUID `gorm:"type:uuid;not null;index" json:"candidate_id"`
	Field       string    `gorm:"type:text;not null" json:"field"`
	Value       string    `gorm:"type:text" json:"value"`
	SourceID    uuid.UUID `gorm:"type:uuid;not null" json:"source_id"`
	Excerpt     string    `gorm:"type:text" json:"excerpt"`
	Current     bool      `gorm:"not null;default:true;index" json:"current"`
	IngestedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"ingested_at"`
}

func (Provenance) TableName() string {
	return "provenance"
}

// MergeLineageEdge points from a subsumed record to the record it was merged
// into. Edges are append-only and unique per (from, to) pair; following them
// from any record terminates at exactly one active record.
type MergeLineageEdge struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	FromID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_lineage_from_to" json:"from_id"`
	ToID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_lineage_from_to" json:"to_id"`
	MergedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"merged_at"`
	Notes    string    `gorm:"type:text" json:"notes"`
}

func (MergeLineageEdge) TableName() string {
	return "merge_lineage_edges"
}

// ResumeDocument is one ingested résumé source: the raw text plus, when the
// résumé arrived as a file, where the original was stored. Provenance rows
// point at these.
type ResumeDocument struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CandidateID uuid.UUID `gorm:"type:uuid;index" json:"candidate_id"`
	FileURI     string    `gorm:"type:text" json:"file_uri"`
	FileType    string    `gorm:"type:text" json:"file_type"`
	TextHash    string    `gorm:"type:text;index" json:"text_hash"`
	RawText     string    `gorm:"type:text" json:"-"`
	Source      string    `gorm:"type:text" json:"source"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ResumeDocument) TableName() string {
	return "resume_documents"
}

// AuditLog records mutations that operators may need to answer for later:
// merges, deletions, reindexing.
type AuditLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	EntityType  string    `gorm:"type:text;not null" json:"entity_type"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index" json:"entity_id"`
	Action      string    `gorm:"type:text;not null" json:"action"`
	Changes     string    `gorm:"type:text" json:"changes"`
	PerformedBy string    `gorm:"type:text" json:"performed_by"`
	PerformedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"performed_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
