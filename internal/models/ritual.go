package models

import "time"

// Ritual is a named, versionable conversational script definition.
// Rituals are created on first reference by slug and never deleted.
type Ritual struct {
	ID          string    `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// RitualConfigVersion is an immutable snapshot of a ritual's configuration.
// Versions are append-only; activation is a metadata flip, never a content edit,
// which makes rollback a plain activate of an older id.
type RitualConfigVersion struct {
	ID            string    `json:"id" db:"id"`
	RitualID      string    `json:"ritual_id" db:"ritual_id"`
	VersionNumber int       `json:"version_number" db:"version_number"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	Label         string    `json:"label,omitempty" db:"label"`
	Notes         string    `json:"notes,omitempty" db:"notes"`
	CreatedBy     string    `json:"created_by,omitempty" db:"created_by"`
	ConfigJSON    string    `json:"-" db:"config_json"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// VersionSummary is the admin API view of a version (config payload omitted)
type VersionSummary struct {
	ID            string    `json:"id"`
	RitualID      string    `json:"ritual_id"`
	VersionNumber int       `json:"version_number"`
	IsActive      bool      `json:"is_active"`
	Label         string    `json:"label,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary converts a full version row to its API summary
func (v *RitualConfigVersion) Summary() VersionSummary {
	return VersionSummary{
		ID:            v.ID,
		RitualID:      v.RitualID,
		VersionNumber: v.VersionNumber,
		IsActive:      v.IsActive,
		Label:         v.Label,
		Notes:         v.Notes,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
}

// CreateVersionRequest is the request body for creating a config version
type CreateVersionRequest struct {
	RitualName        string        `json:"ritual_name"`
	RitualDescription string        `json:"ritual_description,omitempty"`
	Config            *RitualConfig `json:"config"`
	Label             string        `json:"label,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	CreatedBy         string        `json:"created_by,omitempty"`
	MakeActive        *bool         `json:"make_active,omitempty"` // defaults to true
}

// DuplicateVersionRequest is the request body for duplicating a config version
type DuplicateVersionRequest struct {
	Label      string `json:"label,omitempty"`
	Notes      string `json:"notes,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`
	MakeActive *bool  `json:"make_active,omitempty"` // defaults to true
}
