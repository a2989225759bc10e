package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ritualflow/internal/database"
	"ritualflow/internal/logging"
	"ritualflow/internal/models"
)

// RitualStore is the durable configuration repository for rituals and their
// versioned config snapshots. All writes that touch the is_active flag run
// inside a single transaction so readers never observe two active versions
// for one ritual, or zero active versions after a makeActive create.
type RitualStore struct {
	db *database.DB

	// invalidate is called after any write that changes which version is
	// active for a slug. Set by the resolver at wiring time.
	invalidate func(slug string)
}

// NewRitualStore creates a new ritual configuration store
func NewRitualStore(db *database.DB) *RitualStore {
	return &RitualStore{db: db}
}

// OnActiveChange registers a hook invoked (with the ritual slug) after any
// activation change commits. Used by the config resolver to drop its cache.
func (s *RitualStore) OnActiveChange(hook func(slug string)) {
	s.invalidate = hook
}

func (s *RitualStore) notifyActiveChange(slug string) {
	if s.invalidate != nil {
		s.invalidate(slug)
	}
}

// EnsureRitual upserts a ritual by slug. If the ritual already exists its
// name and description are updated in place; creation is idempotent.
func (s *RitualStore) EnsureRitual(ctx context.Context, slug, name, description string) (*models.Ritual, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ritual, err := s.ensureRitualTx(ctx, tx, slug, name, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ritual upsert: %w", err)
	}
	return ritual, nil
}

// ensureRitualTx performs the upsert inside an existing transaction.
// Select-then-insert is portable across MySQL and SQLite; the unique slug
// constraint backs it, and the one retry covers a concurrent first insert.
func (s *RitualStore) ensureRitualTx(ctx context.Context, tx *sql.Tx, slug, name, description string) (*models.Ritual, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ritual, err := scanRitual(tx.QueryRowContext(ctx,
			"SELECT id, slug, name, description, created_at, updated_at FROM rituals WHERE slug = ?", slug))
		if err == nil {
			if ritual.Name != name || ritual.Description != description {
				now := time.Now().UTC()
				if _, err := tx.ExecContext(ctx,
					"UPDATE rituals SET name = ?, description = ?, updated_at = ? WHERE id = ?",
					name, description, now, ritual.ID); err != nil {
					return nil, fmt.Errorf("failed to update ritual: %w", err)
				}
				ritual.Name = name
				ritual.Description = description
				ritual.UpdatedAt = now
			}
			return ritual, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to look up ritual: %w", err)
		}

		now := time.Now().UTC()
		ritual = &models.Ritual{
			ID:          uuid.NewString(),
			Slug:        slug,
			Name:        name,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO rituals (id, slug, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			ritual.ID, ritual.Slug, ritual.Name, ritual.Description, ritual.CreatedAt, ritual.UpdatedAt)
		if err == nil {
			return ritual, nil
		}
		// Unique violation on slug: another writer got there first, re-select.
		slog.Debug("ritual insert lost race, retrying select", "slug", slug, "error", err)
	}
	return nil, fmt.Errorf("failed to upsert ritual %q", slug)
}

// CreateVersion validates the config, ensures the ritual exists, computes the
// next version number, and inserts the new snapshot. When makeActive is true
// the deactivate-then-insert-active sequence runs as one unit of work.
func (s *RitualStore) CreateVersion(ctx context.Context, slug, name, description string, cfg *models.RitualConfig, label, notes, createdBy string, makeActive bool) (*models.RitualConfigVersion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: config not serializable: %v", ErrValidation, err)
	}

	version, err := s.createVersionRaw(ctx, slug, name, description, string(payload), label, notes, createdBy, makeActive)
	if err != nil {
		return nil, err
	}

	if makeActive {
		s.notifyActiveChange(slug)
	}
	return version, nil
}

// createVersionRaw inserts an already-serialized config payload. Shared by
// CreateVersion and DuplicateVersion so a duplicate copies the source bytes
// verbatim instead of re-marshalling.
func (s *RitualStore) createVersionRaw(ctx context.Context, slug, name, description, configJSON, label, notes, createdBy string, makeActive bool) (*models.RitualConfigVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ritual, err := s.ensureRitualTx(ctx, tx, slug, name, description)
	if err != nil {
		return nil, err
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version_number), 0) FROM ritual_config_versions WHERE ritual_id = ?",
		ritual.ID).Scan(&maxVersion); err != nil {
		return nil, fmt.Errorf("failed to compute next version number: %w", err)
	}

	if makeActive {
		if _, err := tx.ExecContext(ctx,
			"UPDATE ritual_config_versions SET is_active = FALSE WHERE ritual_id = ? AND is_active = TRUE",
			ritual.ID); err != nil {
			return nil, fmt.Errorf("failed to deactivate current version: %w", err)
		}
	}

	version := &models.RitualConfigVersion{
		ID:            uuid.NewString(),
		RitualID:      ritual.ID,
		VersionNumber: maxVersion + 1,
		IsActive:      makeActive,
		Label:         label,
		Notes:         notes,
		CreatedBy:     createdBy,
		ConfigJSON:    configJSON,
		CreatedAt:     time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ritual_config_versions
			(id, ritual_id, version_number, is_active, label, notes, created_by, config_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.RitualID, version.VersionNumber, version.IsActive,
		version.Label, version.Notes, version.CreatedBy, version.ConfigJSON, version.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit version create: %w", err)
	}

	logging.WithRitual(slug).Info("config version created",
		"version", version.VersionNumber, "active", makeActive)
	return version, nil
}

// ListVersions returns all versions for a ritual, newest version number
// first. An unknown slug yields an empty list, not an error.
func (s *RitualStore) ListVersions(ctx context.Context, slug string) ([]*models.RitualConfigVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.ritual_id, v.version_number, v.is_active, v.label, v.notes, v.created_by, v.config_json, v.created_at
		 FROM ritual_config_versions v
		 JOIN rituals r ON r.id = v.ritual_id
		 WHERE r.slug = ?
		 ORDER BY v.version_number DESC`, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.RitualConfigVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// GetVersion fetches a single version by id
func (s *RitualStore) GetVersion(ctx context.Context, versionID string) (*models.RitualConfigVersion, error) {
	version, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT id, ritual_id, version_number, is_active, label, notes, created_by, config_json, created_at
		 FROM ritual_config_versions WHERE id = ?`, versionID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// ActivateVersion deactivates every other version belonging to the same
// ritual and marks the target active, within one atomic unit. Activating an
// older version is the rollback path.
func (s *RitualStore) ActivateVersion(ctx context.Context, versionID string) (*models.RitualConfigVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	version, err := scanVersion(tx.QueryRowContext(ctx,
		`SELECT id, ritual_id, version_number, is_active, label, notes, created_by, config_json, created_at
		 FROM ritual_config_versions WHERE id = ?`, versionID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	var slug string
	if err := tx.QueryRowContext(ctx, "SELECT slug FROM rituals WHERE id = ?", version.RitualID).Scan(&slug); err != nil {
		return nil, fmt.Errorf("failed to resolve owning ritual: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE ritual_config_versions SET is_active = FALSE WHERE ritual_id = ? AND is_active = TRUE",
		version.RitualID); err != nil {
		return nil, fmt.Errorf("failed to deactivate current version: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE ritual_config_versions SET is_active = TRUE WHERE id = ?", version.ID); err != nil {
		return nil, fmt.Errorf("failed to activate version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}

	version.IsActive = true
	logging.WithRitual(slug).Info("config version activated", "version", version.VersionNumber)
	s.notifyActiveChange(slug)
	return version, nil
}

// DuplicateVersion copies the source version's config payload verbatim into
// a freshly numbered version of the same ritual. The label defaults to
// "Copy of v<sourceVersionNumber>" when unspecified.
func (s *RitualStore) DuplicateVersion(ctx context.Context, sourceVersionID, label, notes, createdBy string, makeActive bool) (*models.RitualConfigVersion, error) {
	source, err := s.GetVersion(ctx, sourceVersionID)
	if err != nil {
		return nil, err
	}

	ritual, err := scanRitual(s.db.QueryRowContext(ctx,
		"SELECT id, slug, name, description, created_at, updated_at FROM rituals WHERE id = ?", source.RitualID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: ritual for version %s", ErrNotFound, sourceVersionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owning ritual: %w", err)
	}

	if label == "" {
		label = fmt.Sprintf("Copy of v%d", source.VersionNumber)
	}

	version, err := s.createVersionRaw(ctx, ritual.Slug, ritual.Name, ritual.Description,
		source.ConfigJSON, label, notes, createdBy, makeActive)
	if err != nil {
		return nil, err
	}

	if makeActive {
		s.notifyActiveChange(ritual.Slug)
	}
	return version, nil
}

// GetActiveConfig returns the parsed config of the active version for a
// slug. ErrNotFound when the ritual has no versions or none is active.
func (s *RitualStore) GetActiveConfig(ctx context.Context, slug string) (*models.RitualConfig, error) {
	version, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT v.id, v.ritual_id, v.version_number, v.is_active, v.label, v.notes, v.created_by, v.config_json, v.created_at
		 FROM ritual_config_versions v
		 JOIN rituals r ON r.id = v.ritual_id
		 WHERE r.slug = ? AND v.is_active = TRUE`, slug))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no active version for ritual %s", ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active version: %w", err)
	}

	var cfg models.RitualConfig
	if err := json.Unmarshal([]byte(version.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("stored config for %s v%d is unreadable: %w", slug, version.VersionNumber, err)
	}
	return &cfg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRitual(row rowScanner) (*models.Ritual, error) {
	var r models.Ritual
	var description sql.NullString
	if err := row.Scan(&r.ID, &r.Slug, &r.Name, &description, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Description = description.String
	return &r, nil
}

func scanVersion(row rowScanner) (*models.RitualConfigVersion, error) {
	var v models.RitualConfigVersion
	var label, notes, createdBy sql.NullString
	if err := row.Scan(&v.ID, &v.RitualID, &v.VersionNumber, &v.IsActive,
		&label, &notes, &createdBy, &v.ConfigJSON, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Label = label.String
	v.Notes = notes.String
	v.CreatedBy = createdBy.String
	return &v, nil
}
