package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/ayusman/signvista/internal/config"
)

// ModuleOverride is a partial module configuration stored through the API.
// Nil fields leave the file configuration untouched.
type ModuleOverride struct {
	Module              config.ModuleName `json:"module"`
	Enabled             *bool             `json:"enabled,omitempty"`
	Priority            *int              `json:"priority,omitempty"`
	ConfidenceThreshold *float64          `json:"confidence_threshold,omitempty"`
	PreprocessingParams map[string]any    `json:"preprocessing_params,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Apply layers the override onto mc. Preprocessing parameters are merged
// key by key.
func (o *ModuleOverride) Apply(mc *config.ModuleConfig) {
	if o.Enabled != nil {
		mc.Enabled = *o.Enabled
	}
	if o.Priority != nil {
		mc.Priority = *o.Priority
	}
	if o.ConfidenceThreshold != nil {
		mc.ConfidenceThreshold = *o.ConfidenceThreshold
	}
	if len(o.PreprocessingParams) > 0 {
		params := maps.Clone(mc.PreprocessingParams)
		if params == nil {
			params = make(map[string]any, len(o.PreprocessingParams))
		}
		maps.Copy(params, o.PreprocessingParams)
		mc.PreprocessingParams = params
	}
}

// ApplyOverrides layers every override onto cfg in place.
func ApplyOverrides(cfg *config.Config, overrides []*ModuleOverride) {
	for _, o := range overrides {
		mc, ok := cfg.ModuleConfig(o.Module)
		if !ok {
			continue
		}
		o.Apply(&mc)
		_ = cfg.SetModuleConfig(o.Module, mc)
	}
}

// OverrideRepository stores module overrides.
type OverrideRepository struct {
	db *sql.DB
}

// Overrides returns the module override repository for this store.
func (s *Store) Overrides() *OverrideRepository {
	return &OverrideRepository{db: s.db}
}

// Upsert stores o, merging it with any existing override for the module.
func (r *OverrideRepository) Upsert(o *ModuleOverride) error {
	if !o.Module.IsValid() {
		return fmt.Errorf("unknown module %q", o.Module)
	}

	existing, err := r.Get(o.Module)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		merge(existing, o)
		*o = *existing
	}
	o.UpdatedAt = time.Now()

	var params sql.NullString
	if len(o.PreprocessingParams) > 0 {
		data, err := json.Marshal(o.PreprocessingParams)
		if err != nil {
			return fmt.Errorf("encode preprocessing params: %w", err)
		}
		params = sql.NullString{String: string(data), Valid: true}
	}

	_, err = r.db.Exec(
		`INSERT INTO module_overrides (module, enabled, priority, confidence_threshold, preprocessing_params, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(module) DO UPDATE SET
		   enabled = excluded.enabled,
		   priority = excluded.priority,
		   confidence_threshold = excluded.confidence_threshold,
		   preprocessing_params = excluded.preprocessing_params,
		   updated_at = excluded.updated_at`,
		string(o.Module), nullBool(o.Enabled), nullInt(o.Priority), nullFloat(o.ConfidenceThreshold), params, o.UpdatedAt,
	)
	return err
}

// merge copies the fields set in update onto dst.
func merge(dst, update *ModuleOverride) {
	if update.Enabled != nil {
		dst.Enabled = update.Enabled
	}
	if update.Priority != nil {
		dst.Priority = update.Priority
	}
	if update.ConfidenceThreshold != nil {
		dst.ConfidenceThreshold = update.ConfidenceThreshold
	}
	if len(update.PreprocessingParams) > 0 {
		if dst.PreprocessingParams == nil {
			dst.PreprocessingParams = make(map[string]any, len(update.PreprocessingParams))
		}
		maps.Copy(dst.PreprocessingParams, update.PreprocessingParams)
	}
}

// Get retrieves the override for module.
func (r *OverrideRepository) Get(module config.ModuleName) (*ModuleOverride, error) {
	row := r.db.QueryRow(
		`SELECT module, enabled, priority, confidence_threshold, preprocessing_params, updated_at
		 FROM module_overrides WHERE module = ?`,
		string(module),
	)
	o, err := scanOverride(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// List retrieves every override.
func (r *OverrideRepository) List() ([]*ModuleOverride, error) {
	rows, err := r.db.Query(
		`SELECT module, enabled, priority, confidence_threshold, preprocessing_params, updated_at
		 FROM module_overrides ORDER BY module`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ModuleOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the override for module.
func (r *OverrideRepository) Delete(module config.ModuleName) error {
	result, err := r.db.Exec(`DELETE FROM module_overrides WHERE module = ?`, string(module))
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOverride(s scanner) (*ModuleOverride, error) {
	var (
		module    string
		enabled   sql.NullBool
		priority  sql.NullInt64
		threshold sql.NullFloat64
		params    sql.NullString
		o         ModuleOverride
	)
	if err := s.Scan(&module, &enabled, &priority, &threshold, &params, &o.UpdatedAt); err != nil {
		return nil, err
	}

	o.Module = config.ModuleName(module)
	if enabled.Valid {
		o.Enabled = &enabled.Bool
	}
	if priority.Valid {
		p := int(priority.Int64)
		o.Priority = &p
	}
	if threshold.Valid {
		o.ConfidenceThreshold = &threshold.Float64
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &o.PreprocessingParams); err != nil {
			return nil, fmt.Errorf("decode preprocessing params for %s: %w", module, err)
		}
	}
	return &o, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
