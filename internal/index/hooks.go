package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/searchapi/internal/errors"
)

// Event is passed to lifecycle hooks.
type Event struct {
	Manager *Manager
	// Index is the configuration being saved or deleted.
	Index *Index
	// Original is the previously saved configuration, nil for a new index.
	Original *Index
	// Orchestrator is the rebuilt index. It is nil for before-save hooks.
	Orchestrator *Orchestrator
	// Reindex is set by hooks that require every item to be reindexed.
	Reindex bool
}

// IsNew reports whether the index had never been saved.
func (e *Event) IsNew() bool { return e.Original == nil }

// Hook runs at one point of an index's lifecycle. An error from a
// before-hook aborts the operation.
type Hook func(ctx context.Context, ev *Event) error

type hooks struct {
	beforeSave   []Hook
	afterSave    []Hook
	beforeDelete []Hook
}

// OnBeforeSave registers a hook run before an index is saved.
func (m *Manager) OnBeforeSave(h Hook) { m.hooks.beforeSave = append(m.hooks.beforeSave, h) }

// OnAfterSave registers a hook run after an index was saved.
func (m *Manager) OnAfterSave(h Hook) { m.hooks.afterSave = append(m.hooks.afterSave, h) }

// OnBeforeDelete registers a hook run before an index is deleted.
func (m *Manager) OnBeforeDelete(h Hook) { m.hooks.beforeDelete = append(m.hooks.beforeDelete, h) }

func (m *Manager) registerDefaultHooks() {
	m.OnBeforeSave(ValidateIndex)
	m.OnBeforeSave(InvalidateMapping)
	m.OnAfterSave(SyncBackend)
	m.OnAfterSave(SyncTracking)
	m.OnBeforeDelete(RemoveIndex)
}

// ValidateIndex rejects configurations referring to unknown servers or
// datasources, or declaring invalid fields.
func ValidateIndex(_ context.Context, ev *Event) error {
	idx := ev.Index
	if idx.ID == "" {
		return errors.ConfigError("index id is required", nil)
	}
	if idx.Server != "" {
		if _, ok := ev.Manager.server(idx.Server); !ok {
			return errors.New(errors.ErrCodeUnknownServer,
				fmt.Sprintf("index %q: unknown server %q", idx.ID, idx.Server), nil)
		}
	}
	for _, ds := range idx.Datasources {
		if _, ok := ev.Manager.datasource(ds); !ok {
			return errors.ConfigError(fmt.Sprintf("index %q: unknown datasource %q", idx.ID, ds), nil)
		}
	}

	seen := make(map[string]bool, len(idx.Fields))
	for _, def := range idx.Fields {
		switch {
		case def.Key == "":
			return errors.ConfigError(fmt.Sprintf("index %q: field without key", idx.ID), nil)
		case seen[def.Key]:
			return errors.ConfigError(fmt.Sprintf("index %q: duplicate field %q", idx.ID, def.Key), nil)
		case def.Boost < 0:
			return errors.ConfigError(fmt.Sprintf("index %q: field %q has a negative boost", idx.ID, def.Key), nil)
		case def.Type != "" && !def.Type.Valid():
			return errors.ConfigError(fmt.Sprintf("index %q: field %q has unknown type %q", idx.ID, def.Key, def.Type), nil)
		case def.Datasource != "" && !idx.HasDatasource(def.Datasource):
			return errors.ConfigError(fmt.Sprintf("index %q: field %q uses datasource %q the index does not cover",
				idx.ID, def.Key, def.Datasource), nil)
		}
		seen[def.Key] = true
	}
	return nil
}

// InvalidateMapping drops the cached field mapping of an index whose field
// or datasource configuration changed.
func InvalidateMapping(_ context.Context, ev *Event) error {
	if ev.Original == nil {
		return nil
	}
	if !sameSchema(ev.Original, ev.Index) || !equalYAML(ev.Original.Datasources, ev.Index.Datasources) {
		ev.Manager.mapper.Cache().Invalidate(ev.Index.ID)
	}
	return nil
}

func active(idx *Index) bool {
	return idx != nil && idx.Enabled && idx.Server != ""
}

// SyncBackend moves the index between servers, removes disabled indexes
// from their server and applies schema changes.
func SyncBackend(ctx context.Context, ev *Event) error {
	idx, prev, o := ev.Index, ev.Original, ev.Orchestrator
	moved := prev != nil && prev.Server != idx.Server

	if active(prev) && (!active(idx) || moved) {
		if old, ok := ev.Manager.backend(prev.Server); ok {
			if err := old.RemoveIndex(ctx, prev.ID); err != nil {
				return err
			}
			ev.Manager.logger.Info("index_removed_from_server",
				slog.String("index", idx.ID),
				slog.String("server", prev.Server))
		}
	}
	if active(prev) && active(idx) && moved {
		ev.Reindex = true
		return nil
	}
	if active(prev) && active(idx) && !sameSchema(prev, idx) {
		reindex, err := o.backend.UpdateIndex(ctx, o)
		if err != nil {
			return err
		}
		ev.Reindex = ev.Reindex || reindex
	}
	return nil
}

// SyncTracking keeps the tracker in line with the configuration: new or
// re-enabled indexes track all items, disabled ones stop tracking, added
// and removed datasources are tracked or dropped, and field changes mark
// everything for reindexing.
func SyncTracking(ctx context.Context, ev *Event) error {
	idx, prev, o := ev.Index, ev.Original, ev.Orchestrator

	if !idx.Enabled {
		if prev == nil || prev.Enabled {
			if _, err := o.tracker.Clear(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	if prev == nil || !prev.Enabled {
		_, err := o.TrackAll(ctx)
		return err
	}

	for _, ds := range prev.Datasources {
		if idx.HasDatasource(ds) {
			continue
		}
		if _, err := o.tracker.DeleteDatasource(ctx, ds); err != nil {
			return err
		}
		if o.backend != nil && o.writable() {
			if err := o.backend.DeleteAllItems(ctx, o, ds); err != nil {
				return err
			}
		}
	}
	for _, ds := range idx.Datasources {
		if prev.HasDatasource(ds) {
			continue
		}
		if _, err := o.TrackDatasource(ctx, ds); err != nil {
			return err
		}
	}

	if ev.Reindex || !sameSchema(prev, idx) {
		if _, err := o.tracker.MarkAllChanged(ctx); err != nil {
			return err
		}
		ev.Manager.logger.Info("index_marked_for_reindex", slog.String("index", idx.ID))
	}
	return nil
}

// RemoveIndex drops the index from its server and stops tracking it.
func RemoveIndex(ctx context.Context, ev *Event) error {
	o := ev.Orchestrator
	if o == nil {
		return nil
	}
	if active(ev.Index) && o.backend != nil {
		if err := o.backend.RemoveIndex(ctx, ev.Index.ID); err != nil {
			return err
		}
	}
	_, err := o.tracker.Clear(ctx)
	return err
}
