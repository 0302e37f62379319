// Package progressor runs one-shot upgrade work when the binary version
// changes. Migrations must be idempotent; a partially applied run leaves
// an in-progress marker behind for operators to find.
package progressor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pulserelay/pkg/logger"
	"pulserelay/pkg/models"
	"pulserelay/pkg/store"
	"pulserelay/pkg/wire"
)

const (
	systemVersionKey    = "system:version"
	systemInProgressKey = "system:migration_in_progress"
)

// Sync performs upgrade work between versions. Edit in-place for migration logic.
func Sync(ctx context.Context, db *store.Pebble, from, to string, window time.Duration) error {
	logger.Info("progressor_sync_start", "from", from, "to", to)

	// Migration: backfill expires_at on request documents written before
	// expiration was introduced. Expiry is anchored to the original
	// timestamp so old requests age out instead of getting a fresh window.
	docs, err := db.Query(ctx, models.ColAIRequests, store.Query{})
	if err != nil {
		logger.Error("progressor_list_requests_failed", "error", err)
		return err
	}
	for _, doc := range docs {
		var raw map[string]any
		if err := json.Unmarshal(doc.Data, &raw); err != nil {
			logger.Error("progressor_unmarshal_request_failed", "id", doc.ID, "error", err)
			continue
		}
		if _, ok := raw["expires_at"]; ok {
			continue
		}
		ts, ok := raw["timestamp"].(string)
		if !ok {
			logger.Warn("progressor_skip_no_timestamp", "id", doc.ID)
			continue
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			logger.Warn("progressor_skip_bad_timestamp", "id", doc.ID, "error", err)
			continue
		}
		expiry := parsed.Add(window)
		if err := db.Update(ctx, models.ColAIRequests, doc.ID, map[string]any{
			"expires_at": wire.FormatTime(expiry),
		}); err != nil {
			logger.Error("progressor_backfill_failed", "id", doc.ID, "error", err)
			continue
		}
		logger.Info("progressor_expiry_backfilled", "id", doc.ID, "expires_at", expiry)
	}

	logger.Info("progressor_sync_done", "from", from, "to", to)
	return nil
}

// Run checks for a version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, db *store.Pebble, newVersion string, window time.Duration) (bool, error) {
	stored, err := db.GetMeta(systemVersionKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error("progressor_read_version_failed", "error", err)
	}
	logger.Info("progressor_version_check", "stored", stored, "running", newVersion)
	if stored == newVersion {
		logger.Info("progressor_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := db.SetMeta(systemInProgressKey, string(mb)); err != nil {
		logger.Error("progressor_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("write in-progress marker: %w", err)
	}

	logger.Info("progressor_start_sync", "from", stored, "to", newVersion)
	if err := Sync(ctx, db, stored, newVersion, window); err != nil {
		logger.Error("progressor_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}

	if err := db.SetMeta(systemVersionKey, newVersion); err != nil {
		logger.Error("progressor_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("persist new version: %w", err)
	}
	if err := db.DeleteMeta(systemInProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", "error", err)
	}

	logger.Info("progressor_version_persisted", "version", newVersion)
	return true, nil
}
