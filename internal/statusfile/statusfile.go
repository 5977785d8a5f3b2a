// Package statusfile serialises a registry snapshot to disk atomically:
// write to a temporary file created by renameio (its name is chosen by
// renameio, not <path>.tmp), fsync, rename over <path>. Readers that open the
// path once always observe either the previous complete snapshot or the
// new one, never a partial write (spec.md §4.5 / §6).
//
// Grounded on original_source/src/status.rs (write-tmp/fsync/rename) but
// implemented with github.com/google/renameio/v2, which performs the
// same tmp-file-then-rename dance as a library instead of hand-rolled
// syscalls — the teacher (kornnellio-gosv) has no status-file
// equivalent at all, so this is grounded directly on the prototype and
// on other_examples/manifests/axondata-go-runit's use of renameio for
// the same "atomic config/state snapshot" role.
package statusfile

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/renameio/v2"
	"github.com/gosv/supervisord/internal/procinfo"
	"github.com/gosv/supervisord/internal/registry"
)

// ServiceRecord is the on-disk shape of one service entry.
type ServiceRecord struct {
	ID       uint64     `json:"id"`
	Name     string     `json:"name"`
	State    string     `json:"state"`
	Reason   string     `json:"reason,omitempty"`
	Detail   int        `json:"detail,omitempty"`
	PID      int        `json:"pid,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
	RSSKB    int64      `json:"rss_kb,omitempty"`
}

// Snapshot is the complete status-file payload: a deterministic view of
// every service at the moment it was taken.
type Snapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Services    []ServiceRecord `json:"services"`
}

// BuildSnapshot renders a registry into its status-file payload. Service
// order is by id, for determinism across writes.
func BuildSnapshot(r *registry.Registry, now time.Time) Snapshot {
	all := r.All()
	records := make([]ServiceRecord, 0, len(all))
	for _, svc := range all {
		rec := ServiceRecord{
			ID:    svc.ID,
			Name:  svc.Name,
			State: svc.State.String(),
		}
		if svc.State == registry.StateStopped {
			rec.Reason = svc.Reason.String()
			rec.Detail = svc.ExitDetail
		}
		if svc.PID != 0 {
			rec.PID = svc.PID
			if kb, ok := procinfo.RSSKB(svc.PID); ok {
				rec.RSSKB = kb
			}
		}
		if svc.State == registry.StateStopping {
			d := svc.Deadline
			rec.Deadline = &d
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return Snapshot{GeneratedAt: now, Services: records}
}

// Write renders snap as JSON and rewrites path atomically via
// write-temp + fsync + rename (renameio.WriteFile does exactly this).
func Write(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return renameio.WriteFile(path, data, 0o644)
}
