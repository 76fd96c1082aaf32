package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot is the precompiled role→permission table used where a role store
// round trip is impossible (pre-hydration rendering, session-resolved role
// lists). It is always derived mechanically from the authoritative store by
// BuildSnapshot (never authored by hand), so the sync evaluation path can
// only drift by being stale, not by being wrong.
type Snapshot struct {
	GeneratedAt time.Time
	grants      map[string][]string
	sets        map[string]Set
}

type snapshotPayload struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Roles       map[string][]string `json:"roles"`
}

// BuildSnapshot derives a snapshot from every role in the authoritative
// store. Store failures wrap ErrResolution.
func BuildSnapshot(ctx context.Context, source RoleSource) (*Snapshot, error) {
	grants, err := source.AllRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return newSnapshot(time.Now(), grants), nil
}

func newSnapshot(at time.Time, grants []RoleGrant) *Snapshot {
	snap := &Snapshot{
		GeneratedAt: at,
		grants:      make(map[string][]string, len(grants)),
		sets:        make(map[string]Set, len(grants)),
	}
	for _, grant := range grants {
		set := NewSet(grant.Permissions...)
		snap.grants[grant.Name] = set.Strings()
		snap.sets[grant.Name] = set
	}
	return snap
}

// Roles returns the sorted role names covered by the snapshot.
func (s *Snapshot) Roles() []string {
	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PermissionsFor unions the permission sets of the given role names. Unknown
// names contribute nothing.
func (s *Snapshot) PermissionsFor(roles []string) Set {
	union := NewSet()
	for _, name := range roles {
		if set, ok := s.sets[name]; ok {
			union = union.Union(set)
		}
	}
	return union
}

// MarshalJSON serializes the snapshot artifact.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotPayload{
		GeneratedAt: s.GeneratedAt,
		Roles:       s.grants,
	})
}

// UnmarshalJSON restores a snapshot artifact.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	grants := make([]RoleGrant, 0, len(payload.Roles))
	for name, perms := range payload.Roles {
		grants = append(grants, RoleGrant{Name: name, Permissions: perms})
	}
	restored := newSnapshot(payload.GeneratedAt, grants)
	*s = *restored
	return nil
}

// DriftEntry describes one role whose snapshot grants differ from the
// authoritative store.
type DriftEntry struct {
	Role     string
	Snapshot []string
	Store    []string
}

// DriftReport is the outcome of comparing a snapshot with the store.
// Any non-empty field is a configuration defect: the snapshot is stale
// and must be regenerated.
type DriftReport struct {
	Missing []string     // roles in the store but not the snapshot
	Orphans []string     // roles in the snapshot but not the store
	Changed []DriftEntry // roles present in both with differing grants
}

// Clean reports whether snapshot and store agree for every role.
func (d DriftReport) Clean() bool {
	return len(d.Missing) == 0 && len(d.Orphans) == 0 && len(d.Changed) == 0
}

// String summarizes the report for logs.
func (d DriftReport) String() string {
	if d.Clean() {
		return "snapshot in sync"
	}
	parts := make([]string, 0, 3)
	if len(d.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing=%v", d.Missing))
	}
	if len(d.Orphans) > 0 {
		parts = append(parts, fmt.Sprintf("orphans=%v", d.Orphans))
	}
	if len(d.Changed) > 0 {
		changed := make([]string, len(d.Changed))
		for i, e := range d.Changed {
			changed[i] = e.Role
		}
		parts = append(parts, fmt.Sprintf("changed=%v", changed))
	}
	return "snapshot drift: " + strings.Join(parts, " ")
}

// Verify recomputes role grants from the store and reports per-role drift.
func (s *Snapshot) Verify(ctx context.Context, source RoleSource) (DriftReport, error) {
	current, err := BuildSnapshot(ctx, source)
	if err != nil {
		return DriftReport{}, err
	}

	var report DriftReport
	for _, name := range current.Roles() {
		stored, ok := s.grants[name]
		if !ok {
			report.Missing = append(report.Missing, name)
			continue
		}
		if !equalStrings(stored, current.grants[name]) {
			report.Changed = append(report.Changed, DriftEntry{
				Role:     name,
				Snapshot: stored,
				Store:    current.grants[name],
			})
		}
	}
	for _, name := range s.Roles() {
		if _, ok := current.grants[name]; !ok {
			report.Orphans = append(report.Orphans, name)
		}
	}
	return report, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SnapshotStore persists the snapshot artifact in Redis so the worker that
// regenerates it and every server replica share a single copy.
type SnapshotStore struct {
	client *redis.Client
	key    string
}

// NewSnapshotStore constructs a SnapshotStore.
func NewSnapshotStore(client *redis.Client, key string) *SnapshotStore {
	if key == "" {
		key = "authz:snapshot"
	}
	return &SnapshotStore{client: client, key: key}
}

// Save writes the snapshot artifact.
func (st *SnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("authz: marshal snapshot: %w", err)
	}
	if err := st.client.Set(ctx, st.key, data, 0).Err(); err != nil {
		return fmt.Errorf("authz: store snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot artifact. A missing artifact returns nil snapshot
// and no error; consumers treat it as "no grants" (fail-closed).
func (st *SnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := st.client.Get(ctx, st.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("authz: decode snapshot: %w", err)
	}
	return &snap, nil
}

// SnapshotHolder keeps the current snapshot for sync-path consumers and
// allows atomic replacement when the worker publishes a fresh artifact.
type SnapshotHolder struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewSnapshotHolder seeds a holder, optionally with an initial snapshot.
func NewSnapshotHolder(snap *Snapshot) *SnapshotHolder {
	return &SnapshotHolder{snap: snap}
}

// Current returns the held snapshot, possibly nil.
func (h *SnapshotHolder) Current() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

// Replace swaps in a fresh snapshot.
func (h *SnapshotHolder) Replace(snap *Snapshot) {
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()
}
