package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// snapshotVersion guards the on-disk schema. Unknown versions are rejected so
// a downgrade never silently misreads learning state.
const snapshotVersion = 1

type snapshot struct {
	Version  int              `json:"version"`
	Policies []policySnapshot `json:"policies"`
}

type policySnapshot struct {
	Domain  string     `json:"domain"`
	Arms    []armState `json:"arms"`
	RNGSeed int64      `json:"rng_seed"`
}

// Save writes the bandit state atomically (temp file + rename) so a crash
// mid-write never corrupts the previous snapshot.
func (r *Router) Save(path string) error {
	r.mu.Lock()
	snap := snapshot{Version: snapshotVersion}
	for domain, p := range r.policies {
		snap.Policies = append(snap.Policies, policySnapshot{
			Domain:  domain,
			Arms:    p.state(),
			RNGSeed: r.cfg.Seed,
		})
	}
	r.mu.Unlock()

	sort.Slice(snap.Policies, func(i, j int) bool {
		return snap.Policies[i].Domain < snap.Policies[j].Domain
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bandit snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores bandit state from a snapshot. A missing file is not an error:
// the router starts cold.
func (r *Router) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse bandit snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported bandit snapshot version %d", snap.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ps := range snap.Policies {
		r.policy(ps.Domain).load(ps.Arms)
	}
	return nil
}
