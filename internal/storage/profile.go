package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coherent-ai/crt/internal/model"
)

// ProfilePath returns the durable path for the process-wide global user
// profile, one JSON file per data directory (the profile is cross-thread,
// unlike the per-thread memory/ledger SQLite stores).
func ProfilePath(dataDir string) string {
	return filepath.Join(dataDir, "global_profile.json")
}

// LoadProfile reads the global user profile from path. A missing file is
// not an error — it returns a fresh, empty profile, since the profile is
// created lazily on first observation.
func LoadProfile(path string) (*model.GlobalUserProfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.NewGlobalUserProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load profile: %w", err)
	}
	p := model.NewGlobalUserProfile()
	if err := json.Unmarshal(data, &p.Slots); err != nil {
		return nil, fmt.Errorf("storage: load profile: %w", err)
	}
	return p, nil
}

// SaveProfile writes the global user profile to path, replacing the prior
// contents atomically via a rename so a crash mid-write never leaves a
// truncated file behind.
func SaveProfile(path string, p *model.GlobalUserProfile) error {
	data, err := json.MarshalIndent(p.Slots, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: save profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: save profile: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: save profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: save profile: %w", err)
	}
	return nil
}
