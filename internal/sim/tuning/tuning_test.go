package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_OverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte("tick_rate_hz: 30\nstale_after_ms: 800\nmobs:\n  cap: 3\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 30 || tune.StaleAfter() != 800*time.Millisecond || tune.Mobs.Cap != 3 {
		t.Fatalf("tuning=%+v", tune)
	}
	if tune.MoveBroadcastInterval() != 100*time.Millisecond || tune.PingRounds != 4 {
		t.Fatalf("defaults lost: %+v", tune)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	_ = os.WriteFile(path, []byte("smoothing_fraction: 2\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_RejectsZeroCadences(t *testing.T) {
	cases := map[string]func(*Tuning){
		"autosave_every_s":      func(t *Tuning) { t.AutosaveEveryS = 0 },
		"day_night_broadcast_s": func(t *Tuning) { t.DayNightBroadcastS = -1 },
		"mobs.spawn_every_s":    func(t *Tuning) { t.Mobs.SpawnEveryS = 0 },
	}
	for name, mutate := range cases {
		tune := Defaults()
		mutate(&tune)
		if err := tune.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults():\n got=%+v\nwant=%+v", tune, Defaults())
	}
}
