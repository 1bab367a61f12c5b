package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	// Network cadence.
	MoveBroadcastMs    int `yaml:"move_broadcast_ms"`
	MoveSendMs         int `yaml:"move_send_ms"`
	StaleAfterMs       int `yaml:"stale_after_ms"`
	PingRounds         int `yaml:"ping_rounds"`
	DayNightBroadcastS int `yaml:"day_night_broadcast_s"`
	AutosaveEveryS     int `yaml:"autosave_every_s"`

	// Client presentation.
	SmoothingFraction float64 `yaml:"smoothing_fraction"`
	ChatWrapOver      int     `yaml:"chat_wrap_over"`
	ChatLineWidth     int     `yaml:"chat_line_width"`

	// World.
	DayLengthS  float64    `yaml:"day_length_s"`
	PlayerSpeed float64    `yaml:"player_speed"`
	Spawn       [3]float64 `yaml:"spawn"`
	ReEntry     [3]float64 `yaml:"re_entry"`
	AttackReach float64    `yaml:"attack_reach"`
	WinKills    int        `yaml:"win_kills"`

	Mobs Mobs `yaml:"mobs"`
}

type Mobs struct {
	SpawnEveryS int        `yaml:"spawn_every_s"`
	Cap         int        `yaml:"cap"`
	Speed       float64    `yaml:"speed"`
	SpawnRadius float64    `yaml:"spawn_radius"`
	Center      [3]float64 `yaml:"center"`
}

// Defaults match configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		MoveBroadcastMs:    100,
		MoveSendMs:         100,
		StaleAfterMs:       1000,
		PingRounds:         4,
		DayNightBroadcastS: 10,
		AutosaveEveryS:     300,
		SmoothingFraction:  0.1,
		ChatWrapOver:       55,
		ChatLineWidth:      35,
		DayLengthS:         600,
		PlayerSpeed:        6,
		Spawn:              [3]float64{0, 0, 0},
		ReEntry:            [3]float64{0, 1, 0},
		AttackReach:        2.5,
		WinKills:           50,
		Mobs: Mobs{
			SpawnEveryS: 5,
			Cap:         20,
			Speed:       3,
			SpawnRadius: 20,
		},
	}
}

// Load reads path over Defaults, so omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tick_rate_hz must be > 0")
	case t.MoveBroadcastMs <= 0 || t.MoveSendMs <= 0:
		return fmt.Errorf("move intervals must be > 0")
	case t.StaleAfterMs <= 0:
		return fmt.Errorf("stale_after_ms must be > 0")
	case t.SmoothingFraction <= 0 || t.SmoothingFraction > 1:
		return fmt.Errorf("smoothing_fraction must be in (0,1]")
	case t.ChatLineWidth <= 0:
		return fmt.Errorf("chat_line_width must be > 0")
	case t.AutosaveEveryS <= 0:
		return fmt.Errorf("autosave_every_s must be > 0")
	case t.DayNightBroadcastS <= 0:
		return fmt.Errorf("day_night_broadcast_s must be > 0")
	case t.Mobs.SpawnEveryS <= 0:
		return fmt.Errorf("mobs.spawn_every_s must be > 0")
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) MoveBroadcastInterval() time.Duration {
	return time.Duration(t.MoveBroadcastMs) * time.Millisecond
}

func (t Tuning) MoveSendInterval() time.Duration {
	return time.Duration(t.MoveSendMs) * time.Millisecond
}

func (t Tuning) StaleAfter() time.Duration {
	return time.Duration(t.StaleAfterMs) * time.Millisecond
}

func (t Tuning) AutosaveEvery() time.Duration {
	return time.Duration(t.AutosaveEveryS) * time.Second
}

func (t Tuning) DayNightEvery() time.Duration {
	return time.Duration(t.DayNightBroadcastS) * time.Second
}

func (t Tuning) MobSpawnEvery() time.Duration {
	return time.Duration(t.Mobs.SpawnEveryS) * time.Second
}
