package preset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, name := range []string{"careful", "balanced", "rapid", "bullet"} {
		p, err := c.Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if p.Name != name {
			t.Fatalf("preset name = %q, want %q", p.Name, name)
		}
		if err := Validate(p); err != nil {
			t.Fatalf("embedded preset %s invalid: %v", name, err)
		}
	}
}

func TestGetAliases(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cases := map[string]string{
		"safe":    "careful",
		"default": "balanced",
		"":        "balanced",
		"blitz":   "rapid",
	}
	for alias, want := range cases {
		p, err := c.Get(alias)
		if err != nil {
			t.Fatalf("get %q: %v", alias, err)
		}
		if p.Name != want {
			t.Fatalf("alias %q resolved to %q, want %q", alias, p.Name, want)
		}
	}
}

func TestGetUnknown(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := c.Get("grandmaster"); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a, _ := c.Get("balanced")
	a.RankWeights[0] = -999
	b, _ := c.Get("balanced")
	if b.RankWeights[0] == -999 {
		t.Fatalf("Get leaked internal slice")
	}
}

func TestOverrideFile(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "override.yaml")
	body := `presets:
  balanced:
    max_cp_loss: 99
    rank_weights: [10, 8, 6, 4]
    max_blunders: 0
    blunder_threshold: 50
    blunder_chance: 0
    move_time_ms: 100
    multipv: 4
    lag_offset_ms: 5
    timing:
      base_min_ms: 10
      base_max_ms: 20
      quick_chance: 0.1
      quick_min_ms: 1
      quick_max_ms: 5
      tank_chance: 0.1
      tank_min_ms: 30
      tank_max_ms: 40
      max_delay_ms: 50
      target_avg_ms: 15
      premove_pieces: 4
`
	if err := os.WriteFile(override, []byte(body), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	c, err := Load(override)
	if err != nil {
		t.Fatalf("load with override: %v", err)
	}
	p, err := c.Get("balanced")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.MaxCPLoss != 99 || p.LagOffsetMs != 5 {
		t.Fatalf("override not applied: %+v", p)
	}
	// 오버라이드에 없는 프리셋은 내장값 유지.
	if _, err := c.Get("bullet"); err != nil {
		t.Fatalf("builtin preset lost after override: %v", err)
	}
}

func TestOverrideRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "bad.yaml")
	body := `presets:
  broken:
    max_cp_loss: -1
    rank_weights: [1]
    blunder_threshold: 10
    move_time_ms: 100
    multipv: 1
    timing:
      base_min_ms: 0
      base_max_ms: 1
      max_delay_ms: 10
      target_avg_ms: 5
`
	if err := os.WriteFile(override, []byte(body), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	if _, err := Load(override); err == nil {
		t.Fatalf("expected validation error for negative max_cp_loss")
	}
}

func TestNames(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	names := c.Names()
	if len(names) != 4 {
		t.Fatalf("names = %v, want 4 presets", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestValidateRejectsChanceSumOverOne(t *testing.T) {
	c, _ := Load("")
	p, _ := c.Get("balanced")
	p.Timing.QuickChance = 0.7
	p.Timing.TankChance = 0.5
	if err := Validate(p); err == nil {
		t.Fatalf("expected error when quick+tank chances exceed 1")
	}
}
