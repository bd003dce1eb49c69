package preset

import (
	"embed"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultFiles embed.FS

// PlayPreset는 한 게임의 플레이 성향 묶음: 후보 선택 파라미터와 타이밍 프로파일.
type PlayPreset struct {
	Name string `yaml:"-"`

	// 후보 선택
	MaxCPLoss        int       `yaml:"max_cp_loss"`
	RankWeights      []float64 `yaml:"rank_weights"`
	MaxBlunders      int       `yaml:"max_blunders"`
	BlunderThreshold int       `yaml:"blunder_threshold"`
	BlunderChance    float64   `yaml:"blunder_chance"`

	// 오라클 예산
	MoveTimeMillis int `yaml:"move_time_ms"`
	MultiPV        int `yaml:"multipv"`

	// 랙 신고 오프셋
	LagOffsetMs int `yaml:"lag_offset_ms"`

	Timing TimingProfile `yaml:"timing"`
}

// TimingProfile은 전송 지연 시뮬레이션 파라미터. 전부 ms 단위.
type TimingProfile struct {
	BaseMinMs     int     `yaml:"base_min_ms"`
	BaseMaxMs     int     `yaml:"base_max_ms"`
	QuickChance   float64 `yaml:"quick_chance"`
	QuickMinMs    int     `yaml:"quick_min_ms"`
	QuickMaxMs    int     `yaml:"quick_max_ms"`
	TankChance    float64 `yaml:"tank_chance"`
	TankMinMs     int     `yaml:"tank_min_ms"`
	TankMaxMs     int     `yaml:"tank_max_ms"`
	MaxDelayMs    int     `yaml:"max_delay_ms"`
	TargetAvgMs   int     `yaml:"target_avg_ms"`
	PremovePieces int     `yaml:"premove_pieces"`
}

type catalogFile struct {
	Presets map[string]PlayPreset `yaml:"presets"`
}

// Catalog는 내장 기본 프리셋에 선택적 오버라이드 파일을 얹어 보관.
type Catalog struct {
	mu      sync.RWMutex
	presets map[string]PlayPreset
}

// Load는 내장 기본값을 읽고 overrideFile이 있으면 같은 이름을 덮어쓴다.
func Load(overrideFile string) (*Catalog, error) {
	c := &Catalog{presets: make(map[string]PlayPreset)}

	raw, err := fs.ReadFile(defaultFiles, "presets.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded presets: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, fmt.Errorf("parse embedded presets: %w", err)
	}

	if strings.TrimSpace(overrideFile) != "" {
		b, err := os.ReadFile(overrideFile)
		if err != nil {
			return nil, fmt.Errorf("read preset override: %w", err)
		}
		if err := c.applyYAML(b); err != nil {
			return nil, fmt.Errorf("parse preset override %s: %w", overrideFile, err)
		}
	}
	return c, nil
}

func (c *Catalog) applyYAML(b []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, p := range file.Presets {
		p.Name = name
		if err := Validate(p); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
		c.presets[name] = p
	}
	return nil
}

// Get은 이름으로 프리셋을 찾는다. 별칭 허용, 반환값은 사본.
func (c *Catalog) Get(name string) (PlayPreset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "safe":
		name = "careful"
	case "default", "":
		name = "balanced"
	case "blitz":
		name = "rapid"
	}
	c.mu.RLock()
	p, ok := c.presets[name]
	c.mu.RUnlock()
	if !ok {
		return PlayPreset{}, fmt.Errorf("unknown play preset: %s", name)
	}
	p.RankWeights = append([]float64(nil), p.RankWeights...)
	return p, nil
}

// Names는 등록된 프리셋 이름 목록(정렬).
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.presets))
	for name := range c.presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func Validate(p PlayPreset) error {
	switch {
	case p.MaxCPLoss <= 0:
		return fmt.Errorf("max cp loss must be > 0: %d", p.MaxCPLoss)
	case len(p.RankWeights) == 0:
		return fmt.Errorf("rank weights must not be empty")
	case p.MaxBlunders < 0:
		return fmt.Errorf("max blunders must be >= 0: %d", p.MaxBlunders)
	case p.BlunderThreshold <= 0:
		return fmt.Errorf("blunder threshold must be > 0: %d", p.BlunderThreshold)
	case p.BlunderChance < 0 || p.BlunderChance > 1 || math.IsNaN(p.BlunderChance):
		return fmt.Errorf("blunder chance must be in [0,1]: %f", p.BlunderChance)
	case p.MoveTimeMillis <= 0:
		return fmt.Errorf("move time must be > 0: %d", p.MoveTimeMillis)
	case p.MultiPV <= 0 || p.MultiPV > 4:
		return fmt.Errorf("multipv must be in 1-4: %d", p.MultiPV)
	case len(p.RankWeights) < p.MultiPV:
		return fmt.Errorf("rank weights (%d) must cover multipv (%d)", len(p.RankWeights), p.MultiPV)
	case p.LagOffsetMs < 0:
		return fmt.Errorf("lag offset must be >= 0: %d", p.LagOffsetMs)
	}
	for i, w := range p.RankWeights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("rank weight at index %d must be positive finite: %f", i, w)
		}
	}
	return validateTiming(p.Timing)
}

func validateTiming(t TimingProfile) error {
	switch {
	case t.BaseMinMs < 0 || t.BaseMaxMs < t.BaseMinMs:
		return fmt.Errorf("base delay range invalid: %d-%d", t.BaseMinMs, t.BaseMaxMs)
	case t.QuickChance < 0 || t.QuickChance > 1:
		return fmt.Errorf("quick chance must be in [0,1]: %f", t.QuickChance)
	case t.QuickMinMs < 0 || t.QuickMaxMs < t.QuickMinMs:
		return fmt.Errorf("quick delay range invalid: %d-%d", t.QuickMinMs, t.QuickMaxMs)
	case t.TankChance < 0 || t.TankChance > 1:
		return fmt.Errorf("tank chance must be in [0,1]: %f", t.TankChance)
	case t.QuickChance+t.TankChance > 1:
		return fmt.Errorf("quick+tank chances exceed 1: %f", t.QuickChance+t.TankChance)
	case t.TankMinMs < 0 || t.TankMaxMs < t.TankMinMs:
		return fmt.Errorf("tank delay range invalid: %d-%d", t.TankMinMs, t.TankMaxMs)
	case t.MaxDelayMs <= 0:
		return fmt.Errorf("max delay must be > 0: %d", t.MaxDelayMs)
	case t.TargetAvgMs <= 0:
		return fmt.Errorf("target average must be > 0: %d", t.TargetAvgMs)
	case t.PremovePieces < 0:
		return fmt.Errorf("premove piece threshold must be >= 0: %d", t.PremovePieces)
	}
	return nil
}
