package tradlet

import (
	"fmt"
	"strings"
	"time"

	"tradlet-core/internal/num"
	"tradlet-core/internal/wave"
)

// ParseGroupText builds a GroupConfig from a group descriptor's free-form
// rule text. The text is line-oriented key=value pairs:
//
//	state=Enabled
//	instrument=au2606
//	instrument=rb2610:stroke
//	threshold=0.5
//	openTimeout=30s
//
// A malformed entry is a configuration contract violation and is reported,
// never skipped.
func ParseGroupText(id, text string) (GroupConfig, error) {
	cfg := GroupConfig{
		ID:              id,
		State:           GroupEnabled,
		StrokeThreshold: num.FromInt(1),
	}
	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return cfg, fmt.Errorf("tradlet: group %s line %d: missing '=' in %q", id, lineNo+1, line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "state":
			s, err := ParseGroupState(value)
			if err != nil {
				return cfg, fmt.Errorf("tradlet: group %s line %d: %w", id, lineNo+1, err)
			}
			cfg.State = s
		case "instrument":
			instr, level, _ := strings.Cut(value, ":")
			if instr == "" {
				return cfg, fmt.Errorf("tradlet: group %s line %d: empty instrument", id, lineNo+1)
			}
			cfg.Interests = append(cfg.Interests, Interest{Instrument: instr, Level: wave.Level(level)})
		case "threshold":
			p, err := num.Parse(value)
			if err != nil {
				return cfg, fmt.Errorf("tradlet: group %s line %d: %w", id, lineNo+1, err)
			}
			if !p.Greater(0) {
				return cfg, fmt.Errorf("tradlet: group %s line %d: threshold must be positive", id, lineNo+1)
			}
			cfg.StrokeThreshold = p
		case "openTimeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return cfg, fmt.Errorf("tradlet: group %s line %d: %w", id, lineNo+1, err)
			}
			cfg.OpenTimeout = d
		default:
			return cfg, fmt.Errorf("tradlet: group %s line %d: unknown key %q", id, lineNo+1, key)
		}
	}
	if len(cfg.Interests) == 0 {
		return cfg, fmt.Errorf("tradlet: group %s declares no instruments", id)
	}
	return cfg, nil
}
