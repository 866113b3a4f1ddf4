package config

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"duel-match-system/engine"
	"duel-match-system/models"
)

// duration lets the rules file use "15s" style values
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type gameRules struct {
	WinsNeeded      *int      `toml:"wins_needed"`
	MaxRounds       *int      `toml:"max_rounds"`
	MoveTimeout     *duration `toml:"move_timeout"`
	InterRoundDelay *duration `toml:"inter_round_delay"`
}

type rulesFile struct {
	Games map[string]gameRules `toml:"games"`
}

// LoadRules overlays a TOML rules file on base. Only the keys present in the
// file change; unknown keys and unknown games are errors.
//
//	[games.ROCK_PAPER_SCISSORS]
//	wins_needed = 3
//	move_timeout = "20s"
func LoadRules(path string, base map[models.GameType]engine.Rules) (map[models.GameType]engine.Rules, error) {
	var f rulesFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return applyRules(md, f, base)
}

// ParseRules is LoadRules for an in-memory document
func ParseRules(doc string, base map[models.GameType]engine.Rules) (map[models.GameType]engine.Rules, error) {
	var f rulesFile
	md, err := toml.Decode(doc, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return applyRules(md, f, base)
}

func applyRules(md toml.MetaData, f rulesFile, base map[models.GameType]engine.Rules) (map[models.GameType]engine.Rules, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in rules file: %v", undecoded)
	}

	out := maps.Clone(base)
	if out == nil {
		out = map[models.GameType]engine.Rules{}
	}
	for name, g := range f.Games {
		gameType := models.GameType(strings.ToUpper(name))
		if !engine.SupportedGame(gameType) {
			return nil, fmt.Errorf("%w: %s", engine.ErrUnknownGame, name)
		}
		r := out[gameType]
		if g.WinsNeeded != nil {
			r.WinsNeeded = *g.WinsNeeded
		}
		if g.MaxRounds != nil {
			r.MaxRounds = *g.MaxRounds
		}
		if g.MoveTimeout != nil {
			r.MoveTimeout = g.MoveTimeout.Duration
		}
		if g.InterRoundDelay != nil {
			r.InterRoundDelay = g.InterRoundDelay.Duration
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rules for %s: %w", gameType, err)
		}
		out[gameType] = r
	}
	return out, nil
}
