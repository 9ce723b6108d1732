package main

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// shockFlag collects repeated --shock SECTOR=VALUE flags.
type shockFlag struct {
	shocks []scores.Shock
}

var _ pflag.Value = (*shockFlag)(nil)

func (f *shockFlag) String() string {
	parts := make([]string, len(f.shocks))
	for i, s := range f.shocks {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Set accepts one shock or a comma separated list. A piece without '=' is a
// decimal comma of the previous value, as in "62=-1,5".
func (f *shockFlag) Set(raw string) error {
	var parts []string
	for _, piece := range strings.Split(raw, ",") {
		if !strings.Contains(piece, "=") && len(parts) > 0 {
			parts[len(parts)-1] += "," + piece
			continue
		}
		parts = append(parts, piece)
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s, err := scores.ParseShock(part)
		if err != nil {
			return err
		}
		f.shocks = append(f.shocks, s)
	}
	return nil
}

func (f *shockFlag) Type() string { return "shock" }
