package desktop

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Profile is an optional TOML launch profile supplying window and
// Streamlit option defaults, so a packaged app can ship its settings next
// to the binary instead of hard-coding them. Zero values mean "not set";
// explicit flags always win over the profile.
//
//	title = "Dashboard"
//	width = 1280
//	height = 800
//
//	[options]
//	"theme.base" = "dark"
type Profile struct {
	Title   string            `toml:"title"`
	Width   int               `toml:"width"`
	Height  int               `toml:"height"`
	Runner  string            `toml:"runner"`
	Options map[string]string `toml:"options"`
}

// LoadProfile reads a launch profile from path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch profile: %w", err)
	}
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse launch profile %s: %w", path, err)
	}
	if p.Width < 0 || p.Height < 0 {
		return nil, fmt.Errorf("launch profile %s: window dimensions must not be negative", path)
	}
	return &p, nil
}
