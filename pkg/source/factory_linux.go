//go:build linux
// +build linux

package source

// platformDefaults lists the sources auto tries on Linux, best first.
func platformDefaults() []string {
	return []string{"evdev", "mutter", "xprintidle", "tmux"}
}
