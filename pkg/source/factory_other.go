//go:build !linux && !darwin
// +build !linux,!darwin

package source

// platformDefaults falls back to tmux on unsupported platforms.
func platformDefaults() []string {
	return []string{"tmux"}
}
