//go:build darwin
// +build darwin

package source

// platformDefaults uses the HID idle time on macOS.
func platformDefaults() []string {
	return []string{"ioreg", "tmux"}
}
