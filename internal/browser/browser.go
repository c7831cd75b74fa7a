// Package browser opens URLs in the OS default browser.
package browser

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/skratchdot/open-golang/open"
)

// IsAvailable reports whether a browser can plausibly be opened; headless
// Linux sessions get the manual-URL path instead.
func IsAvailable() bool {
	if runtime.GOOS != "linux" {
		return true
	}
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return false
	}
	_, err := exec.LookPath("xdg-open")
	return err == nil
}

// OpenURL opens the URL in the default browser.
func OpenURL(url string) error {
	return open.Run(url)
}
