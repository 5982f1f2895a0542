package diagnostics

import (
	"os"
	"runtime"
	"strings"
)

// osRelease returns a best-effort human-readable OS release string.
// On Linux it reads /etc/os-release's PRETTY_NAME; everywhere else it
// falls back to the Go runtime's GOOS, since cgo-free portable release
// detection isn't worth a dependency for a diagnostics nicety.
func osRelease() string {
	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}

	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return runtime.GOOS
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), `"`)
		}
	}
	return runtime.GOOS
}
