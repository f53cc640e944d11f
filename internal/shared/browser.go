package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommand builds the command that opens url.
//
// $BROWSER takes precedence, as a command line that may contain "%s" for the URL; otherwise the platform opener is
// used.
func browserCommand(url string) (*exec.Cmd, error) {
	if env := strings.TrimSpace(os.Getenv("BROWSER")); env != "" {
		fields := strings.Fields(env)
		args := make([]string, 0, len(fields))
		substituted := false
		for _, f := range fields[1:] {
			if strings.Contains(f, "%s") {
				f = strings.ReplaceAll(f, "%s", url)
				substituted = true
			}
			args = append(args, f)
		}
		if !substituted {
			args = append(args, url)
		}
		return exec.Command(fields[0], args...), nil
	}

	switch rt := getRuntime(); rt {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", rt)
	}
}

// OpenBrowser opens url with $BROWSER or the platform's default browser.
//
// Supports macOS, Linux, and Windows platforms.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(url)
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
