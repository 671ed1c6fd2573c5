package shared

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommand returns the launcher for the platform, nil if there is none.
func browserCommand(ctx context.Context, goos, url string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.CommandContext(ctx, "open", url)
	case "linux", "freebsd", "openbsd":
		return exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return nil
	}
}

// OpenBrowser opens the Reddit authorization page (or any URL) in the default system browser.
//
// The launcher is started, not awaited.
func OpenBrowser(ctx context.Context, url string) error {
	rt := getRuntime()
	cmd := browserCommand(ctx, rt, url)
	if cmd == nil {
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
