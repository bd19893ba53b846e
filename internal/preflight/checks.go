package preflight

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"bilisub/internal/config"
	"bilisub/internal/deps"
	"bilisub/internal/workflow"
)

const healthTimeout = 15 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries the configuration needs.
// Both the daemon and the doctor command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	recognition := cfg.Recognition.Enabled
	requirements := []deps.Requirement{
		{
			Name:        "whisper",
			Command:     cfg.Recognition.Binary,
			Description: "Speech recognition fallback",
			Optional:    !recognition,
			VersionArgs: []string{"--help"},
		},
		{
			Name:        "ffmpeg",
			Command:     "ffmpeg",
			Description: "Audio decoding for speech recognition",
			Optional:    !recognition,
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "yt-dlp",
			Command:     cfg.Platform.YtdlpBinary,
			Description: "Alternative audio fetcher",
			Optional:    cfg.Platform.AudioFetcher != config.AudioFetcherYtdlp,
			VersionArgs: []string{"--version"},
		},
	}
	statuses := deps.CheckBinaries(ctx, requirements)
	// whisper prints usage, not a version.
	if len(statuses) > 0 {
		statuses[0].Version = ""
	}
	return statuses
}

// CheckHealth probes a collaborator's remote dependency.
func CheckHealth(ctx context.Context, checker workflow.HealthChecker) Result {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	health := checker.HealthCheck(ctx)
	return Result{Name: health.Name, Passed: health.Ready, Detail: health.Detail, Optional: true}
}

// CheckBind verifies the API bind address can be listened on. A failure is
// optional since a running daemon holds the address.
func CheckBind(bind string) Result {
	const name = "API bind"
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return Result{Name: name, Detail: "not configured", Optional: true}
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err), Optional: true}
	}
	_ = ln.Close()
	return Result{Name: name, Passed: true, Detail: bind}
}
