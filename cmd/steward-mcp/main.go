// steward-mcp serves the assistant engine as MCP tools over stdio.
//
// Confirmation prompts have no one to answer them here, so mail previews,
// task deletions and calendar picks resolve to their safe fallback once
// BRIDGE_TIMEOUT elapses.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/vthunder/steward/internal/app"
	"github.com/vthunder/steward/internal/config"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/mcp"
	"github.com/vthunder/steward/internal/mcp/tools"
)

const version = "0.1.0"

func main() {
	offline := flag.Bool("offline", false, "keep tasks in a local file and leave calendar and mail signed out")
	noPlanner := flag.Bool("no-planner", false, "don't offer handle_message")
	flag.Parse()
	defer logging.Sync()

	// Load .env file - try executable's parent dir (repo root), then exe dir, then cwd
	envPaths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		envPaths = append([]string{
			filepath.Join(filepath.Dir(exeDir), ".env"), // parent of bin/ = repo root
			filepath.Join(exeDir, ".env"),
		}, envPaths...)
	}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, app.Options{Offline: *offline})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	deps := &tools.Dependencies{
		Engine:      a.Engine,
		Location:    cfg.Location,
		DefaultUser: cfg.DiscordOwnerID,
		OnMCPToolCall: func(name string) {
			logging.Debug("mcp", "tool called: %s", name)
		},
	}
	if !*noPlanner {
		deps.Executive = a.NewExecutive()
	}

	if err := mcp.ServeStdio(mcp.NewServer(version, deps)); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}
