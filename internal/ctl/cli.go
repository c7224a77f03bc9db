// Package ctl implements imgloadctl, a command-line client for imgloadd.
package ctl

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds the global flags shared by every command. Environment
// variables provide the defaults; flags override them.
type Config struct {
	Server  string        `env:"IMGLOAD_SERVER" envDefault:"http://127.0.0.1:8080"`
	Timeout time.Duration `env:"IMGLOADCTL_TIMEOUT" envDefault:"10s"`
	JSON    bool          `env:"IMGLOADCTL_JSON"`
	LogLvl  string        `env:"IMGLOADCTL_LOG_LEVEL" envDefault:"warn"`
}

// DefaultConfig returns the configuration derived from the environment.
func DefaultConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns an exit code: 0 on success, 1 on error, 2 when no command is given.
func MainWithArgs(args []string) int { return mainWithIO(args, os.Stdout, os.Stderr) }

// Main returns an exit code for use by cmd/imgloadctl.
func Main() int { return MainWithArgs(os.Args[1:]) }

func mainWithIO(args []string, stdout, stderr io.Writer) int {
	cfg, err := DefaultConfig()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err.Error())
		return 1
	}
	root := buildRootCmdWith(cfg)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "error:", err.Error())
		return 1
	}
	return 0
}
