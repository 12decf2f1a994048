package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// openCommand returns the platform file manager invocation for dir.
func openCommand(goos, dir string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{dir}, nil
	case "windows":
		return "explorer", []string{dir}, nil
	case "linux", "freebsd", "netbsd", "openbsd", "dragonfly":
		return "xdg-open", []string{dir}, nil
	default:
		return "", nil, fmt.Errorf("don't know how to open a directory on %s", goos)
	}
}

// openDirectory opens dir in the platform file manager without waiting for
// it to exit.
func openDirectory(ctx context.Context, dir string) error {
	name, args, err := openCommand(runtime.GOOS, dir)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(context.WithoutCancel(ctx), name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to run %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
