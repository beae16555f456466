//go:build windows

package app

import (
	"os/exec"
)

// platformOpen opens the file with its associated application.
func platformOpen(path string) error {
	return exec.Command("cmd", "/c", "start", "", path).Start()
}
