//go:build darwin

package app

import (
	"os/exec"
)

// platformOpen opens the file using 'open' (default application).
func platformOpen(path string) error {
	return exec.Command("open", path).Start()
}
