package main

import (
	"os"
	"os/exec"
	"runtime"
)

// openFolder reveals dir in the platform file manager.
func openFolder(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", dir)
	case "windows":
		cmd = exec.Command("explorer", dir)
	default:
		cmd = exec.Command("xdg-open", dir)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
