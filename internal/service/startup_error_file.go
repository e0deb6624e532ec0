package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StartupErrorFileName is the file WriteStartupErrorFile writes to.
const StartupErrorFileName = "startup-error.log"

// WriteStartupErrorFile records err in logDir. Only the most recent error is
// kept. It returns the written path, or "" when nothing could be written.
func WriteStartupErrorFile(logDir string, err error) string {
	if mkErr := os.MkdirAll(logDir, 0755); mkErr != nil {
		return ""
	}

	path := filepath.Join(logDir, StartupErrorFileName)
	ts := time.Now().Format("2006-01-02 15:04:05")
	content := fmt.Sprintf("[%s] STARTUP ERROR\n%v\n", ts, err)
	if wErr := os.WriteFile(path, []byte(content), 0644); wErr != nil {
		return ""
	}
	return path
}

// ReportStartup sends err to every startup error channel available on this platform.
func ReportStartup(serviceName, logDir string, err error) {
	ReportStartupError(serviceName, err)
	WriteStartupErrorFile(logDir, err)
}
