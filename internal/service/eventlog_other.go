//go:build !windows

package service

// ReportStartupError is a no-op outside Windows; WriteStartupErrorFile covers it.
func ReportStartupError(serviceName string, err error) {}
