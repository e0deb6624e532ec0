// Package platform works out which strategy.Target the daemon runs on.
package platform

import (
	"context"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"fgaction/internal/config"
	"fgaction/internal/logger"
	"fgaction/internal/strategy"
)

// hostInfo is replaced in tests.
var hostInfo = host.InfoWithContext

// Detect returns the configured target when cfg.Name is set and otherwise
// asks the host. Hosts that are neither Android nor iOS yield strategy.Unknown.
func Detect(ctx context.Context, cfg config.PlatformConfig) (strategy.Target, error) {
	log := logger.WithComponent("platform")

	if cfg.Name != "" {
		t := strategy.Target{Platform: strategy.ParsePlatform(cfg.Name), OSLevel: cfg.OSLevel}
		log.Info().Str("target", t.String()).Msg("Using configured platform")
		return t, nil
	}

	info, err := hostInfo(ctx)
	if err != nil {
		return strategy.Target{}, err
	}

	t := strategy.Target{Platform: strategy.ParsePlatform(info.OS)}
	if t.Platform == strategy.Unknown {
		t.Platform = strategy.ParsePlatform(info.Platform)
	}
	if t.Platform != strategy.Unknown {
		t.OSLevel = parseLevel(info.PlatformVersion)
	}

	log.Info().
		Str("os", info.OS).
		Str("platform", info.Platform).
		Str("version", info.PlatformVersion).
		Str("target", t.String()).
		Msg("Detected platform")
	return t, nil
}

// parseLevel returns the leading integer of a version string ("17.4.1" -> 17).
func parseLevel(version string) int {
	version = strings.TrimSpace(version)
	end := strings.IndexFunc(version, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		version = version[:end]
	}
	n, err := strconv.Atoi(version)
	if err != nil {
		return 0
	}
	return n
}
