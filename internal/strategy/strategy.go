// Package strategy decides how an action's execution context is realized on
// a given platform.
package strategy

import (
	"fmt"
	"strings"

	"fgaction/internal/action"
)

// Platform is the host OS family.
type Platform int

const (
	Unknown Platform = iota
	// Android supports foreground services from MinForegroundServiceLevel on.
	Android
	// IOS has a more limited background model: no foreground services, only
	// time-boxed background execution.
	IOS
)

// MinForegroundServiceLevel is the lowest Android API level with native
// foreground service support.
const MinForegroundServiceLevel = 26

func (p Platform) String() string {
	switch p {
	case Android:
		return "android"
	case IOS:
		return "ios"
	default:
		return "unknown"
	}
}

// ParsePlatform maps a platform name to a Platform. Unrecognized names yield Unknown.
func ParsePlatform(name string) Platform {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "android":
		return Android
	case "ios", "ipados":
		return IOS
	default:
		return Unknown
	}
}

// Target is the platform/OS-version combination a supervisor runs on.
type Target struct {
	Platform Platform
	OSLevel  int
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%d", t.Platform, t.OSLevel)
}

// Decision is the outcome of Select.
type Decision struct {
	Strategy action.Strategy
	// Forced is set when the platform could not honour native execution and
	// the selector fell back to InProcess.
	Forced bool
	Reason string
}

// Select chooses the execution strategy for target. override is only
// honoured when it asks for InProcess; every other request is subject to
// what the platform supports.
func Select(target Target, override action.Strategy) (Decision, error) {
	if override == action.InProcess {
		return Decision{Strategy: action.InProcess, Reason: "explicit override"}, nil
	}

	switch target.Platform {
	case Android:
		if target.OSLevel >= MinForegroundServiceLevel {
			return Decision{Strategy: action.NativeHeadless, Reason: "foreground service available"}, nil
		}
		return Decision{
			Strategy: action.InProcess,
			Forced:   true,
			Reason:   fmt.Sprintf("os level %d below %d", target.OSLevel, MinForegroundServiceLevel),
		}, nil
	case IOS:
		return Decision{Strategy: action.NativeDirect, Reason: "limited background execution"}, nil
	default:
		return Decision{}, fmt.Errorf("%w: %s", action.ErrUnsupportedPlatform, target)
	}
}
