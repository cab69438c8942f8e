// File: internal/platform/isr.go
// Package platform hosts process-wide context probes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interrupt-context detection. The backing is an atomic flag plus a
// runtime-selected probe installed at startup; there is no teardown.
// On hosted targets the flag form is the only one available, set by the
// interrupt shim around its handler body.

package platform

import "code.hybscloud.com/atomix"

var (
	isrFlag  atomix.Uint64
	isrProbe func() bool

	// Asserts enables the AssertNotISR contract checks.
	Asserts = true
)

// SetISRProbe installs a platform-native in-interrupt predicate.
// Call once during startup, before any fast-path traffic.
func SetISRProbe(probe func() bool) { isrProbe = probe }

// EnterISR marks interrupt context via the fallback flag.
func EnterISR() { isrFlag.StoreRelease(1) }

// ExitISR clears the fallback flag.
func ExitISR() { isrFlag.StoreRelease(0) }

// InISR reports whether the caller runs in interrupt context.
func InISR() bool {
	if isrProbe != nil {
		return isrProbe()
	}
	return isrFlag.LoadAcquire() != 0
}

// AssertNotISR panics when a non-ISR-safe helper is entered from
// interrupt context and assertions are enabled.
func AssertNotISR(name string) {
	if Asserts && InISR() {
		panic("called from interrupt context: " + name)
	}
}
