// Package timeutil provides the canonical time source for the portal.
//
// All stored timestamps are UTC. Legal artifacts (proof of service, court
// certificates) are displayed in South African Standard Time (SAST, UTC+2,
// no DST) as required for documents served under ECTA.
package timeutil

import "time"

// SAST is UTC+2 with no daylight saving.
var SAST = time.FixedZone("SAST", 2*60*60)

// NowUTC returns the current time in UTC. This is the only time source
// components should use for stored timestamps; it keeps the monotonic
// reading so durations measured across calls are safe against wall-clock
// adjustments.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// ToSAST converts a stored UTC timestamp for display.
func ToSAST(t time.Time) time.Time {
	return t.In(SAST)
}

// FormatSAST renders a stored UTC timestamp the way legal documents expect,
// e.g. "02 January 2006 at 15:04:05 SAST".
func FormatSAST(t time.Time) string {
	return ToSAST(t).Format("02 January 2006 at 15:04:05 MST")
}
