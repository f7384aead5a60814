// Package timezone converts a lead's region identifier to local wall-clock
// time. Regions map to fixed UTC offsets with a coarse seasonal daylight
// saving adjustment; this is deliberately simpler than full tzdata because
// contact-hour enforcement only needs hour-level accuracy.
// This is part of the platform layer and contains no business logic.
package timezone

import (
	"strings"
	"time"
)

// FallbackRegion is used when a lead's region is missing or unknown.
const FallbackRegion = "US_EAST"

type regionInfo struct {
	offsetHours int  // standard-time offset from UTC
	dst         bool // observes daylight saving
}

var regions = map[string]regionInfo{
	"US_EAST":     {offsetHours: -5, dst: true},
	"US_CENTRAL":  {offsetHours: -6, dst: true},
	"US_MOUNTAIN": {offsetHours: -7, dst: true},
	"US_PACIFIC":  {offsetHours: -8, dst: true},
	"US_ARIZONA":  {offsetHours: -7, dst: false},
	"US_HAWAII":   {offsetHours: -10, dst: false},
	"US_ALASKA":   {offsetHours: -9, dst: true},
	"UK":          {offsetHours: 0, dst: true},
	"EU_CENTRAL":  {offsetHours: 1, dst: true},
	"EU_EAST":     {offsetHours: 2, dst: true},
	"AU_EAST":     {offsetHours: 10, dst: false},
}

// Known reports whether region maps to a configured offset.
func Known(region string) bool {
	_, ok := regions[normalize(region)]
	return ok
}

// Local converts an instant to the wall-clock time in the given region,
// falling back to FallbackRegion when the region is unknown.
func Local(region string, at time.Time) time.Time {
	info, ok := regions[normalize(region)]
	if !ok {
		info = regions[FallbackRegion]
	}

	offset := info.offsetHours
	if info.dst && inDaylightSaving(at) {
		offset++
	}

	loc := time.FixedZone(normalize(region), offset*3600)
	return at.In(loc)
}

// LocalHour returns the local hour of day [0,24) in the given region.
func LocalHour(region string, at time.Time) int {
	return Local(region, at).Hour()
}

// NextLocalHour returns the earliest instant at or after `at` whose local
// wall clock in the region reads exactly hour:00. Used to reschedule
// quiet-hour rejections for the next contact window.
func NextLocalHour(region string, at time.Time, hour int) time.Time {
	local := Local(region, at)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, local.Location())
	if !next.After(local) {
		next = next.Add(24 * time.Hour)
	}
	return next.UTC()
}

// inDaylightSaving approximates the northern-hemisphere DST window
// (April through October inclusive). Hour-level precision is all the
// quiet-hours rule needs.
func inDaylightSaving(at time.Time) bool {
	month := at.UTC().Month()
	return month >= time.April && month <= time.October
}

func normalize(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}
