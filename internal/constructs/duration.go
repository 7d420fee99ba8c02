// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package constructs

import "fmt"

// Duration is a whole number of seconds, the unit every AWS property here expects.
type Duration struct {
	seconds int
	set     bool
}

func Seconds(n int) Duration {
	return Duration{seconds: n, set: true}
}

func Minutes(n int) Duration {
	return Seconds(n * 60)
}

func Days(n int) Duration {
	return Seconds(n * 24 * 60 * 60)
}

func (d Duration) ToSeconds() int {
	return d.seconds
}

// IsSet distinguishes an explicit zero from an omitted duration.
func (d Duration) IsSet() bool {
	return d.set
}

func (d Duration) String() string {
	return fmt.Sprintf("%ds", d.seconds)
}
