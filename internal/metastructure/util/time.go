// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package util

import "time"

// TimeNow returns the current time in UTC. Timestamps are persisted as text in SQLite, so
// they must share a zone to order correctly.
func TimeNow() time.Time {
	return time.Now().UTC()
}
