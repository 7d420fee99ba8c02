// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package main

import (
	"github.com/resuralph/ralphstack/internal/cli"
	"github.com/resuralph/ralphstack/internal/logging"
)

func main() {
	logging.SetupInitialLogging()
	cli.Start()
}
