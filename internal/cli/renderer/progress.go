// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package renderer

import (
	"fmt"
	"io"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/cli/display"
)

// Progress prints one line per resource update transition while a command runs. It is
// not safe for concurrent use; updates arrive from the executor goroutine only.
type Progress struct {
	out  io.Writer
	seen map[string]string
}

func NewProgress(out io.Writer) *Progress {
	return &Progress{out: out, seen: make(map[string]string)}
}

func (p *Progress) Update(ru apimodel.ResourceUpdate) {
	key := ru.ResourceLabel + "/" + ru.Operation
	state := fmt.Sprintf("%s/%d", ru.State, ru.CurrentAttempt)
	if p.seen[key] == state || ru.State == apimodel.ResourceUpdateStateNotStarted {
		return
	}
	p.seen[key] = state

	subject := fmt.Sprintf("%s %s %s", coloredOperation(ru.Operation), ru.ResourceLabel, display.Grey(ru.ResourceType))

	switch ru.State {
	case apimodel.ResourceUpdateStateSuccess:
		_, _ = fmt.Fprintf(p.out, "%s %s%s\n", display.Tick(), subject, formatDurationLine(ru.Duration))
	case apimodel.ResourceUpdateStateFailed, apimodel.ResourceUpdateStateRejected:
		_, _ = fmt.Fprintf(p.out, "%s %s: %s\n", display.Cross(), subject, display.Red(ru.ErrorMessage))
	default:
		line := fmt.Sprintf("%s %s", display.Pending(), subject)
		if ru.CurrentAttempt > 1 {
			line += display.Goldf(" (attempt %d/%d)", ru.CurrentAttempt, ru.MaxAttempts)
		}
		if ru.StatusMessage != "" {
			line += display.Grey(": " + ru.StatusMessage)
		}
		_, _ = fmt.Fprintln(p.out, line)
	}
}
