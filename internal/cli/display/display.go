// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package display

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	gkcolor "github.com/gookit/color"

	"github.com/resuralph/ralphstack"
)

var (
	gold = gkcolor.RGB(181, 181, 91)
	grey = gkcolor.RGB(138, 138, 138)
)

func Gold(s string) string                    { return gold.Sprint(s) }
func Goldf(format string, args ...any) string { return gold.Sprintf(format, args...) }

func Green(s string) string                    { return gkcolor.FgGreen.Sprint(s) }
func Greenf(format string, args ...any) string { return gkcolor.FgGreen.Sprintf(format, args...) }

func Grey(s string) string                    { return grey.Sprint(s) }
func Greyf(format string, args ...any) string { return grey.Sprintf(format, args...) }

func LightBlue(s string) string                    { return gkcolor.HiBlue.Sprint(s) }
func LightBluef(format string, args ...any) string { return gkcolor.HiBlue.Sprintf(format, args...) }

func Red(s string) string                    { return gkcolor.FgRed.Sprint(s) }
func Redf(format string, args ...any) string { return gkcolor.FgRed.Sprintf(format, args...) }

// Status markers for live progress and check lists.
var (
	tick    = color.New(color.FgGreen, color.Bold)
	cross   = color.New(color.FgRed, color.Bold)
	pending = color.New(color.FgYellow)
)

func Tick() string    { return tick.Sprint("✓") }
func Cross() string   { return cross.Sprint("✗") }
func Pending() string { return pending.Sprint("…") }

// NoColor disables every color, for output that is not a terminal.
func NoColor() {
	color.NoColor = true
	gkcolor.Disable()
}

func PrintBanner() {
	fmt.Println(LightBlue(strings.Replace(Banner, "version", ralphstack.Version, 1)))
}

func Success(msg string) {
	fmt.Print(Green(msg + "\n"))
}

func Warning(msg string) {
	fmt.Print(Gold("Warning: " + msg + "\n"))
}

func Error(msg string) {
	fmt.Print(Red("Error: " + msg + "\n"))
}

func Links(docLinkName string, deepLinkName string) string {
	deepLink := CodeRoot + "#readme"
	if deepLinkName != "" {
		deepLink = CodeRoot + "/blob/main/docs/" + deepLinkName + ".md"
	}

	return "\n" + Gold("Code: ") + CodeRoot +
		"\n" + Gold(docLinkName+": ") + deepLink +
		"\n" + Gold("Bugs: ") + CodeRoot + "/issues"
}

func ClearScreen() {
	fmt.Print("\033[H\033[2J")
}
