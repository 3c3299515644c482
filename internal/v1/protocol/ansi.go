package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ANSI escape helpers for the line protocol. Non-control server lines are
// displayable text and may carry color; clients render them verbatim.

const ansiReset = "\x1b[0m"

func Yellow(s string) string       { return "\x1b[33m" + s + ansiReset }
func Red(s string) string          { return "\x1b[31m" + s + ansiReset }
func Green(s string) string        { return "\x1b[32m" + s + ansiReset }
func Cyan(s string) string         { return "\x1b[36m" + s + ansiReset }
func BrightGreen(s string) string  { return "\x1b[92m" + s + ansiReset }
func BrightYellow(s string) string { return "\x1b[93m" + s + ansiReset }
func BrightBlue(s string) string   { return "\x1b[94m" + s + ansiReset }
func Italic(s string) string       { return "\x1b[3m" + s + ansiReset }

// Colored renders s in the given hex color using a truecolor escape.
// Accepts "RRGGBB" or "#RRGGBB"; invalid colors fall through uncolored.
func Colored(hex, s string) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return s
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s%s", r, g, b, s, ansiReset)
}

// ValidHexColor reports whether s is a 6-digit hex color, with or without
// a leading '#'.
func ValidHexColor(s string) bool {
	_, _, _, ok := parseHex(s)
	return ok
}

// NormalizeHexColor returns the canonical "#RRGGBB" form.
func NormalizeHexColor(s string) string {
	return "#" + strings.ToUpper(strings.TrimPrefix(s, "#"))
}

func parseHex(s string) (r, g, b uint8, ok bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8 & 0xFF), uint8(v & 0xFF), true
}
