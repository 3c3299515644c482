package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Moderation duration spec: any subset of <n>d<n>h<n>m<n>s in that order,
// or "*" for permanent (encoded as 0 seconds).

var durationRe = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// ErrBadDuration is returned for specs that mix units out of order or use
// unknown units.
var ErrBadDuration = errors.New("invalid duration")

// ParseDuration converts a duration spec to seconds. "*" means permanent
// and parses to 0.
func ParseDuration(spec string) (uint64, error) {
	if spec == "*" {
		return 0, nil
	}
	if spec == "" || !durationRe.MatchString(spec) {
		return 0, ErrBadDuration
	}
	groups := durationRe.FindStringSubmatch(spec)
	multipliers := []uint64{86400, 3600, 60, 1}
	var total uint64
	for i, m := range multipliers {
		g := groups[i+1]
		if g == "" {
			continue
		}
		n, err := strconv.ParseUint(g[:len(g)-1], 10, 64)
		if err != nil {
			return 0, ErrBadDuration
		}
		total += n * m
	}
	if total == 0 {
		return 0, ErrBadDuration
	}
	return total, nil
}

// FormatDuration renders seconds as "Nd Nh Nm Ns", omitting leading zero
// units. 0 renders as "PERMANENT".
func FormatDuration(seconds uint64) string {
	if seconds == 0 {
		return "PERMANENT"
	}
	d := seconds / 86400
	h := seconds % 86400 / 3600
	m := seconds % 3600 / 60
	s := seconds % 60

	var parts []string
	switch {
	case d > 0:
		parts = []string{
			fmt.Sprintf("%dd", d), fmt.Sprintf("%dh", h),
			fmt.Sprintf("%dm", m), fmt.Sprintf("%ds", s),
		}
	case h > 0:
		parts = []string{
			fmt.Sprintf("%dh", h), fmt.Sprintf("%dm", m), fmt.Sprintf("%ds", s),
		}
	case m > 0:
		parts = []string{fmt.Sprintf("%dm", m), fmt.Sprintf("%ds", s)}
	default:
		parts = []string{fmt.Sprintf("%ds", s)}
	}
	return strings.Join(parts, " ")
}
