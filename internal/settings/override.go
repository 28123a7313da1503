package settings

import (
	"fmt"
	"strconv"
	"strings"
)

// Override payloads are space-separated key=value pairs, e.g.
// "height=0.2 time=60 target_fps=30". Parsing is all-or-nothing: one
// malformed pair rejects the whole payload and the current section is left
// untouched.

// ParseTimelapseOverride applies a payload on top of the current timelapse
// section and returns the candidate. It does not mutate the store.
func ParseTimelapseOverride(cur Timelapse, payload string) (Timelapse, error) {
	pairs, err := splitPairs(payload)
	if err != nil {
		return Timelapse{}, err
	}
	for _, p := range pairs {
		switch p.key {
		case "enabled":
			cur.Enabled, err = parseBool(p)
		case "manual_mode":
			cur.ManualMode, err = parseBool(p)
		case "height":
			cur.Height, err = parseNonNegFloat(p)
		case "time":
			cur.Time, err = parseNonNegInt(p)
		case "target_fps":
			cur.TargetFPS, err = parseMinInt(p, 1)
		case "min_lapse_duration":
			cur.MinLapseDuration, err = parseNonNegInt(p)
		case "max_lapse_duration":
			cur.MaxLapseDuration, err = parseNonNegInt(p)
		case "last_frame_duration":
			cur.LastFrameDuration, err = parseNonNegInt(p)
		default:
			return Timelapse{}, fmt.Errorf("unknown timelapse param %q", p.key)
		}
		if err != nil {
			return Timelapse{}, err
		}
	}
	return cur, nil
}

// ParseNotificationsOverride applies a payload on top of the current
// notification section and returns the candidate.
func ParseNotificationsOverride(cur Notifications, payload string) (Notifications, error) {
	pairs, err := splitPairs(payload)
	if err != nil {
		return Notifications{}, err
	}
	for _, p := range pairs {
		switch p.key {
		case "percent":
			cur.Percent, err = parseNonNegFloat(p)
		case "height":
			cur.Height, err = parseNonNegFloat(p)
		case "time":
			cur.Time, err = parseNonNegInt(p)
		default:
			return Notifications{}, fmt.Errorf("unknown notification param %q", p.key)
		}
		if err != nil {
			return Notifications{}, err
		}
	}
	return cur, nil
}

// FormatTimelapse renders the section the way override responses echo it.
func FormatTimelapse(t Timelapse) string {
	return fmt.Sprintf(
		"enabled=%t manual_mode=%t height=%g time=%d target_fps=%d min_lapse_duration=%d max_lapse_duration=%d last_frame_duration=%d",
		t.Enabled, t.ManualMode, t.Height, t.Time, t.TargetFPS, t.MinLapseDuration, t.MaxLapseDuration, t.LastFrameDuration,
	)
}

// FormatNotifications renders the section the way override responses echo it.
func FormatNotifications(n Notifications) string {
	return fmt.Sprintf("percent=%g height=%g time=%d", n.Percent, n.Height, n.Time)
}

type pair struct {
	key, val string
}

func splitPairs(payload string) ([]pair, error) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty override payload")
	}
	pairs := make([]pair, 0, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("malformed pair %q, want key=value", f)
		}
		pairs = append(pairs, pair{key: k, val: v})
	}
	return pairs, nil
}

func parseBool(p pair) (bool, error) {
	switch p.val {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("param %s: %q is not a bool", p.key, p.val)
}

func parseNonNegFloat(p pair) (float64, error) {
	v, err := strconv.ParseFloat(p.val, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("param %s: %q is not a non-negative number", p.key, p.val)
	}
	return v, nil
}

func parseNonNegInt(p pair) (int, error) {
	return parseMinInt(p, 0)
}

func parseMinInt(p pair, min int) (int, error) {
	v, err := strconv.Atoi(p.val)
	if err != nil || v < min {
		return 0, fmt.Errorf("param %s: %q is not an integer >= %d", p.key, p.val, min)
	}
	return v, nil
}
