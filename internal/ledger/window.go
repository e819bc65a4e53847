package ledger

import (
	"strconv"
	"strings"
	"time"
)

// DefaultWindow applies when a window token cannot be parsed
const (
	DefaultWindow      = 24 * time.Hour
	DefaultWindowToken = "24h"
)

const maxWindow = 10 * 365 * 24 * time.Hour

// ParseWindow parses "<N>h", "<N>d" or "<N>w" with N a positive integer.
// Anything else yields DefaultWindow.
func ParseWindow(token string) time.Duration {
	d, _ := parseWindow(token)
	return d
}

// parseWindow also returns the normalized token that was applied
func parseWindow(token string) (time.Duration, string) {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) < 2 {
		return DefaultWindow, DefaultWindowToken
	}

	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return DefaultWindow, DefaultWindowToken
	}

	var unit time.Duration
	switch token[len(token)-1] {
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return DefaultWindow, DefaultWindowToken
	}

	if time.Duration(n) > maxWindow/unit {
		return maxWindow, token
	}
	return time.Duration(n) * unit, token
}
