package models

import (
	"errors"
	"strings"
)

// ErrUnknownSeverity is returned when a severity name cannot be parsed.
var ErrUnknownSeverity = errors.New("unknown punishment severity")

// Severity orders server punishments from least to most severe.
type Severity int

// Punishment severities.
const (
	Warning Severity = iota
	Monitoring
	TemporaryServerListRemoval
	PermanentServerListRemoval
)

var severityNames = [...]string{
	Warning:                    "Warning",
	Monitoring:                 "Monitoring",
	TemporaryServerListRemoval: "TemporaryServerListRemoval",
	PermanentServerListRemoval: "PermanentServerListRemoval",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "Unknown"
	}

	return severityNames[s]
}

// RemovesListing reports whether the severity takes the server off the directory.
func (s Severity) RemovesListing() bool {
	return s >= TemporaryServerListRemoval
}

// ParseSeverity accepts the severity name (case-insensitive) or its numeric value.
func ParseSeverity(v string) (Severity, error) {
	v = strings.TrimSpace(v)
	for i, name := range severityNames {
		if strings.EqualFold(name, v) || v == string(rune('0'+i)) {
			return Severity(i), nil
		}
	}

	return Warning, ErrUnknownSeverity
}
