package model

import (
	"fmt"
	"strings"
)

// Season selects the base climate regime for a simulation run. It is an
// explicit configuration input, fixed at construction; it is never derived
// from the wall clock.
type Season string

const (
	SeasonRainy Season = "rainy"
	SeasonDry   Season = "dry"
)

// ParseSeason maps a config string to a Season. It is tolerant about case
// and surrounding whitespace but rejects anything it does not recognise.
func ParseSeason(s string) (Season, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rainy", "wet":
		return SeasonRainy, nil
	case "dry":
		return SeasonDry, nil
	default:
		return "", fmt.Errorf("unknown season %q (want rainy or dry)", s)
	}
}
