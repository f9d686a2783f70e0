package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Map identifiers accepted by the provider for custom tournament games.
const (
	MapSummonersRift = "SUMMONERS_RIFT"
	MapHowlingAbyss  = "HOWLING_ABYSS"
)

// SupportedMaps lists the maps a game may be created on.
var SupportedMaps = []string{MapSummonersRift, MapHowlingAbyss}

func IsSupportedMap(mapID string) bool {
	for _, m := range SupportedMaps {
		if m == mapID {
			return true
		}
	}
	return false
}

// MapDisplayName turns "SUMMONERS_RIFT" into "Summoners Rift".
func MapDisplayName(mapID string) string {
	// Casers keep state, so one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(mapID), "_", " "))
}
