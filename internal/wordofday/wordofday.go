// Package wordofday derives the daily verification token that binds a QR
// code to a calendar date. The derivation is pure: the same local day always
// yields the same token, so a scanner can validate codes generated on another
// device without any server round trip.
package wordofday

import (
	"crypto/sha256"
	"fmt"
	"time"
)

const dayFormat = "2006-01-02"

var adjectives = []string{
	"amber", "bold", "brave", "bright", "calm", "clever", "coral", "crisp",
	"eager", "fair", "fleet", "gentle", "golden", "grand", "green", "happy",
	"hardy", "humble", "ivory", "jolly", "keen", "kind", "lively", "lucky",
	"mellow", "merry", "noble", "patient", "plucky", "proud", "quick", "quiet",
	"rapid", "royal", "rustic", "sharp", "silver", "smooth", "solid", "steady",
	"stout", "sunny", "swift", "tidy", "trusty", "vivid", "warm", "wise",
}

var nouns = []string{
	"anchor", "badger", "beacon", "bridge", "canyon", "cedar", "comet",
	"condor", "cricket", "dolphin", "falcon", "ferry", "garden", "glacier",
	"harbor", "heron", "island", "jaguar", "lagoon", "lantern", "maple",
	"meadow", "meteor", "orchard", "osprey", "otter", "pebble", "pelican",
	"pine", "prairie", "raven", "reef", "river", "saddle", "sparrow",
	"spruce", "summit", "thicket", "tiger", "trail", "tundra", "valley",
	"walnut", "willow", "wolf", "wren", "zenith", "zephyr",
}

// ForDate maps a calendar date (by the device's local day) to its token.
// The token is an adjective-noun pair chosen by hashing the YYYY-MM-DD
// string, giving ~2300 combinations across consecutive days.
func ForDate(t time.Time) string {
	day := t.Format(dayFormat)
	sum := sha256.Sum256([]byte(day))
	adj := adjectives[int(sum[0])%len(adjectives)]
	noun := nouns[int(sum[1])%len(nouns)]
	return fmt.Sprintf("%s-%s", adj, noun)
}
