package wakeword

import "github.com/antzucaro/matchr"

// fuzzyThreshold is the minimum Jaro-Winkler similarity for two tokens to
// count as sounding alike when their phonetic codes do not overlap.
const fuzzyThreshold = 0.85

// soundsAlike reports whether two tokens are phonetically equivalent:
// their Double Metaphone codes overlap, or their Jaro-Winkler similarity
// reaches the fuzzy threshold.
func soundsAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap != "" && (ap == bp || ap == bs) {
		return true
	}
	if as != "" && (as == bp || as == bs) {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= fuzzyThreshold
}
