// package matcher scores how well a candidate track from one catalog matches a source track from another.
package matcher

import "strings"

const (
	titleWeight    = 60.0
	artistWeight   = 40.0
	substringBonus = 10.0
	maxScore       = 100.0
)

// Score rates a candidate against a source track on a 0 to 100 scale.
//
// Title similarity contributes up to 60 points and artist similarity up to 40. Each component earns a 10 point bonus
// when the source title (or artist) appears verbatim in the candidate title, which is common for video platforms
// that put "Artist - Title" in the video name. The sum is clamped to 100.
func Score(sourceTitle, sourceArtist, candidateTitle, candidateArtist string) float64 {
	sourceTitle = normalize(sourceTitle)
	sourceArtist = normalize(sourceArtist)
	candidateTitle = normalize(candidateTitle)
	candidateArtist = normalize(candidateArtist)

	titleScore := Similarity(sourceTitle, candidateTitle) * titleWeight
	artistScore := Similarity(sourceArtist, candidateArtist) * artistWeight

	if sourceArtist != "" && strings.Contains(candidateTitle, sourceArtist) {
		artistScore += substringBonus
	}
	if sourceTitle != "" && strings.Contains(candidateTitle, sourceTitle) {
		titleScore += substringBonus
	}

	return min(titleScore+artistScore, maxScore)
}

// Similarity returns the longest-common-subsequence ratio of a and b: 2*LCS / (len(a)+len(b)), counted in runes.
//
// Two empty strings have similarity 0.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
