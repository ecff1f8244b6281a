// Package cleaner strips transcript noise: segment markers, inaudible-content
// tags, subscription spam the model hallucinates from training data, and
// runaway repeated phrases.
package cleaner

import (
	"regexp"
	"strings"
)

var (
	separatorLine = regexp.MustCompile(`^=+$`)
	segmentMarker = regexp.MustCompile(`^===.*\.wav.*===\s*$`)
	metadataLine  = regexp.MustCompile(`^(Meeting|Date|Source file|Generated|Total):`)

	inaudibleMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\[INAUDIBLE\]`),
		regexp.MustCompile(`\[Música\]`),
		regexp.MustCompile(`\(murmullos\)`),
		regexp.MustCompile(`(?i)\(music\)`),
		regexp.MustCompile(`(?i)\(background noise\)`),
		regexp.MustCompile(`(?i)\[background noise\]`),
	}

	spamKeywords = []string{
		"subscribe",
		"đăng ký",
		"theo dõi",
		"video hấp dẫn",
		"like and subscribe",
		"hit the bell",
	}

	connectorSplit = regexp.MustCompile(`,\s*but\s+|,\s*and\s+|\.\s+`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Clean applies every cleanup rule and collapses the resulting blank runs.
func Clean(text string) string {
	text = RemoveMetadataLines(text)
	text = RemoveInaudibleMarkers(text)
	text = RemoveSpamLines(text)
	text = RemoveRepetitiveHallucinations(text)
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text) + "\n"
}

// RemoveMetadataLines drops separator lines, segment markers, and merged-
// transcript header lines.
func RemoveMetadataLines(text string) string {
	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case separatorLine.MatchString(trimmed):
		case segmentMarker.MatchString(trimmed):
		case metadataLine.MatchString(trimmed):
		case strings.Contains(line, "MASTER TRANSCRIPT"), strings.Contains(line, "ALL MEETINGS"):
		default:
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// RemoveInaudibleMarkers strips bracketed noise/music markers in any of the
// languages the models emit them in.
func RemoveInaudibleMarkers(text string) string {
	for _, re := range inaudibleMarkers {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

// RemoveSpamLines drops lines the model hallucinated from video training data
// (subscribe prompts and similar).
func RemoveSpamLines(text string) string {
	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		spam := false
		for _, kw := range spamKeywords {
			if strings.Contains(lower, kw) {
				spam = true
				break
			}
		}
		if !spam {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// RemoveRepetitiveHallucinations drops long lines where one phrase repeats
// across most of the line, the classic whisper decoding loop.
func RemoveRepetitiveHallucinations(text string) string {
	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		if len(line) > 200 && isRepetitive(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}

func isRepetitive(line string) bool {
	segments := connectorSplit.Split(line, -1)
	if len(segments) <= 3 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(segments[0]))
	if first == "" {
		return false
	}
	similar := 0
	for _, seg := range segments {
		if strings.ToLower(strings.TrimSpace(seg)) == first {
			similar++
		}
	}
	return similar > len(segments)/2
}
