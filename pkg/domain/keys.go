package domain

import (
	"fmt"
	"strings"
)

const artifactPrefix = "analysis_reports"

// keySegment percent-escapes the characters that would let a subject or
// upload id leave the artifact prefix or blur the "_" between the two.
var keySegment = strings.NewReplacer(
	"%", "%25",
	"_", "%5F",
	"/", "%2F",
	"\\", "%5C",
)

// ReportKey is the object key of the rendered PDF for one upload.
func ReportKey(subject, uploadID string) string {
	return fmt.Sprintf("%s/%s_%s_analysis.pdf", artifactPrefix, keySegment.Replace(subject), keySegment.Replace(uploadID))
}

// ImageKey is the object key of page n (1-based) of the infographic deck.
func ImageKey(subject, uploadID string, n int) string {
	return fmt.Sprintf("%s/%s_%s_image_%02d.png", artifactPrefix, keySegment.Replace(subject), keySegment.Replace(uploadID), n)
}

// ArtifactKeys lists the keys a finished upload of the given type will have.
// images is the number of deck pages expected for infographics.
func ArtifactKeys(wt WorkType, subject, uploadID string, images int) []string {
	switch wt {
	case WorkTypeReport:
		return []string{ReportKey(subject, uploadID)}
	case WorkTypeInfographic:
		keys := make([]string, 0, images)
		for i := 1; i <= images; i++ {
			keys = append(keys, ImageKey(subject, uploadID, i))
		}
		return keys
	default:
		return nil
	}
}
