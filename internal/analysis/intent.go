package analysis

import (
	"regexp"

	"github.com/xxxsen/aichat/internal/model"
)

// analysisIntentRe is the fixed intent vocabulary: any "analy..." word, the
// standalone token "ocr", or the bare menu choice "3".
var analysisIntentRe = regexp.MustCompile(`(?i)analy|\bocr\b|\b3\b`)

// LocateActiveFile scans messages from most recent to oldest and returns the
// index and metadata of the first one carrying an uploaded file.
func LocateActiveFile(msgs []model.Message) (int, *model.Metadata, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].HasFile() {
			return i, msgs[i].Metadata, true
		}
	}
	return -1, nil, false
}

// DetectsAnalysisRequest reports whether the latest user message strictly
// after attachmentIdx asks for file analysis. No user message after the
// attachment means no intent.
func DetectsAnalysisRequest(msgs []model.Message, attachmentIdx int) bool {
	var latest *model.Message
	for i := attachmentIdx + 1; i < len(msgs); i++ {
		if msgs[i].Role == model.RoleUser {
			latest = &msgs[i]
		}
	}
	if latest == nil {
		return false
	}
	return analysisIntentRe.MatchString(latest.PlainText())
}
