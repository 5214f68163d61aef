package profile

import "sellout/internal/util"

type DetectResult struct {
	Profile   SourceProfile
	Confident bool
	Reason    string
}

// Detect classifies an upload by filename first, sheet names second.
// Matching is case-insensitive, whitespace-normalized substring matching;
// the catalog order is the specificity order, so the first hit wins on
// ambiguity. Detection never fails: an unrecognized pair gets the fallback
// profile and the run continues flagged low-confidence.
func Detect(filename string, sheetNames []string) DetectResult {
	for _, p := range Catalog() {
		for _, pattern := range p.FilenamePatterns {
			if util.ContainsNormalized(filename, pattern) {
				return DetectResult{Profile: p, Confident: true, Reason: "filename:" + pattern}
			}
		}
	}

	for _, p := range Catalog() {
		for _, pattern := range p.SheetNamePatterns {
			for _, sheet := range sheetNames {
				if util.ContainsNormalized(sheet, pattern) {
					return DetectResult{Profile: p, Confident: true, Reason: "sheet:" + pattern}
				}
			}
		}
	}

	return DetectResult{Profile: FallbackProfile(), Confident: false, Reason: "fallback"}
}
