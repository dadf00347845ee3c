package orchestrator

import "regexp"

// languageTokenPatterns recognizes common programming-language
// constructs in free-form thought text, the (d) leg of trigger
// detection. Deliberately broad: a false positive here only means an
// audit runs on prose that happens to look like code, which is
// harmless; a false negative means a real code submission is never
// audited.
var languageTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bfunc\s+\w+\s*\(`),
	regexp.MustCompile(`\bdef\s+\w+\s*\(`),
	regexp.MustCompile(`\bclass\s+\w+`),
	regexp.MustCompile(`\b(?:const|let|var)\s+\w+\s*=`),
	regexp.MustCompile(`\bimport\s+[\w."/]+`),
	regexp.MustCompile(`\bpackage\s+\w+`),
	regexp.MustCompile(`[;{}]\s*$`),
	regexp.MustCompile(`=>`),
	regexp.MustCompile(`\breturn\s+\w`),
}

var (
	fencedBlock    = regexp.MustCompile("(?s)```")
	ganConfigBlock = regexp.MustCompile("(?s)```\\s*gan-config")
	diffGitHeader  = regexp.MustCompile(`(?m)^diff --git `)
	diffHunkHeader = regexp.MustCompile(`(?m)^@@ `)
	diffLine       = regexp.MustCompile(`(?m)^[+-][^+-]`)
)

// HasTrigger reports whether body matches any of the four trigger
// legs spec.md §4.1 names: a gan-config block, any fenced code block,
// diff markers, or recognizable language tokens.
func HasTrigger(body string) bool {
	if ganConfigBlock.MatchString(body) {
		return true
	}
	if fencedBlock.MatchString(body) {
		return true
	}
	if diffGitHeader.MatchString(body) || diffHunkHeader.MatchString(body) || diffLine.MatchString(body) {
		return true
	}
	for _, p := range languageTokenPatterns {
		if p.MatchString(body) {
			return true
		}
	}
	return false
}
