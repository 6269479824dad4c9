package sandbox

import (
	"regexp"
	"strings"
)

// InputCall is the interactive-read call form that the guard rejects
const InputCall = "input("

var (
	lineCommentPattern = regexp.MustCompile(`#.*`)
	doubleQuoteBlock   = regexp.MustCompile(`(?s)""".*?"""`)
	singleQuoteBlock   = regexp.MustCompile(`(?s)'''.*?'''`)
)

// StripComments removes single-line comments and triple-quoted blocks.
//
// This is pattern based, not a tokenizer: a '#' inside a string literal
// truncates the line, and an unterminated triple-quoted block is kept.
func StripComments(source string) string {
	source = lineCommentPattern.ReplaceAllString(source, "")
	source = doubleQuoteBlock.ReplaceAllString(source, "")
	source = singleQuoteBlock.ReplaceAllString(source, "")
	return source
}

// Guard reports whether source may run. Snippets that call input() outside
// comments are rejected, since no channel exists to answer them.
// The token inside a string literal is rejected as well.
func Guard(source string) bool {
	return !strings.Contains(StripComments(source), InputCall)
}
