package tts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechFencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	speechInlineCodePattern   = regexp.MustCompile("`[^`]*`")
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// PrepareSpeechText cleans model output for synthesis: markup and symbol
// noise go away, whitespace collapses, the text is capped at the last
// sentence boundary before maxChars runes and always ends with terminal
// punctuation. A non-positive maxChars disables the cap.
func PrepareSpeechText(raw string, maxChars int) string {
	text := sanitizeSpeechText(raw)
	if text == "" {
		return ""
	}
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = capAtSentence(text, maxChars)
	}
	if !endsWithTerminal(text) {
		text += "."
	}
	return text
}

func capAtSentence(text string, maxChars int) string {
	runes := []rune(text)
	window := runes[:maxChars]
	for i := len(window) - 1; i > 0; i-- {
		if isSentenceEnd(window[i]) {
			return strings.TrimSpace(string(window[:i+1]))
		}
	}
	cut := maxChars - 3
	if cut < 1 {
		cut = maxChars
	}
	return strings.TrimSpace(string(runes[:cut])) + "..."
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	default:
		return false
	}
}

func endsWithTerminal(text string) bool {
	r, _ := utf8.DecodeLastRuneInString(text)
	return isSentenceEnd(r)
}

func sanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechFencedCodePattern.ReplaceAllString(raw, " ")
	raw = speechInlineCodePattern.ReplaceAllString(raw, " ")
	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"/", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"<", " ",
		">", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case isSpeechSafePunctuation(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

// French typography keeps guillemets, curly apostrophes and ellipses.
func isSpeechSafePunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')', '’', '«', '»', '…':
		return true
	default:
		return false
	}
}
