package alexa

import (
	"regexp"
	"strings"
	"unicode"
)

// Alexa rejects speech over 8000 characters. The body is truncated a bit
// below that so the suffix and the <speak> wrapper always fit.
const speechLimit = 7950

const truncationSuffix = "... and more."

var (
	reCodeFence   = regexp.MustCompile("(?s)```.*?```")
	reInlineCode  = regexp.MustCompile("`([^`]*)`")
	reHeader      = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	reBold        = regexp.MustCompile(`\*\*([^*]*)\*\*|__([^_]*)__`)
	reItalic      = regexp.MustCompile(`\*([^*]*)\*|_([^_]*)_`)
	reBullet      = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reNumbered    = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	reTableRow    = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
	reTableRule   = regexp.MustCompile(`(?m)^\s*[:\-| ]+\s*$`)
	reLink        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reLatexBlock  = regexp.MustCompile(`(?s)\$\$.*?\$\$|\\\[.*?\\\]`)
	reLatexInline = regexp.MustCompile(`\$[^$\n]*\$|\\\([^)]*\\\)`)
	reBlankLines  = regexp.MustCompile(`\n\s*\n+`)
	reSpaces      = regexp.MustCompile(`[ \t]+`)
)

// ToSSML converts markdown-ish model output into speech-safe SSML:
// formatting markers are stripped rather than spoken, blank lines become
// timed pauses, XML metacharacters are escaped and the result is
// truncated to the platform speech limit and wrapped in <speak>.
func ToSSML(text string) string {
	s := text

	s = reCodeFence.ReplaceAllString(s, " ")
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = reLatexBlock.ReplaceAllString(s, " ")
	s = reLatexInline.ReplaceAllString(s, " ")
	s = reTableRow.ReplaceAllString(s, "")
	s = reTableRule.ReplaceAllString(s, "")
	s = reHeader.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	s = reBold.ReplaceAllString(s, "$1$2")
	s = reItalic.ReplaceAllString(s, "$1$2")
	s = reBullet.ReplaceAllString(s, "")
	s = reNumbered.ReplaceAllString(s, "")

	s = stripUnspeakable(s)

	// Escape before inserting SSML tags so the tags survive.
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	s = reBlankLines.ReplaceAllString(s, `. <break time="0.5s"/> `)
	s = strings.ReplaceAll(s, "\n", " ")
	s = collapsePunctRuns(s)
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > speechLimit {
		cut := speechLimit - len(truncationSuffix)
		// Back off to a rune boundary.
		for cut > 0 && !utf8Start(s[cut]) {
			cut--
		}
		cut = entitySafeCut(s, cut)
		s = s[:cut] + truncationSuffix
	}

	return "<speak>" + s + "</speak>"
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// entitySafeCut moves the cut point before any partially included XML
// escape (&amp; &lt; &gt;) so truncation never emits a bare ampersand.
func entitySafeCut(s string, cut int) int {
	for back := 1; back <= 5 && back <= cut; back++ {
		switch s[cut-back] {
		case ';':
			return cut
		case '&':
			return cut - back
		}
	}
	return cut
}

// collapsePunctRuns reduces a run of one repeated punctuation mark to a
// single occurrence ("Wait!!!" speaks as "Wait!").
func collapsePunctRuns(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	var prev rune
	for _, r := range s {
		if r == prev && strings.ContainsRune(".!?,;:", r) {
			continue
		}
		sb.WriteRune(r)
		prev = r
	}
	return sb.String()
}

// stripUnspeakable drops emoji and other symbol runes the speech engine
// cannot render. Letters, digits, whitespace and ordinary punctuation
// pass through.
func stripUnspeakable(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '*' || r == '`' || r == '#' || r == '_' || r == '|' || r == '~' || r == '\\':
			// Markdown residue never sounds right spoken aloud.
		case r == '\n' || r == '\t':
			sb.WriteRune(r)
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ':
			sb.WriteRune(r)
		case unicode.IsPunct(r) && r < 0x2000:
			sb.WriteRune(r)
		case r == '+' || r == '=' || r == '$' || r == '%' || r == '&' || r == '<' || r == '>':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
