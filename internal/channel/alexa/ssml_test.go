package alexa

import (
	"strings"
	"testing"
)

func TestToSSML_StripsMarkdown(t *testing.T) {
	in := "# Heading\n\nUse **bold** and `code` or _italic_.\n\n- bullet one\n- bullet two\n\n```go\nfmt.Println(\"hi\")\n```\n1. numbered"
	out := ToSSML(in)

	if !strings.HasPrefix(out, "<speak>") || !strings.HasSuffix(out, "</speak>") {
		t.Fatalf("missing speak wrapper: %q", out)
	}
	for _, bad := range []string{"*", "`", "#", "```", "fmt.Println"} {
		if strings.Contains(out, bad) {
			t.Fatalf("output contains %q: %q", bad, out)
		}
	}
	if !strings.Contains(out, "bold") || !strings.Contains(out, "italic") {
		t.Fatalf("inner text lost: %q", out)
	}
	if !strings.Contains(out, "bullet one") {
		t.Fatalf("bullet text lost: %q", out)
	}
}

func TestToSSML_EscapesXML(t *testing.T) {
	out := ToSSML("5 < 10 && 10 > 5")
	if strings.Contains(out, "&&") {
		t.Fatalf("raw ampersands survive: %q", out)
	}
	if !strings.Contains(out, "&lt;") || !strings.Contains(out, "&gt;") || !strings.Contains(out, "&amp;") {
		t.Fatalf("entities missing: %q", out)
	}
}

func TestToSSML_BlankLinesBecomePauses(t *testing.T) {
	out := ToSSML("First paragraph.\n\nSecond paragraph.")
	if !strings.Contains(out, `<break time="0.5s"/>`) {
		t.Fatalf("no pause inserted: %q", out)
	}
}

func TestToSSML_StripsEmoji(t *testing.T) {
	out := ToSSML("Great job 🎉👍 keep going ☀️")
	for _, bad := range []string{"🎉", "👍", "☀"} {
		if strings.Contains(out, bad) {
			t.Fatalf("emoji survived: %q", out)
		}
	}
	if !strings.Contains(out, "Great job") || !strings.Contains(out, "keep going") {
		t.Fatalf("text lost: %q", out)
	}
}

func TestToSSML_TruncatesLongInput(t *testing.T) {
	in := strings.Repeat("All work and no play makes a dull response. ", 500) // ~22k chars
	out := ToSSML(in)

	if len(out) > 8000 {
		t.Fatalf("output length %d exceeds platform limit", len(out))
	}
	if !strings.Contains(out, "... and more.") {
		t.Fatalf("truncation suffix missing")
	}
	if !strings.HasSuffix(out, "</speak>") {
		t.Fatalf("wrapper lost after truncation: %q", out[len(out)-30:])
	}
}

func TestToSSML_StripsTablesAndLatex(t *testing.T) {
	in := "| col a | col b |\n|---|---|\n| 1 | 2 |\n\nThe result is $x^2$ and $$\\sum_i i$$ done."
	out := ToSSML(in)
	if strings.Contains(out, "col a") || strings.Contains(out, "|") {
		t.Fatalf("table rows survived: %q", out)
	}
	if strings.Contains(out, "x^2") || strings.Contains(out, "sum_i") {
		t.Fatalf("latex survived: %q", out)
	}
	if !strings.Contains(out, "done") {
		t.Fatalf("surrounding text lost: %q", out)
	}
}

func TestToSSML_CollapsesPunctuationRuns(t *testing.T) {
	out := ToSSML("Wait!!! Really??? Yes....")
	for _, bad := range []string{"!!", "??", ".."} {
		if strings.Contains(out, bad) {
			t.Fatalf("punctuation run survived: %q", out)
		}
	}

	// Only runs of the same mark collapse; mixed marks are kept.
	if out := ToSSML("Seriously?! No way"); !strings.Contains(out, "?!") {
		t.Fatalf("mixed punctuation collapsed: %q", out)
	}
}

func TestToSSML_TruncationNeverSplitsEntity(t *testing.T) {
	// Slide an ampersand across the truncation boundary; whatever the
	// exact cut position, every & in the output must start a full escape.
	for pad := 7925; pad <= 7945; pad++ {
		in := strings.Repeat("a", pad) + " & " + strings.Repeat("b", 300)
		out := ToSSML(in)
		if len(out) > 8000 {
			t.Fatalf("pad %d: output length %d exceeds platform limit", pad, len(out))
		}
		for i := 0; i < len(out); i++ {
			if out[i] != '&' {
				continue
			}
			tail := out[i:]
			if !strings.HasPrefix(tail, "&amp;") && !strings.HasPrefix(tail, "&lt;") && !strings.HasPrefix(tail, "&gt;") {
				end := i + 8
				if end > len(out) {
					end = len(out)
				}
				t.Fatalf("pad %d: bare ampersand at %d: %q", pad, i, out[i:end])
			}
		}
	}
}
