package chat

import (
	"strings"
	"testing"
)

func TestEncodeChunk(t *testing.T) {
	got := EncodeChunk(`he said "hi"` + "\n")
	want := `0:"he said \"hi\"\n"` + "\n"
	if got != want {
		t.Fatalf("EncodeChunk = %q, want %q", got, want)
	}
}

func TestDecodeStream_Concatenates(t *testing.T) {
	body := EncodeChunk("Hello") + EncodeChunk(", ") + EncodeChunk("world")
	got, err := DecodeStream(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if got != "Hello, world" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeStream_SkipsOtherPrefixes(t *testing.T) {
	body := `2:{"toolCall":"lookup"}` + "\n" +
		EncodeChunk("answer") +
		`d:{"finishReason":"stop"}` + "\n"
	got, err := DecodeStream(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if got != "answer" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeStream_RoundTripMultiline(t *testing.T) {
	original := "line one\n\nline two with \"quotes\" and unicode ☃"
	var body strings.Builder
	for _, chunk := range strings.SplitAfter(original, " ") {
		body.WriteString(EncodeChunk(chunk))
	}
	got, err := DecodeStream(strings.NewReader(body.String()))
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if got != original {
		t.Fatalf("round trip mismatch: %q", got)
	}
}
