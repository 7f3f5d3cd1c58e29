package chat

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// The wire format for streamed responses is one line per text chunk,
// each prefixed with "0:" followed by the JSON-encoded chunk:
//
//	0:"Hello"
//	0:" world"
//
// EncodeChunk produces one such line including the trailing newline.
func EncodeChunk(text string) string {
	b, _ := json.Marshal(text)
	return "0:" + string(b) + "\n"
}

// DecodeStream reads a full response body in the line protocol and
// concatenates the text chunks. Lines with other prefixes (tool call
// markers, metadata) are skipped.
func DecodeStream(r io.Reader) (string, error) {
	var sb strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "0:") {
			continue
		}
		var chunk string
		if err := json.Unmarshal([]byte(line[2:]), &chunk); err != nil {
			return "", fmt.Errorf("decode stream line: %w", err)
		}
		sb.WriteString(chunk)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
