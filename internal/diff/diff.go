// Package diff extracts changed-line hunks from unified diff text.
package diff

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/diffcontext/pkg/types"
)

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// maxLineSize bounds a single diff line; generated files can carry very
// long lines.
const maxLineSize = 1 << 20

// Parse reads unified diff text and returns one Hunk per @@ header,
// attributed to the new-side file path. Hunks for deleted files
// (new path /dev/null) are skipped: they reference no current lines.
func Parse(r io.Reader) ([]types.Hunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var hunks []types.Hunk
	currentFile := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "+++ b/"):
			currentFile = line[len("+++ b/"):]
		case strings.HasPrefix(line, "+++ /dev/null"):
			currentFile = ""
		case strings.HasPrefix(line, "@@") && currentFile != "":
			m := hunkHeader.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			hunks = append(hunks, types.Hunk{
				FilePath: currentFile,
				OldStart: atoiDefault(m[1], 0),
				OldLines: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 0),
				NewLines: atoiDefault(m[4], 1),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read diff: %w", err)
	}
	return hunks, nil
}

// ParseString is a convenience wrapper for diff text already in memory.
func ParseString(text string) ([]types.Hunk, error) {
	return Parse(strings.NewReader(text))
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
