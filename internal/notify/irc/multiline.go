package irc

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/lrstanley/girc"
)

const (
	capMultiline       = "draft/multiline"
	tagMultilineConcat = "draft/multiline-concat"
	tagBatch           = "batch"
	cmdBATCH           = "BATCH"
)

// multilineCaps holds the server's draft/multiline limits. Zero means unknown.
type multilineCaps struct {
	maxBytes int
	maxLines int
}

func newBatchID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// parseMultilineCaps parses "max-bytes=4096,max-lines=24".
func parseMultilineCaps(value string) multilineCaps {
	var caps multilineCaps
	for _, token := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		switch k {
		case "max-bytes":
			caps.maxBytes, _ = strconv.Atoi(v)
		case "max-lines":
			caps.maxLines, _ = strconv.Atoi(v)
		}
	}
	return caps
}

// capsFromList finds draft/multiline in a CAP capability list.
func capsFromList(list string) (multilineCaps, bool) {
	for _, part := range strings.Fields(list) {
		name, value, hasValue := strings.Cut(part, "=")
		if name != capMultiline {
			continue
		}
		if !hasValue {
			return multilineCaps{}, true
		}
		return parseMultilineCaps(value), true
	}
	return multilineCaps{}, false
}

// planBatches groups lines into batches that respect the server limits. A
// first line that alone exceeds max-bytes is truncated.
func planBatches(lines []string, caps multilineCaps) [][]string {
	var batches [][]string
	for len(lines) > 0 {
		var batch []string
		total := 0
		for i, line := range lines {
			if caps.maxLines > 0 && i >= caps.maxLines {
				break
			}
			size := len(line)
			if i > 0 {
				size++
			}
			if caps.maxBytes > 0 && total+size > caps.maxBytes {
				if i == 0 {
					batch = append(batch, line[:caps.maxBytes])
				}
				break
			}
			batch = append(batch, line)
			total += size
		}
		if len(batch) == 0 {
			break
		}
		batches = append(batches, batch)
		lines = lines[len(batch):]
	}
	return batches
}

// batchEvents renders one BATCH block. Lines longer than maxLen are split
// and every piece but the last carries the concat tag.
func batchEvents(id, target string, lines []string, maxLen int) []*girc.Event {
	events := []*girc.Event{{
		Command: cmdBATCH,
		Params:  []string{"+" + id, capMultiline, target},
	}}

	for _, line := range lines {
		for {
			chunk := line
			if len(chunk) > maxLen {
				chunk = line[:maxLen]
			}
			line = line[len(chunk):]

			tags := girc.Tags{tagBatch: id}
			if line != "" {
				tags[tagMultilineConcat] = ""
			}
			events = append(events, &girc.Event{
				Command: girc.PRIVMSG,
				Params:  []string{target, chunk},
				Tags:    tags,
			})
			if line == "" {
				break
			}
		}
	}

	return append(events, &girc.Event{Command: cmdBATCH, Params: []string{"-" + id}})
}

// multilineFailCode returns the code of a FAIL BATCH MULTILINE_* reply.
func multilineFailCode(e girc.Event) (string, bool) {
	if e.Command != "FAIL" || len(e.Params) < 2 || e.Params[0] != cmdBATCH {
		return "", false
	}
	switch code := e.Params[1]; code {
	case "MULTILINE_MAX_BYTES", "MULTILINE_MAX_LINES", "MULTILINE_INVALID_TARGET", "MULTILINE_INVALID":
		return code, true
	}
	return "", false
}
