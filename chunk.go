package relay

import (
	"strings"
	"unicode"
)

// fence is the Markdown code fence marker.
const fence = "```"

// Segment is one fence-safe piece of a finished text, ready to send as a
// single message.
type Segment struct {
	Text     string
	Reopened bool   // Text starts with a synthetic fence reopening the previous segment's block.
	Closed   bool   // Text ends with a synthetic fence closing a block cut at this boundary.
	Lang     string // Language tag of the block cut at the end of this segment, if Closed.
}

// Body returns the segment text without its synthetic fences.
func (s Segment) Body() string {
	t := s.Text
	if s.Closed {
		t = strings.TrimSuffix(t, "\n"+fence)
	}
	if s.Reopened {
		if i := strings.IndexByte(t, '\n'); i >= 0 {
			t = t[i+1:]
		} else {
			t = ""
		}
	}
	return t
}

// Split partitions text into segments of at most maxLen code points, cutting
// only at line breaks and keeping fenced code blocks balanced in every
// segment. A line longer than maxLen becomes its own oversized segment.
// Code block lines are kept verbatim, blank runs included. Outside code
// blocks, blank lines at a segment boundary and the whitespace ending a
// segment are dropped. A non-positive maxLen disables the bound.
func Split(text string, maxLen int) []string {
	return SplitFunc(text, maxLen, Runes)
}

// SplitFunc is Split with an explicit length measure.
func SplitFunc(text string, maxLen int, length LenFunc) []string {
	segs := SplitSegmentsFunc(text, maxLen, length)
	if len(segs) == 0 {
		return nil
	}
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}
	return out
}

// SplitSegments is Split returning the fence bookkeeping of every segment.
func SplitSegments(text string, maxLen int) []Segment {
	return SplitSegmentsFunc(text, maxLen, Runes)
}

// SplitSegmentsFunc is SplitSegments with an explicit length measure.
func SplitSegmentsFunc(text string, maxLen int, length LenFunc) []Segment {
	if length == nil {
		length = Runes
	}
	c := chunker{maxLen: maxLen, length: length}

	var inFence bool
	var lang string
	for _, line := range strings.Split(text, "\n") {
		closing := inFence && strings.TrimSpace(line) == fence
		// A real closing fence stands in for the synthetic one, so it never
		// starts a segment of its own.
		if c.lines > 0 && !closing && c.overflows(line) {
			c.flush(inFence, lang)
			if inFence {
				c.seed(lang)
			}
		}
		c.append(line)

		// Fence state changes after the line is buffered, so a cut always
		// sees the state of the lines already in the buffer.
		switch {
		case !inFence && strings.HasPrefix(line, fence):
			inFence = true
			lang = strings.TrimSpace(line[len(fence):])
		case closing:
			inFence = false
			lang = ""
		}
	}
	if c.lines > 0 {
		c.flush(inFence, lang)
	}
	return c.out
}

// chunker accumulates lines for the segment being built.
type chunker struct {
	maxLen int
	length LenFunc
	out    []Segment

	buf        strings.Builder
	size       int  // length of buf
	lines      int  // source lines in buf
	hasContent bool // some buffered source line is not blank
	reopened   bool
}

func (c *chunker) overflows(line string) bool {
	if c.maxLen <= 0 {
		return false
	}
	return c.size+c.length(line)+1 > c.maxLen
}

// append buffers line. Blank lines that would start a segment outside a
// code block are skipped.
func (c *chunker) append(line string) {
	blank := strings.TrimSpace(line) == ""
	if blank && !c.hasContent && !c.reopened {
		return
	}
	c.buf.WriteString(line)
	c.buf.WriteByte('\n')
	c.size += c.length(line) + 1
	c.lines++
	if !blank {
		c.hasContent = true
	}
}

func (c *chunker) seed(lang string) {
	opener := fence + lang + "\n"
	c.buf.WriteString(opener)
	c.size += c.length(opener)
	c.reopened = true
}

// flush emits the buffer as a segment and resets. Inside a code block every
// buffered line is kept as written, blank or not, and the block is closed.
// Outside one, trailing whitespace is trimmed and a blank buffer is dropped.
func (c *chunker) flush(inFence bool, lang string) {
	switch {
	case inFence:
		c.out = append(c.out, Segment{
			Text:     strings.TrimSuffix(c.buf.String(), "\n") + "\n" + fence,
			Reopened: c.reopened,
			Closed:   true,
			Lang:     lang,
		})
	case c.hasContent:
		c.out = append(c.out, Segment{
			Text:     strings.TrimRightFunc(c.buf.String(), unicode.IsSpace),
			Reopened: c.reopened,
		})
	}
	c.buf.Reset()
	c.size = 0
	c.lines = 0
	c.hasContent = false
	c.reopened = false
}
