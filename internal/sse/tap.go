package sse

import "bytes"

// Tap is an io.Writer that watches a passthrough stream line by line and
// records what it sees. It never fails a write.
type Tap struct {
	partial []byte

	Chunks int
	Bytes  int
	Usage  *Usage
	Done   bool
}

func (t *Tap) Write(p []byte) (int, error) {
	t.partial = append(t.partial, p...)
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		t.line(string(t.partial[:i]))
		t.partial = t.partial[i+1:]
	}
	return len(p), nil
}

// Flush processes a trailing line without newline.
func (t *Tap) Flush() {
	if len(t.partial) > 0 {
		t.line(string(t.partial))
		t.partial = nil
	}
}

func (t *Tap) line(s string) {
	kind, c := ParseLine(s)
	switch kind {
	case KindDone:
		t.Done = true
	case KindChunk:
		if content := c.Content(); content != "" {
			t.Chunks++
			t.Bytes += len(content)
		}
		if c.Usage != nil {
			t.Usage = c.Usage
		}
	}
}
