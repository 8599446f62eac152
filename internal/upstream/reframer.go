package upstream

import (
	"encoding/json"
	"io"
	"strings"
)

// Frame is the decoded view of one upstream NDJSON record. The relay re-emits
// the raw bytes verbatim and only reads these fields for accumulation and
// termination.
type Frame struct {
	Message struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// Reframer converts an arbitrarily chunked byte stream of newline-delimited
// JSON into complete records. Transport chunking is independent of record
// boundaries, so it accumulates a buffer, splits on newline, and carries the
// final (possibly incomplete) segment over to the next read.
//
// A Reframer is a forward-only, single-use view over its reader.
type Reframer struct {
	r       io.Reader
	buf     strings.Builder
	pending []string
	chunk   []byte
	eof     bool
	drained bool
}

// NewReframer creates a reframer over a live NDJSON byte source.
func NewReframer(r io.Reader) *Reframer {
	return &Reframer{
		r:     r,
		chunk: make([]byte, 4096),
	}
}

// Next returns the next complete record, in original emission order. Lines
// that fail to parse are skipped so a single malformed record does not abort
// an otherwise healthy stream. Returns io.EOF after the source is exhausted
// and any parseable residual record has been emitted.
func (f *Reframer) Next() (json.RawMessage, error) {
	for {
		for len(f.pending) > 0 {
			line := strings.TrimSpace(f.pending[0])
			f.pending = f.pending[1:]
			if line == "" || !json.Valid([]byte(line)) {
				continue
			}
			return json.RawMessage(line), nil
		}

		if f.eof {
			return f.flushResidual()
		}

		n, err := f.r.Read(f.chunk)
		if n > 0 {
			f.buf.Write(f.chunk[:n])
			parts := strings.Split(f.buf.String(), "\n")
			f.buf.Reset()
			// The final segment may be a partial record; it stays
			// buffered for the next chunk.
			f.buf.WriteString(parts[len(parts)-1])
			f.pending = append(f.pending, parts[:len(parts)-1]...)
		}
		if err == io.EOF {
			f.eof = true
		} else if err != nil {
			return nil, err
		}
	}
}

// flushResidual emits the trailing buffer once, if it holds a complete final
// record that simply lacked its newline.
func (f *Reframer) flushResidual() (json.RawMessage, error) {
	if f.drained {
		return nil, io.EOF
	}
	f.drained = true

	rest := strings.TrimSpace(f.buf.String())
	if rest == "" || !json.Valid([]byte(rest)) {
		return nil, io.EOF
	}
	return json.RawMessage(rest), nil
}

// ParseFrame decodes the fields the relay inspects. Unknown fields are
// preserved by re-emitting the raw record, never by this struct.
func ParseFrame(raw json.RawMessage) Frame {
	var fr Frame
	// raw already passed json.Valid; a shape mismatch just leaves zero values.
	_ = json.Unmarshal(raw, &fr)
	return fr
}
