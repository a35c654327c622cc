package protocol

import (
	"bufio"
	"io"
	"strings"
)

// MaxLineLength is the longest line the reader accepts, in bytes.
const MaxLineLength = 4096

// truncatedLineLength limits how much of an overlong line is kept for
// error reporting.
const truncatedLineLength = 64

// Reader splits a controller byte stream into records.
//
// A Reader is not safe for concurrent use. It keeps no state besides its
// read buffer; create a new Reader for every connection.
type Reader struct {
	br    *bufio.Reader
	lines uint64
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxLineLength)}
}

// Next returns the next record in the stream.
//
// Blank lines are skipped. A line that cannot be decoded yields a
// *ParseError; the caller may keep calling Next, which continues with the
// following line. Any other error comes from the underlying reader (io.EOF
// at end of stream) and ends the stream.
func (r *Reader) Next() (Record, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		return Parse(line)
	}
}

// Lines returns the number of lines consumed so far, including blank and
// malformed ones.
func (r *Reader) Lines() uint64 {
	return r.lines
}

// readLine returns one line without its terminator. Overlong lines are
// consumed completely and reported as ErrLineTooLong.
func (r *Reader) readLine() (string, error) {
	b, isPrefix, err := r.br.ReadLine()
	if err != nil {
		return "", err
	}
	r.lines++
	if !isPrefix {
		return string(b), nil
	}

	head := string(b[:min(len(b), truncatedLineLength)])
	for isPrefix {
		if _, isPrefix, err = r.br.ReadLine(); err != nil {
			return "", err
		}
	}
	return "", &ParseError{Line: head, Err: ErrLineTooLong}
}
