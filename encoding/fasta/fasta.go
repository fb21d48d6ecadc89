// Package fasta reads and writes FASTA files. FASTA files consist of a number of
// named sequences that may be interrupted by newlines.  For example:
//
// >G1.1 first exon of G1
// ACGTAC
// GAGGAC
// >G1.2
// ACGT
//
// The text after '>' up to the first whitespace is the record name. Anything
// after it is the comment. For example, '>G1.1 first exon' has name 'G1.1' and
// comment 'first exon'.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const maxLineSize = 1024 * 1024 * 300 // 300 MB

// Record is one FASTA record.
type Record struct {
	Name    string
	Comment string
	Seq     string
}

// Scanner reads FASTA records one at a time. Thread compatible.
type Scanner struct {
	b   *bufio.Scanner
	err error

	// header line of the next record, if it has already been read.
	pending    string
	hasPending bool
	seq        strings.Builder
}

// NewScanner creates a Scanner that reads FASTA data from r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, maxLineSize)
	return &Scanner{b: b}
}

func parseHeader(line string) (name, comment string) {
	line = strings.TrimSpace(line[1:])
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// Scan reads the next record into rec. It returns false on EOF or error. Once
// Scan returns false, it never returns true again. The caller should check
// Err() after Scan returns false.
func (s *Scanner) Scan(rec *Record) bool {
	if s.err != nil {
		return false
	}
	if !s.hasPending {
		for {
			if !s.b.Scan() {
				if s.err = s.b.Err(); s.err == nil {
					s.err = io.EOF
				}
				return false
			}
			line := s.b.Text()
			if len(line) == 0 {
				continue
			}
			if line[0] != '>' {
				s.err = errors.Errorf("malformed FASTA file: sequence data before header: %.32q", line)
				return false
			}
			s.pending = line
			break
		}
	}
	rec.Name, rec.Comment = parseHeader(s.pending)
	s.hasPending = false
	s.seq.Reset()
	for s.b.Scan() {
		line := s.b.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			s.pending, s.hasPending = line, true
			break
		}
		s.seq.WriteString(strings.TrimSpace(line))
	}
	if err := s.b.Err(); err != nil {
		s.err = errors.Wrap(err, "couldn't read FASTA data")
		return false
	}
	if rec.Name == "" {
		s.err = errors.Errorf("malformed FASTA file: empty record name")
		return false
	}
	rec.Seq = s.seq.String()
	return true
}

// Err returns the error encountered by Scan, if any. It returns nil at a
// clean EOF.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns a substring of the given sequence name at the given
	// coordinates, which are treated as a 0-based half-open interval
	// [start, end). Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in the order of appearance in
	// the FASTA file.
	SeqNames() []string
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

// New creates a new Fasta that holds all the FASTA data from the given reader
// in memory.
func New(r io.Reader) (Fasta, error) {
	f := &fasta{seqs: make(map[string]string)}
	sc := NewScanner(r)
	var rec Record
	for sc.Scan(&rec) {
		if _, ok := f.seqs[rec.Name]; ok {
			return nil, errors.Errorf("duplicate FASTA sequence %s", rec.Name)
		}
		f.seqs[rec.Name] = rec.Seq
		f.seqNames = append(f.seqNames, rec.Name)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Get implements Fasta.Get().
func (f *fasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end <= start {
		return "", fmt.Errorf("start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.Errorf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, len(s))
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *fasta) Len(seq string) (uint64, error) {
	s, ok := f.seqs[seq]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seq)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *fasta) SeqNames() []string {
	return f.seqNames
}

// Writer writes FASTA records. The caller must call Flush after the last
// Write.
type Writer struct {
	w         *bufio.Writer
	lineWidth int
}

// NewWriter creates a Writer. Sequences are wrapped every lineWidth bases. If
// lineWidth <= 0, each sequence is written on a single line.
func NewWriter(w io.Writer, lineWidth int) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20), lineWidth: lineWidth}
}

// Write appends one record.
func (w *Writer) Write(rec Record) error {
	if rec.Name == "" || strings.ContainsAny(rec.Name, " \t\n") {
		return errors.Errorf("invalid FASTA record name %q", rec.Name)
	}
	w.w.WriteByte('>')
	w.w.WriteString(rec.Name)
	if rec.Comment != "" {
		w.w.WriteByte(' ')
		w.w.WriteString(rec.Comment)
	}
	w.w.WriteByte('\n')
	seq := rec.Seq
	if w.lineWidth > 0 {
		for len(seq) > w.lineWidth {
			w.w.WriteString(seq[:w.lineWidth])
			w.w.WriteByte('\n')
			seq = seq[w.lineWidth:]
		}
	}
	w.w.WriteString(seq)
	_, err := w.w.WriteString("\n")
	return err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }
