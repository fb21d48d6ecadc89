package fastq

import "io"

var newline = []byte{'\n'}

// Writer is a FASTQ file writer.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter constructs a new FASTQ writer
// that writes reads to the underlying writer w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes the read r in FASTQ format. An empty Unk line is written as
// "+", and an empty Qual is filled with 'I' to the length of Seq.
func (w *Writer) Write(r *Read) error {
	w.writeln(r.ID)
	w.writeln(r.Seq)
	if r.Unk == "" {
		w.writeln("+")
	} else {
		w.writeln(r.Unk)
	}
	if r.Qual == "" && len(r.Seq) > 0 {
		w.writeln(fillQual(len(r.Seq)))
	} else {
		w.writeln(r.Qual)
	}
	return w.err
}

func fillQual(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'I'
	}
	return string(b)
}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, line)
	if w.err == nil {
		_, w.err = w.w.Write(newline)
	}
}

// PairWriter writes the two mates of a fragment to separate R1 and R2
// streams.
type PairWriter struct {
	r1, r2 *Writer
}

// NewPairWriter creates a PairWriter.
func NewPairWriter(r1, r2 io.Writer) *PairWriter {
	return &PairWriter{r1: NewWriter(r1), r2: NewWriter(r2)}
}

// Write writes one pair. The IDs get "/1" and "/2" suffixes appended to
// fragmentID.
func (w *PairWriter) Write(fragmentID string, seq1, seq2 string) error {
	if err := w.r1.Write(&Read{ID: "@" + fragmentID + "/1", Seq: seq1}); err != nil {
		return err
	}
	return w.r2.Write(&Read{ID: "@" + fragmentID + "/2", Seq: seq2})
}
