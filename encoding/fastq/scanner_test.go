package fastq

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
)

const fq = `@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG
ATACAGGCCTGANCCACTGTGCCCAGNCTANNTNATTANTGAANANAGAATNGTTNTAAATANANNNNNTNTNNNC
+
AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEE#EEEE#E#EEEEE#EEE#EEEAEE#A#####E#E###E
@NB500956:89:HW2FHBGX2:1:11101:13871:1070 1:N:0:ATCACG
CTCAACTCTGAGNCAGACAGAAATACNTTTNNTNTGAGTTACANCNTTCTTTTTCNACATATNCNNNNNTNGNNNT
+
AAAAAEEEEEEE#EEEEEEEEEEEEE#EEE##E#EEEEEEEEE#E#EEEEEEEEE#EAEEEE#A#####E#A###E
@NB500956:89:HW2FHBGX2:1:11101:9975:1070 1:N:0:ATCACG
GAGTAACCACGTNCCCATGGCCACAGNTGANNGNGTCACACCTNANCCGGGAGAGNCAATCCNGNNNNNGNANNNC
+
AAAAAEEEEEEE#EEEEEEEEEAEEE#EEA##E#EEEEEEEE<#E#<EEEEEEEE#<EEEA/#/#####A#E###A
@NB500956:89:HW2FHBGX2:1:11101:20247:1070 1:N:0:ATCACG
GATCGGAAGAGCNCACGTCTGAACTCNAGTNNCNTCCCGATCTNGNATGCCGTCTNCTGCTTNANNNNNANANNNG
+
AAAAAEEEEEEE#EEEEEEEEEEEEE#AEE##E#A////6AE<#E#EEEEEEEEA#A/EE/E#E#####/#E###E
@NB500956:89:HW2FHBGX2:1:11101:17754:1070 1:N:0:ATCACG
CAAGCAACTTACNTTACTTTAGGCTGNAAANNGNCTGCCTGAANTNCCTGCTCACNAATCCCNCNNNNNCNTNNNT
+
AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEEEEEEE#E#EEEEEEEEE#EAEAEA#/#####E#A###E
@NB500956:89:HW2FHBGX2:1:11101:26223:1070 1:N:0:ATCACG
TCAATTTCAGAACTTTTTATTGGTCTNTTCNNGNATTCATCTTNTNCCTGGTTTANTCTTGGNANNNNNTNTNNNT
+
AAAAAEEEEEEEEEEEEEEEEEEEEE#EEA##E#EEEEEEEEE#E#<EAEEEEEE#EEEEEE#E#####E#E###E
`

func stringScanner(s string) *Scanner {
	return NewScanner(bytes.NewReader([]byte(s)), All)
}

func scanErr(s string) error {
	scan := stringScanner(s)
	var r Read
	for scan.Scan(&r) {
	}
	return scan.Err()
}

func TestFASTQ(t *testing.T) {
	s := stringScanner(fq)
	var r Read
	if !s.Scan(&r) {
		t.Fatal(s.Err())
	}
	expect := Read{
		ID:   "@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG",
		Seq:  "ATACAGGCCTGANCCACTGTGCCCAGNCTANNTNATTANTGAANANAGAATNGTTNTAAATANANNNNNTNTNNNC",
		Unk:  "+",
		Qual: "AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEE#EEEE#E#EEEEE#EEE#EEEAEE#A#####E#E###E",
	}
	if got, want := r, expect; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var n int
	for s.Scan(&r) {
		n++
	}
	if got, want := n, 5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := s.Err(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestBadFASTQ(t *testing.T) {
	if got, want := scanErr("12312#"), ErrInvalid; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := scanErr("@1234\n123"), ErrShort; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWriter(t *testing.T) {
	var (
		s = stringScanner(fq)
		b = new(bytes.Buffer)
		w = NewWriter(b)
		r Read
	)
	for s.Scan(&r) {
		if err := w.Write(&r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), fq; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFragmentID(t *testing.T) {
	for _, test := range []struct{ id, want string }{
		{"@frag7/1 1:N:0", "frag7"},
		{"@frag7/2", "frag7"},
		{"frag7", "frag7"},
		{"@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG", "NB500956:89:HW2FHBGX2:1:11101:25648:1069"},
		{"@x/3", "x/3"},
	} {
		expect.EQ(t, FragmentID(test.id), test.want, "id=%s", test.id)
	}
}

func TestPairScanner(t *testing.T) {
	const (
		r1 = "@p0/1\nACGT\n+\nIIII\n@p1/1\nGGCC\n+\nIIII\n"
		r2 = "@p0/2\nTTTT\n+\nIIII\n@p1/2\nAAAA\n+\nIIII\n"
	)
	s := NewPairScanner(strings.NewReader(r1), strings.NewReader(r2), Seq)
	var (
		m1, m2 Read
		seqs   []string
	)
	for s.Scan(&m1, &m2) {
		seqs = append(seqs, m1.Seq+":"+m2.Seq)
	}
	expect.NoError(t, s.Err())
	expect.EQ(t, seqs, []string{"ACGT:TTTT", "GGCC:AAAA"})

	s = NewPairScanner(strings.NewReader(r1), strings.NewReader(r2[:len(r2)/2]), All)
	for s.Scan(&m1, &m2) {
	}
	expect.EQ(t, s.Err(), ErrDiscordant)

	s = NewPairScanner(strings.NewReader(r1), strings.NewReader(strings.Replace(r2, "@p1/2", "@p2/2", 1)), All)
	n := 0
	for s.Scan(&m1, &m2) {
		n++
	}
	expect.EQ(t, n, 1)
	err, ok := s.Err().(*MismatchedPairError)
	expect.True(t, ok)
	expect.EQ(t, err.Index, 1)
}

func TestPairWriter(t *testing.T) {
	var b1, b2 bytes.Buffer
	w := NewPairWriter(&b1, &b2)
	expect.NoError(t, w.Write("f0", "ACG", "TT"))
	expect.EQ(t, b1.String(), "@f0/1\nACG\n+\nIII\n")
	expect.EQ(t, b2.String(), "@f0/2\nTT\n+\nII\n")

	s := NewPairScanner(&b1, &b2, Seq)
	var m1, m2 Read
	expect.True(t, s.Scan(&m1, &m2))
	expect.EQ(t, FragmentID(m1.ID), "f0")
	expect.False(t, s.Scan(&m1, &m2))
	expect.NoError(t, s.Err())
}
