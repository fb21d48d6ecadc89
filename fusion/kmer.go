package fusion

import "strings"

const invalidKmerBits = uint8(255)

var asciiToKmerMap [256]uint8

func init() {
	for i := range asciiToKmerMap {
		asciiToKmerMap[i] = invalidKmerBits
	}
	asciiToKmerMap['A'] = 0
	asciiToKmerMap['a'] = 0
	asciiToKmerMap['C'] = 1
	asciiToKmerMap['c'] = 1
	asciiToKmerMap['G'] = 2
	asciiToKmerMap['g'] = 2
	asciiToKmerMap['T'] = 3
	asciiToKmerMap['t'] = 3
}

// Kmer is a compact encoding of a sequence of ACGT, up to 32bases.
type Kmer uint64

// asciiToKmer encodes seq. It returns false if seq contains a non-ACGT base.
func asciiToKmer(seq string) (Kmer, bool) {
	var k Kmer
	for _, ch := range []byte(seq) {
		b := asciiToKmerMap[ch]
		if b == invalidKmerBits {
			return 0, false
		}
		k = (k << 2) | Kmer(b)
	}
	return k, true
}

// String decodes a kmer of the given length.
func (k Kmer) String(kmerLength int) string {
	const bases = "ACGT"
	var b strings.Builder
	b.Grow(kmerLength)
	for i := kmerLength - 1; i >= 0; i-- {
		b.WriteByte(bases[(k>>(2*uint(i)))&3])
	}
	return b.String()
}

type kmerAtPos struct {
	// pos is the offset of the kmer in the sequence.
	pos  int
	kmer Kmer
}

// kmerizer enumerates the kmers in a sequence, skipping the ones that
// contain non-ACGT bases.
//
// Example:
//   km := newKmerizer(k)
//   km.Reset(seq)
//   for km.Scan() {
//     .. use km.Get() ..
//   }
type kmerizer struct {
	kmerLength int
	mask       Kmer // ~(~0 << (2*kmerLength))

	seq string
	si  int
	cur kmerAtPos
}

func newKmerizer(kmerLength int) *kmerizer {
	mask := ^Kmer(0)
	if kmerLength < 32 {
		mask = ^(Kmer(0xffffffffffffffff) << Kmer(kmerLength*2 /*2==#bits per base*/))
	}
	return &kmerizer{kmerLength: kmerLength, mask: mask}
}

func nextAmbiguousPosition(seq string, si int) int {
	for i := si; i < len(seq); i++ {
		if asciiToKmerMap[seq[i]] == invalidKmerBits {
			return i
		}
	}
	return len(seq)
}

func (k *kmerizer) Reset(seq string) {
	k.seq = seq
	k.si = 0
}

func (k *kmerizer) Scan() bool {
	if k.si > 0 /*k.cur is set*/ && k.si+k.kmerLength <= len(k.seq) {
		nextCh := k.seq[k.si+k.kmerLength-1]
		if bits := asciiToKmerMap[nextCh]; bits != invalidKmerBits {
			// Fast path. Directly add the 2-bit encoding of "nextCh" to k.cur.kmer.
			k.cur.pos = k.si
			k.cur.kmer = ((k.cur.kmer << 2) | Kmer(bits)) & k.mask
			k.si++
			return true
		}
		// Fall through
	}

	for k.si+k.kmerLength <= len(k.seq) {
		forwardStr := k.seq[k.si : k.si+k.kmerLength]
		kmer, ok := asciiToKmer(forwardStr)
		if !ok {
			k.si = nextAmbiguousPosition(k.seq, k.si) + 1
			continue
		}
		k.cur = kmerAtPos{pos: k.si, kmer: kmer}
		k.si++
		return true
	}
	return false
}

func (k *kmerizer) Get() kmerAtPos { return k.cur }
