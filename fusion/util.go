package fusion

func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

var complementTable [256]byte

func init() {
	for i := range complementTable {
		complementTable[i] = byte(i)
	}
	for _, p := range []string{"AT", "TA", "CG", "GC", "at", "ta", "cg", "gc"} {
		complementTable[p[0]] = p[1]
	}
}

// reverseComplement computes a reverse complement of the given DNA string.
// Bases other than ACGT are copied as is.
func reverseComplement(seq string) string {
	n := len(seq)
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[n-1-i] = complementTable[seq[i]]
	}
	return string(buf)
}

// acgtnIndex maps A, C, G, T to {0,1,2,3}. It maps other letters to 4.
var acgtnIndex [256]uint8

func init() {
	for i := range acgtnIndex {
		acgtnIndex[i] = 4
	}
	acgtnIndex['a'] = 0
	acgtnIndex['A'] = 0
	acgtnIndex['c'] = 1
	acgtnIndex['C'] = 1
	acgtnIndex['g'] = 2
	acgtnIndex['G'] = 2
	acgtnIndex['t'] = 3
	acgtnIndex['T'] = 3
}

func countACGTN(seq string) [5]int {
	var acgtnCounts [5]int
	for _, ch := range []byte(seq) {
		acgtnCounts[acgtnIndex[ch]]++
	}
	return acgtnCounts
}

// IsLowComplexity returns true if input DNA is low complexity sequence,
// i.e. any two bases present at over lowComplexityFrac of the total sequence
// length.
func IsLowComplexity(seq string, lowComplexityFrac float64) bool {
	if len(seq) == 0 {
		return true
	}
	acgtnCounts := countACGTN(seq)
	max, max2 := -1, -1
	for _, c := range acgtnCounts {
		if max < c {
			max, max2 = c, max
		} else if max2 < c {
			max2 = c
		}
	}
	return float64(max+max2)/float64(len(seq)) > lowComplexityFrac
}
