package fusion

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestReverseComplement(t *testing.T) {
	expect.EQ(t, reverseComplement("AACGTN"), "NACGTT")
	expect.EQ(t, reverseComplement("acgT"), "Acgt")
	expect.EQ(t, reverseComplement(""), "")
}

func TestIsLowComplexity(t *testing.T) {
	expect.True(t, IsLowComplexity("", 0.9))
	expect.True(t, IsLowComplexity("AAAAAAAAAATT", 0.9))
	expect.True(t, IsLowComplexity("ATATATATATATATATATAC", 0.9))
	expect.False(t, IsLowComplexity("ATATATATATATATATACGC", 0.9))
	expect.False(t, IsLowComplexity("ACGTACGTAC", 0.9))
}
