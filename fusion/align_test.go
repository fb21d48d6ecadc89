package fusion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// gotohScore is a textbook local affine-gap alignment score.
func gotohScore(read, ref string, opts Opts) int {
	m, n := len(read), len(ref)
	const inf = 1 << 30
	match, mismatch := opts.MatchScore, opts.MismatchPenalty
	open, ext := opts.GapOpenPenalty, opts.GapExtensionPenalty
	H := make([][]int, m+1)
	E := make([][]int, m+1)
	F := make([][]int, m+1)
	for i := range H {
		H[i] = make([]int, n+1)
		E[i] = make([]int, n+1)
		F[i] = make([]int, n+1)
		for j := range E[i] {
			E[i][j], F[i][j] = -inf, -inf
		}
	}
	best := 0
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			E[i][j] = max(H[i][j-1]-open, E[i][j-1]-ext)
			F[i][j] = max(H[i-1][j]-open, F[i-1][j]-ext)
			s := -mismatch
			if read[i-1] == ref[j-1] {
				s = match
			}
			H[i][j] = max(0, max(H[i-1][j-1]+s, max(E[i][j], F[i][j])))
			if H[i][j] > best {
				best = H[i][j]
			}
		}
	}
	return best
}

func TestAlignNoLayout(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	opts := DefaultOpts
	a := NewAligner(opts)
	for iter := 0; iter < 200; iter++ {
		ref := randomSeq(r, 20+r.Intn(60))
		start := r.Intn(len(ref) / 2)
		read := []byte(ref[start:])
		// Sprinkle substitutions, insertions, and deletions.
		for k := r.Intn(4); k > 0; k-- {
			pos := r.Intn(len(read))
			switch r.Intn(3) {
			case 0:
				read[pos] = "ACGT"[r.Intn(4)]
			case 1:
				read = append(read[:pos], append([]byte(randomSeq(r, 1+r.Intn(3))), read[pos:]...)...)
			case 2:
				read = append(read[:pos], read[pos+1:]...)
			}
		}
		if len(read) < opts.MinReadLength {
			read = append(read, randomSeq(r, opts.MinReadLength)...)
		}
		sol, ok := a.Align(string(read), ref, Layout{})
		require.True(t, ok)
		require.Equal(t, gotohScore(string(read), ref, opts), sol.Score, "read=%s ref=%s", read, ref)
		require.Equal(t, NoJump, sol.Kind)
		require.True(t, sol.Prob >= 0 && sol.Prob <= 1)
	}
}

func TestAlignGeneJump(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	opts := DefaultOpts
	a := NewAligner(opts)
	g1, g2 := randomSeq(r, 40), randomSeq(r, 40)
	ref := g1 + g2
	read := ref[20:60]
	sol, ok := a.Align(read, ref, Layout{GeneSplit: 40})
	require.True(t, ok)
	require.Equal(t, GeneJump, sol.Kind)
	require.Equal(t, 40, sol.JumpStart)
	require.Equal(t, 40, sol.JumpEnd)
	require.Equal(t, 40*opts.MatchScore-opts.GeneJumpPenalty, sol.Score)
	require.InDelta(t, float64(80-10)/80, sol.Prob, 1e-9)
	require.Equal(t, 20, sol.RefStart)
	require.Equal(t, 60, sol.RefEnd)

	// Without the layout, the read aligns contiguously.
	sol, ok = a.Align(read, ref, Layout{})
	require.True(t, ok)
	require.Equal(t, NoJump, sol.Kind)
	require.Equal(t, 80, sol.Score)
	require.InDelta(t, 1.0, sol.Prob, 1e-9)

	// A read that leaves g1 and enters g2 away from the split can only jump
	// at the split, by deleting the skipped bases.
	read = g1[5:25] + g2[10:30]
	sol, ok = a.Align(read, ref, Layout{GeneSplit: 40})
	require.True(t, ok)
	requireBoundaryJump(t, sol, []int{40}, []int{40})
	require.True(t, sol.Prob < opts.MinAlignScore, "prob=%v", sol.Prob)

	// Three bases of g1 are not worth the jump penalty. The best alignment
	// starts at the first base of g2.
	read = g1[37:40] + g2[:37]
	sol, ok = a.Align(read, ref, Layout{GeneSplit: 40})
	require.True(t, ok)
	require.Equal(t, NoJump, sol.Kind)
	require.Equal(t, 74, sol.Score)
	require.Equal(t, 40, sol.RefStart)
	require.Equal(t, 77, sol.RefEnd)
}

func TestAlignGeneJumpBoundaries(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	opts := DefaultOpts
	a := NewAligner(opts)
	e1, e2, e3, e4 := randomSeq(r, 40), randomSeq(r, 40), randomSeq(r, 40), randomSeq(r, 40)
	ref := e1 + e2 + e3 + e4
	layout := Layout{GeneSplit: 80, ExonEnds: []int{40, 80, 120, 160}}

	// From the end of the first exon of gene 1 to the start of the second
	// exon of gene 2.
	read := e1[15:] + e4[:25]
	sol, ok := a.Align(read, ref, layout)
	require.True(t, ok)
	require.Equal(t, GeneJump, sol.Kind)
	require.Equal(t, 40, sol.JumpStart)
	require.Equal(t, 120, sol.JumpEnd)
	require.Equal(t, 100-opts.GeneJumpPenalty, sol.Score)
	require.Equal(t, 15, sol.RefStart)
	require.Equal(t, 145, sol.RefEnd)

	// Chimeras that switch genes inside an exon.
	for _, read := range []string{e1[:25] + e4[10:35], e1[15:] + e4[10:35], e1[:25] + e4[:25]} {
		sol, ok = a.Align(read, ref, layout)
		require.True(t, ok)
		requireBoundaryJump(t, sol, []int{40, 80}, []int{80, 120})
		require.True(t, sol.Prob < opts.MinAlignScore, "read=%s prob=%v", read, sol.Prob)
	}
}

// requireBoundaryJump checks that a gene jump of sol leaves from one of
// starts and lands on one of ends.
func requireBoundaryJump(t *testing.T, sol Solution, starts, ends []int) {
	if sol.Kind != GeneJump {
		return
	}
	require.Contains(t, starts, sol.JumpStart)
	require.Contains(t, ends, sol.JumpEnd)
}

func TestAlignExonJump(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	opts := DefaultOpts
	a := NewAligner(opts)
	e1, e2, e3 := randomSeq(r, 30), randomSeq(r, 30), randomSeq(r, 30)
	ref := e1 + e2 + e3
	layout := Layout{ExonEnds: []int{60, 30, 90}}

	read := e1[10:] + e3[:20]
	sol, ok := a.Align(read, ref, layout)
	require.True(t, ok)
	require.Equal(t, ExonJump, sol.Kind)
	require.Equal(t, 30, sol.JumpStart)
	require.Equal(t, 60, sol.JumpEnd)
	require.Equal(t, 80-opts.ExonJumpPenalty, sol.Score)

	// Exon boundaries are crossed for free.
	read = e1[10:] + e2[:20]
	sol, ok = a.Align(read, ref, layout)
	require.True(t, ok)
	require.Equal(t, NoJump, sol.Kind)
	require.Equal(t, 80, sol.Score)

	// Exon jumps don't cross the gene split.
	read = e1[10:] + e3[:20]
	sol, ok = a.Align(read, ref, Layout{GeneSplit: 45, ExonEnds: []int{30, 60}})
	require.True(t, ok)
	require.Equal(t, GeneJump, sol.Kind)
	require.Equal(t, 30, sol.JumpStart)
	require.Equal(t, 60, sol.JumpEnd)
	require.Equal(t, 80-opts.GeneJumpPenalty, sol.Score)
}

func TestAlignMinReadLength(t *testing.T) {
	opts := DefaultOpts
	opts.MinReadLength = 10
	a := NewAligner(opts)
	_, ok := a.Align("ACGTACGTA", "ACGTACGTACGT", Layout{})
	require.False(t, ok)
	_, ok = a.Align("ACGTACGTAC", "ACGTACGTA", Layout{})
	require.False(t, ok)
	sol, ok := a.Align("ACGTACGTAC", "ACGTACGTAC", Layout{})
	require.True(t, ok)
	require.Equal(t, 20, sol.Score)

	// No positive-scoring alignment.
	sol, ok = a.Align("AAAAAAAAAA", "CCCCCCCCCC", Layout{})
	require.True(t, ok)
	require.Equal(t, 0, sol.Score)
	require.Equal(t, 0.0, sol.Prob)
}
