package linking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louwenjjr/nplinker/models"
)

func scoredLinkFinder(t *testing.T, dl *DataLinks) *LinkFinder {
	t.Helper()
	dl.FindCorrelations()
	lf := NewLinkFinder()
	require.NoError(t, lf.MetcalfScoring(dl, SpecGCF))
	require.NoError(t, lf.MetcalfScoring(dl, FamGCF))
	return lf
}

// candidateScores indiziert Kandidaten über das Paar (Quelle, Ziel).
func candidateScores(list []Candidate) map[[2]int]float64 {
	out := make(map[[2]int]float64, len(list))
	for _, c := range list {
		out[[2]int{c.SourceID, c.TargetID}] = c.Score
	}
	return out
}

func TestMetcalfScoringRequiresCorrelations(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)

	err := NewLinkFinder().MetcalfScoring(dl, SpecGCF)
	assert.Error(t, err)
}

func TestRawMetcalfScores(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)
	lf := scoredLinkFinder(t, dl)

	objects := []models.Object{fix.spectra[0], fix.spectra[1]}
	lists, err := lf.GetLinks(dl, objects, nil)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	require.Len(t, lists[0], 4)

	scores := candidateScores(lists[0])
	assert.InDelta(t, 1.0, scores[[2]int{1, 1}], 1e-9)
	assert.InDelta(t, 0.0, scores[[2]int{1, 2}], 1e-9)
	assert.InDelta(t, -9.0, scores[[2]int{2, 1}], 1e-9)
	assert.InDelta(t, 11.0, scores[[2]int{2, 2}], 1e-9)

	// Familien spiegeln die Spektren, die Scores sind identisch.
	famLists, err := lf.GetLinks(dl, []models.Object{fix.molfams[0], fix.molfams[1]}, nil)
	require.NoError(t, err)
	require.Len(t, famLists, 1)
	assert.Equal(t, scores, candidateScores(famLists[0]))
}

func TestCutoffBoundaryInclusive(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)
	lf := scoredLinkFinder(t, dl)

	cutoff := 1.0
	lists, err := lf.GetLinks(dl, []models.Object{fix.spectra[0], fix.spectra[1]}, &cutoff)
	require.NoError(t, err)
	require.Len(t, lists, 1)

	scores := candidateScores(lists[0])
	require.Len(t, scores, 2)
	assert.Contains(t, scores, [2]int{1, 1}) // Score == Cutoff bleibt drin
	assert.Contains(t, scores, [2]int{2, 2})
}

func TestGCFLinksBothTables(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)
	lf := scoredLinkFinder(t, dl)

	lists, err := lf.GetLinks(dl, []models.Object{fix.gcfs[0]}, nil)
	require.NoError(t, err)
	require.Len(t, lists, 2)

	// Quelle ist die GCF, Ziele sind Spektren bzw. Familien.
	specScores := candidateScores(lists[0])
	require.Len(t, specScores, 2)
	assert.InDelta(t, 1.0, specScores[[2]int{1, 1}], 1e-9)
	assert.InDelta(t, -9.0, specScores[[2]int{1, 2}], 1e-9)

	famScores := candidateScores(lists[1])
	require.Len(t, famScores, 2)
	assert.InDelta(t, 1.0, famScores[[2]int{1, 1}], 1e-9)
	assert.InDelta(t, -9.0, famScores[[2]int{1, 2}], 1e-9)
}

func TestExpectedTables(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)
	lf := scoredLinkFinder(t, dl)

	// n=0, m=0: alle drei Strains sind "neither", Score deterministisch 3.
	// Die Varianz 0 wird auf 1 geklemmt.
	assert.InDelta(t, 3.0, lf.ExpectedScore(0, 0), 1e-9)
	assert.InDelta(t, 1.0, lf.VarianceSqrt(0, 0), 1e-9)

	// n=1, m=1 über die Hypergeometrische: P(o=1)=1/3 mit Score 12,
	// P(o=0)=2/3 mit Score -9 → E=-2, Var=98.
	assert.InDelta(t, -2.0, lf.ExpectedScore(1, 1), 1e-9)
	assert.InDelta(t, math.Sqrt(98), lf.VarianceSqrt(1, 1), 1e-9)
}

func TestGetLinksErrors(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)

	// Ohne MetcalfScoring fehlt die Score-Matrix.
	dl.FindCorrelations()
	_, err := NewLinkFinder().GetLinks(dl, []models.Object{fix.spectra[0]}, nil)
	assert.Error(t, err)

	lf := scoredLinkFinder(t, dl)

	_, err = lf.GetLinks(dl, nil, nil)
	assert.Error(t, err)

	_, err = lf.GetLinks(dl, []models.Object{models.NewSpectrum(99, 0)}, nil)
	assert.Error(t, err)

	_, err = lf.GetLinks(dl, []models.Object{models.NewBGC(1, "bgc1")}, nil)
	assert.Error(t, err)
}

func TestLinkFinderStateRoundtrip(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)
	lf := scoredLinkFinder(t, dl)

	restored := LinkFinderFromState(lf.State())
	assert.InDelta(t, lf.ExpectedScore(1, 1), restored.ExpectedScore(1, 1), 1e-12)
	assert.InDelta(t, lf.VarianceSqrt(1, 1), restored.VarianceSqrt(1, 1), 1e-12)

	lists, err := restored.GetLinks(dl, []models.Object{fix.spectra[1]}, nil)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	scores := candidateScores(lists[0])
	assert.InDelta(t, 11.0, scores[[2]int{2, 2}], 1e-9)
}
