package testscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louwenjjr/nplinker/dataset"
	"github.com/louwenjjr/nplinker/models"
	"github.com/louwenjjr/nplinker/scoring"
	"github.com/louwenjjr/nplinker/scoring/metcalf"
)

// newTestDataset baut dasselbe Mini-Universum wie die Metcalf-Tests:
// zwei Spektren, zwei Familien, zwei GCFs über drei Strains.
func newTestDataset(t *testing.T) *dataset.Dataset {
	t.Helper()

	a := models.NewStrain("a")
	b := models.NewStrain("b")
	c := models.NewStrain("c")
	strains := models.NewStrainCollection()
	strains.Add(a)
	strains.Add(b)
	strains.Add(c)

	spec1 := models.NewSpectrum(1, 100.0)
	spec1.Strains.Add(a)
	spec1.Strains.Add(b)
	spec2 := models.NewSpectrum(2, 200.0)
	spec2.Strains.Add(c)

	fam1 := models.NewMolecularFamily(1)
	fam1.AddSpectrum(spec1)
	fam2 := models.NewMolecularFamily(2)
	fam2.AddSpectrum(spec2)

	bgc1 := models.NewBGC(1, "bgc1")
	bgc1.Strains.Add(a)
	gcf1 := models.NewGCF(1)
	gcf1.AddBGC(bgc1)

	bgc2 := models.NewBGC(2, "bgc2")
	bgc2.Strains.Add(b)
	bgc2.Strains.Add(c)
	gcf2 := models.NewGCF(2)
	gcf2.AddBGC(bgc2)

	return dataset.New(nil,
		[]*models.BGC{bgc1, bgc2},
		[]*models.GCF{gcf1, gcf2},
		[]*models.Spectrum{spec1, spec2},
		[]*models.MolecularFamily{fam1, fam2},
		strains)
}

// newTestScoring liefert eine Instanz über rohem Metcalf ohne Cutoff.
func newTestScoring(t *testing.T, ds *dataset.Dataset) (*Scoring, *metcalf.Scoring) {
	t.Helper()
	mc := metcalf.New(metcalf.NewShared(), nil)
	mc.Standardised = false
	mc.Cutoff = nil
	ts := New(mc, nil)
	require.NoError(t, ts.Setup(ds))
	return ts, mc
}

func TestTruncationInAndMode(t *testing.T) {
	ds := newTestDataset(t)
	ts, mc := newTestScoring(t, ds)

	coll := scoring.NewLinkCollection(true, nil)
	_, err := ts.GetLinks([]models.Object{ds.Spectra[0], ds.Spectra[1]}, coll)
	require.NoError(t, err)

	// Von zwei Quellen bleibt die mit der kleineren ID übrig.
	assert.Equal(t, 1, coll.SourceCount())
	assert.Equal(t, 2, coll.Len())
	require.NotNil(t, coll.LinksForSource(ds.Spectra[0]))
	assert.Nil(t, coll.LinksForSource(ds.Spectra[1]))

	// Payloads laufen unter dem eigenen Namen, der Metcalf-Payload ist weg.
	for _, link := range coll.LinksForSource(ds.Spectra[0]) {
		data, err := link.Data(ts)
		require.NoError(t, err)
		v := data.(float64)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)

		_, err = link.Data(mc)
		assert.ErrorIs(t, err, scoring.ErrNoMethodData)
	}

	methods := coll.Methods()
	require.Len(t, methods, 2)
	assert.Equal(t, metcalf.Name, methods[0].Name())
	assert.Equal(t, Name, methods[1].Name())
}

func TestValueOneKeepsAllSources(t *testing.T) {
	ds := newTestDataset(t)
	ts, _ := newTestScoring(t, ds)
	ts.Value = 1.0

	coll := scoring.NewLinkCollection(true, nil)
	_, err := ts.GetLinks([]models.Object{ds.Spectra[0], ds.Spectra[1]}, coll)
	require.NoError(t, err)

	assert.Equal(t, 2, coll.SourceCount())
	assert.Equal(t, 4, coll.Len())
}

func TestValueZeroDropsEverything(t *testing.T) {
	ds := newTestDataset(t)
	ts, _ := newTestScoring(t, ds)
	ts.Value = 0.0

	coll := scoring.NewLinkCollection(true, nil)
	_, err := ts.GetLinks([]models.Object{ds.Spectra[0], ds.Spectra[1]}, coll)
	require.NoError(t, err)
	assert.Equal(t, 0, coll.Len())
}

func TestOrModeKeepsMetcalfLeftovers(t *testing.T) {
	ds := newTestDataset(t)
	ts, mc := newTestScoring(t, ds)

	coll := scoring.NewLinkCollection(false, nil)
	_, err := ts.GetLinks([]models.Object{ds.Spectra[0], ds.Spectra[1]}, coll)
	require.NoError(t, err)

	// Im OR-Modus bleibt die weggekürzte Quelle mit ihren
	// Metcalf-Payloads in der Collection stehen.
	assert.Equal(t, 2, coll.SourceCount())
	for _, link := range coll.LinksForSource(ds.Spectra[1]) {
		assert.True(t, link.HasMethod(mc))
		assert.False(t, link.HasMethod(ts))
	}
	for _, link := range coll.LinksForSource(ds.Spectra[0]) {
		assert.True(t, link.HasMethod(ts))
		assert.False(t, link.HasMethod(mc))
	}
}

func TestFormatDataDelegates(t *testing.T) {
	ds := newTestDataset(t)
	ts, _ := newTestScoring(t, ds)
	assert.Equal(t, "0.1235", ts.FormatData(0.123456))
}

func TestSortPassthrough(t *testing.T) {
	ds := newTestDataset(t)
	ts, _ := newTestScoring(t, ds)

	links := []*scoring.ObjectLink{
		scoring.NewObjectLink(ds.Spectra[0], ds.GCFs[0], ts, 0.5, nil),
	}
	assert.Equal(t, links, ts.Sort(links, true))
	assert.Equal(t, Name, ts.Name())
}
