package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louwenjjr/nplinker/models"
)

// linkingFixture ist der kleine Datensatz, auf dem alle Korrelations-Tests
// rechnen: drei Strains, zwei Spektren, zwei Familien, zwei GCFs.
//
//	spec1/fam1: {a, b}    gcf1: {a}
//	spec2/fam2: {c}       gcf2: {b, c}
//
// Rohe Metcalf-Scores (Gewichte 10/-10/0/1):
//
//	spec1×gcf1 = 1   spec1×gcf2 = 0
//	spec2×gcf1 = -9  spec2×gcf2 = 11
type linkingFixture struct {
	strains *models.StrainCollection
	spectra []*models.Spectrum
	molfams []*models.MolecularFamily
	gcfs    []*models.GCF
}

func newLinkingFixture(t *testing.T) *linkingFixture {
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

	return &linkingFixture{
		strains: strains,
		spectra: []*models.Spectrum{spec1, spec2},
		molfams: []*models.MolecularFamily{fam1, fam2},
		gcfs:    []*models.GCF{gcf1, gcf2},
	}
}

func (f *linkingFixture) datalinks(t *testing.T) *DataLinks {
	t.Helper()
	dl := NewDataLinks()
	require.NoError(t, dl.LoadData(f.spectra, f.molfams, f.gcfs, f.strains))
	return dl
}

func TestLoadDataCounts(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)

	assert.Equal(t, 2, dl.SpectrumCount())
	assert.Equal(t, 2, dl.FamilyCount())
	assert.Equal(t, 2, dl.GCFCount())
	assert.Equal(t, 3, dl.StrainCount())
}

func TestLoadDataRequiresStrains(t *testing.T) {
	fix := newLinkingFixture(t)

	err := NewDataLinks().LoadData(fix.spectra, fix.molfams, fix.gcfs, models.NewStrainCollection())
	assert.Error(t, err)

	err = NewDataLinks().LoadData(fix.spectra, fix.molfams, fix.gcfs, nil)
	assert.Error(t, err)
}

func TestCommonStrains(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)
	spec1, spec2 := fix.spectra[0], fix.spectra[1]
	gcf1, gcf2 := fix.gcfs[0], fix.gcfs[1]

	shared, err := dl.CommonStrains(spec1, gcf1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, shared)

	// Argumentreihenfolge spielt keine Rolle.
	swapped, err := dl.CommonStrains(gcf1, spec1)
	require.NoError(t, err)
	assert.Equal(t, shared, swapped)

	shared, err = dl.CommonStrains(spec1, gcf2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, shared)

	shared, err = dl.CommonStrains(spec2, gcf1)
	require.NoError(t, err)
	assert.Empty(t, shared)

	shared, err = dl.CommonStrains(fix.molfams[1], gcf2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, shared)
}

func TestCommonStrainsRejectsInvalidPairs(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)

	_, err := dl.CommonStrains(fix.spectra[0], fix.spectra[1])
	assert.Error(t, err)

	bgc := models.NewBGC(1, "bgc1")
	_, err = dl.CommonStrains(bgc, fix.gcfs[0])
	assert.Error(t, err)

	// Unbekannte IDs sind nicht im Index.
	_, err = dl.CommonStrains(models.NewSpectrum(99, 0), fix.gcfs[0])
	assert.Error(t, err)
}

func TestDataLinksStateRoundtrip(t *testing.T) {
	fix := newLinkingFixture(t)
	dl := fix.datalinks(t)

	restored := DataLinksFromState(dl.State())
	assert.Equal(t, dl.SpectrumCount(), restored.SpectrumCount())
	assert.Equal(t, dl.FamilyCount(), restored.FamilyCount())
	assert.Equal(t, dl.GCFCount(), restored.GCFCount())
	assert.Equal(t, dl.StrainCount(), restored.StrainCount())

	shared, err := restored.CommonStrains(fix.spectra[0], fix.gcfs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, shared)
}
