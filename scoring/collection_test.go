package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louwenjjr/nplinker/models"
)

func TestAddFromMethodFirstVerbatim(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	spec := testSpectrum(t, 1)
	gcf := testGCF(t, 1)
	results := resultsMap(NewObjectLink(spec, gcf, m1, 1.0, nil))

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, results))

	assert.Equal(t, 1, coll.Len())
	assert.Equal(t, 1, coll.SourceCount())
	assert.Equal(t, 1, coll.MethodCount())
	assert.Equal(t, results[spec][gcf], coll.LinksForSource(spec)[gcf])
}

func TestAddFromMethodDuplicate(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, nil))

	err := coll.AddFromMethod(m1, nil)
	assert.ErrorIs(t, err, ErrMethodExists)
	assert.Equal(t, 1, coll.MethodCount())
}

func TestAddFromMethodNilResults(t *testing.T) {
	coll := NewLinkCollection(true, nil)
	require.NoError(t, coll.AddFromMethod(&fakeMethod{name: "m1"}, nil))
	assert.Equal(t, 0, coll.Len())
	assert.Equal(t, 0, coll.SourceCount())

	// Zweite Methode gegen die leere Collection darf nicht panicen.
	require.NoError(t, coll.AddFromMethod(&fakeMethod{name: "m2"}, nil))
	assert.Equal(t, 0, coll.Len())
}

func TestMergeOrUnion(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	m2 := &fakeMethod{name: "m2"}
	s1 := testSpectrum(t, 1)
	s2 := testSpectrum(t, 2)
	s3 := testSpectrum(t, 3)
	t1 := testGCF(t, 1)
	t2 := testGCF(t, 2)

	sharedPair := NewObjectLink(s1, t2, m1, 2.0, nil)
	first := resultsMap(
		NewObjectLink(s1, t1, m1, 1.0, nil),
		sharedPair,
		NewObjectLink(s2, t1, m1, 3.0, nil),
	)
	second := resultsMap(
		NewObjectLink(s1, t2, m2, 5.0, nil),
		NewObjectLink(s3, t1, m2, 6.0, nil),
	)

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, first))
	require.NoError(t, coll.AddFromMethod(m2, second))

	assert.Equal(t, 4, coll.Len())
	assert.Equal(t, 3, coll.SourceCount())

	// Das gemeinsame Paar behält den bestehenden Link und trägt beide Payloads.
	merged := coll.LinksForSource(s1)[t2]
	assert.Same(t, sharedPair, merged)
	d1, err := merged.Data(m1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, d1)
	d2, err := merged.Data(m2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, d2)

	// Neue Quelle aus der zweiten Methode ist vollständig übernommen.
	require.NotNil(t, coll.LinksForSource(s3))
	assert.True(t, coll.LinksForSource(s3)[t1].HasMethod(m2))
}

func TestMergeAndIntersection(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	m2 := &fakeMethod{name: "m2"}
	s1 := testSpectrum(t, 1)
	s2 := testSpectrum(t, 2)
	t1 := testGCF(t, 1)
	t2 := testGCF(t, 2)

	kept := NewObjectLink(s1, t2, m1, 2.0, nil)
	first := resultsMap(
		NewObjectLink(s1, t1, m1, 1.0, nil),
		kept,
		NewObjectLink(s2, t1, m1, 3.0, nil),
	)
	second := resultsMap(
		NewObjectLink(s1, t2, m2, 5.0, nil),
		NewObjectLink(s2, t2, m2, 6.0, nil),
	)

	coll := NewLinkCollection(true, nil)
	require.NoError(t, coll.AddFromMethod(m1, first))
	require.NoError(t, coll.AddFromMethod(m2, second))

	// Nur (s1, t2) liegt in beiden Ergebnismengen; s2 hat kein
	// gemeinsames Ziel und fällt komplett weg.
	assert.Equal(t, 1, coll.Len())
	assert.Equal(t, 1, coll.SourceCount())
	require.NotNil(t, coll.LinksForSource(s1))

	link := coll.LinksForSource(s1)[t2]
	require.NotNil(t, link)
	assert.Same(t, kept, link)
	assert.True(t, link.HasMethod(m1))
	assert.True(t, link.HasMethod(m2))
}

func TestFilterNoSharedStrains(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	strain := models.NewStrain("a")
	s1 := testSpectrum(t, 1, strain)
	t1 := testGCF(t, 1, strain)
	t2 := testGCF(t, 2)

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, resultsMap(
		NewObjectLink(s1, t1, m1, 1.0, []*models.Strain{strain}),
		NewObjectLink(s1, t2, m1, 2.0, nil),
	)))

	coll.FilterNoSharedStrains()
	assert.Equal(t, 1, coll.Len())
	assert.NotNil(t, coll.LinksForSource(s1)[t1])
	assert.Nil(t, coll.LinksForSource(s1)[t2])
}

func TestFilterSources(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	s1 := testSpectrum(t, 1)
	s2 := testSpectrum(t, 2)
	t1 := testGCF(t, 1)

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, resultsMap(
		NewObjectLink(s1, t1, m1, 1.0, nil),
		NewObjectLink(s2, t1, m1, 2.0, nil),
	)))

	coll.FilterSources(func(o models.Object) bool { return o.ObjectID() == 1 })
	assert.Equal(t, 1, coll.SourceCount())
	assert.NotNil(t, coll.LinksForSource(s1))
	assert.Nil(t, coll.LinksForSource(s2))
}

func TestFilterTargetsScopedToSources(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	s1 := testSpectrum(t, 1)
	s2 := testSpectrum(t, 2)
	t1 := testGCF(t, 1)
	t2 := testGCF(t, 2)

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, resultsMap(
		NewObjectLink(s1, t1, m1, 1.0, nil),
		NewObjectLink(s1, t2, m1, 2.0, nil),
		NewObjectLink(s2, t1, m1, 3.0, nil),
	)))

	// Nur für s1 filtern: t1 fällt dort weg, s2→t1 bleibt unberührt.
	coll.FilterTargets(func(o models.Object) bool { return o.ObjectID() == 2 }, []models.Object{s1})
	assert.Equal(t, 2, coll.Len())
	assert.Nil(t, coll.LinksForSource(s1)[t1])
	assert.NotNil(t, coll.LinksForSource(s1)[t2])
	assert.NotNil(t, coll.LinksForSource(s2)[t1])

	// Ohne Quellen-Einschränkung fällt s2 komplett weg.
	coll.FilterTargets(func(o models.Object) bool { return o.ObjectID() == 2 }, nil)
	assert.Equal(t, 1, coll.Len())
	assert.Equal(t, 1, coll.SourceCount())
	assert.Nil(t, coll.LinksForSource(s2))
}

func TestFilterLinksDropsEmptySources(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	s1 := testSpectrum(t, 1)
	s2 := testSpectrum(t, 2)
	t1 := testGCF(t, 1)

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, resultsMap(
		NewObjectLink(s1, t1, m1, 1.0, nil),
		NewObjectLink(s2, t1, m1, 5.0, nil),
	)))

	coll.FilterLinks(func(l *ObjectLink) bool {
		data, err := l.Data(m1)
		if err != nil {
			return false
		}
		return data.(float64) >= 2.0
	}, nil)

	assert.Equal(t, 1, coll.Len())
	assert.Equal(t, 1, coll.SourceCount())
	assert.Nil(t, coll.LinksForSource(s1))
	assert.NotNil(t, coll.LinksForSource(s2))
}

func TestSortedLinks(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	m2 := &fakeMethod{name: "m2"}
	s1 := testSpectrum(t, 1)
	t1 := testGCF(t, 1)
	t2 := testGCF(t, 2)
	t3 := testGCF(t, 3)

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, resultsMap(
		NewObjectLink(s1, t1, m1, 1.0, nil),
		NewObjectLink(s1, t2, m1, 3.0, nil),
	)))
	require.NoError(t, coll.AddFromMethod(m2, resultsMap(
		NewObjectLink(s1, t3, m2, 9.0, nil),
	)))

	strict := coll.SortedLinks(m1, s1, true, true)
	require.Len(t, strict, 2)
	assert.Equal(t, t2, strict[0].Target())
	assert.Equal(t, t1, strict[1].Target())

	ascending := coll.SortedLinks(m1, s1, false, true)
	require.Len(t, ascending, 2)
	assert.Equal(t, t1, ascending[0].Target())

	// Nicht-strikt hängt Links ohne m1-Beitrag hinten an.
	loose := coll.SortedLinks(m1, s1, true, false)
	require.Len(t, loose, 3)
	assert.Equal(t, t2, loose[0].Target())
	assert.Equal(t, t1, loose[1].Target())
	assert.Equal(t, t3, loose[2].Target())
}

func TestSourcesAndAllTargetsSorted(t *testing.T) {
	m1 := &fakeMethod{name: "m1"}
	s2 := testSpectrum(t, 2)
	s1 := testSpectrum(t, 1)
	gcf := testGCF(t, 5)
	molfam := models.NewMolecularFamily(1)

	coll := NewLinkCollection(false, nil)
	require.NoError(t, coll.AddFromMethod(m1, resultsMap(
		NewObjectLink(s2, molfam, m1, 1.0, nil),
		NewObjectLink(s1, gcf, m1, 2.0, nil),
		NewObjectLink(s1, molfam, m1, 3.0, nil),
	)))

	sources := coll.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, 1, sources[0].ObjectID())
	assert.Equal(t, 2, sources[1].ObjectID())

	// Ziele dedupliziert und nach Art, dann ID geordnet (GCF vor MolFam).
	targets := coll.AllTargets()
	require.Len(t, targets, 2)
	assert.Equal(t, models.KindGCF, targets[0].Kind())
	assert.Equal(t, models.KindMolecularFamily, targets[1].Kind())
}

func TestAndModeFlag(t *testing.T) {
	assert.True(t, NewLinkCollection(true, nil).AndMode())
	assert.False(t, NewLinkCollection(false, nil).AndMode())
}
