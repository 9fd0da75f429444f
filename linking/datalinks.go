// Package linking enthält das Korrelations-Backend für das Metcalf-Scoring:
// Präsenz- und Ko-Okkurrenz-Matrizen über Strains sowie die daraus
// abgeleiteten Score-Tabellen.
package linking

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/louwenjjr/nplinker/models"
)

// CorrelationKind unterscheidet die beiden Score-Tabellen.
type CorrelationKind int

const (
	// SpecGCF korreliert Spektren mit GCFs.
	SpecGCF CorrelationKind = iota
	// FamGCF korreliert Molecular Families mit GCFs.
	FamGCF
)

func (k CorrelationKind) String() string {
	if k == SpecGCF {
		return "spec-gcf"
	}
	return "fam-gcf"
}

// cooccurrence hält die vier Ko-Okkurrenz-Matrizen einer Objektart gegen
// GCFs (Zeilen = metabolomische Objekte, Spalten = GCFs).
type cooccurrence struct {
	both    *mat.Dense // Objekt präsent, GCF präsent
	metOnly *mat.Dense // Objekt präsent, GCF absent
	genOnly *mat.Dense // Objekt absent, GCF präsent
	neither *mat.Dense
}

// DataLinks baut aus den Strain-Mengen des Datensatzes die
// Präsenzmatrizen auf und berechnet daraus Ko-Okkurrenzen. Nach dem Setup
// dient es den Scoring-Methoden als ID-Index in die Score-Matrizen.
type DataLinks struct {
	specIDs   []int
	famIDs    []int
	gcfIDs    []int
	strainIDs []string

	specIndex   map[int]int
	famIndex    map[int]int
	gcfIndex    map[int]int
	strainIndex map[string]int

	// Präsenzmatrizen (Objekte × Strains, Werte 0/1)
	specStrain *mat.Dense
	famStrain  *mat.Dense
	gcfStrain  *mat.Dense

	// transient, nur während der Score-Berechnung benötigt
	specGCF *cooccurrence
	famGCF  *cooccurrence
}

// NewDataLinks erstellt ein leeres DataLinks.
func NewDataLinks() *DataLinks {
	return &DataLinks{
		specIndex:   make(map[int]int),
		famIndex:    make(map[int]int),
		gcfIndex:    make(map[int]int),
		strainIndex: make(map[string]int),
	}
}

// LoadData baut die Präsenzmatrizen für Spektren, Familien und GCFs gegen
// die Strain-Collection auf.
func (d *DataLinks) LoadData(spectra []*models.Spectrum, molfams []*models.MolecularFamily, gcfs []*models.GCF, strains *models.StrainCollection) error {
	if strains == nil || strains.Len() == 0 {
		return fmt.Errorf("keine strains vorhanden, korrelation nicht möglich")
	}

	nStrains := strains.Len()
	for i, strain := range strains.Strains() {
		d.strainIDs = append(d.strainIDs, strain.ID)
		d.strainIndex[strain.ID] = i
	}

	d.specStrain = mat.NewDense(max(1, len(spectra)), nStrains, nil)
	for i, spec := range spectra {
		d.specIDs = append(d.specIDs, spec.ID)
		d.specIndex[spec.ID] = i
		d.fillPresenceRow(d.specStrain, i, spec.Strains)
	}

	d.famStrain = mat.NewDense(max(1, len(molfams)), nStrains, nil)
	for i, fam := range molfams {
		d.famIDs = append(d.famIDs, fam.ID)
		d.famIndex[fam.ID] = i
		d.fillPresenceRow(d.famStrain, i, fam.Strains)
	}

	d.gcfStrain = mat.NewDense(max(1, len(gcfs)), nStrains, nil)
	for i, gcf := range gcfs {
		d.gcfIDs = append(d.gcfIDs, gcf.ID)
		d.gcfIndex[gcf.ID] = i
		d.fillPresenceRow(d.gcfStrain, i, gcf.Strains)
	}

	return nil
}

func (d *DataLinks) fillPresenceRow(m *mat.Dense, row int, strains *models.StrainCollection) {
	if strains == nil {
		return
	}
	for _, strain := range strains.Strains() {
		col, ok := d.strainIndex[strain.ID]
		if !ok {
			continue // Strain nicht in der globalen Collection
		}
		m.Set(row, col, 1)
	}
}

// FindCorrelations berechnet die Ko-Okkurrenz-Matrizen beider Objektarten
// gegen GCFs über Matrixprodukte der Präsenzmatrizen.
func (d *DataLinks) FindCorrelations() {
	d.specGCF = correlate(d.specStrain, d.gcfStrain)
	d.famGCF = correlate(d.famStrain, d.gcfStrain)
}

// correlate bildet aus zwei Präsenzmatrizen A (met × strains) und
// B (gcf × strains) die vier Ko-Okkurrenz-Zählungen met × gcf.
func correlate(a, b *mat.Dense) *cooccurrence {
	notA := onesComplement(a)
	notB := onesComplement(b)

	c := &cooccurrence{
		both:    &mat.Dense{},
		metOnly: &mat.Dense{},
		genOnly: &mat.Dense{},
		neither: &mat.Dense{},
	}
	c.both.Mul(a, b.T())
	c.metOnly.Mul(a, notB.T())
	c.genOnly.Mul(notA, b.T())
	c.neither.Mul(notA, notB.T())
	return c
}

func onesComplement(m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 { return 1 - v }, m)
	return out
}

// presenceRow liefert die Zeile der Präsenzmatrix für ein Objekt. BGCs
// haben keine eigene Zeile, sie gehen nur über ihre GCF-Eltern ein.
func (d *DataLinks) presenceRow(obj models.Object) (mat.Vector, error) {
	switch obj.Kind() {
	case models.KindSpectrum:
		row, ok := d.specIndex[obj.ObjectID()]
		if !ok {
			return nil, fmt.Errorf("spektrum %d nicht im korrelations-index", obj.ObjectID())
		}
		return d.specStrain.RowView(row), nil
	case models.KindMolecularFamily:
		row, ok := d.famIndex[obj.ObjectID()]
		if !ok {
			return nil, fmt.Errorf("familie %d nicht im korrelations-index", obj.ObjectID())
		}
		return d.famStrain.RowView(row), nil
	case models.KindGCF:
		row, ok := d.gcfIndex[obj.ObjectID()]
		if !ok {
			return nil, fmt.Errorf("gcf %d nicht im korrelations-index", obj.ObjectID())
		}
		return d.gcfStrain.RowView(row), nil
	default:
		return nil, fmt.Errorf("objektart %s hat keine präsenzzeile", obj.Kind())
	}
}

// CommonStrains liefert die IDs aller Strains, in denen beide Objekte
// vorkommen. Erwartet wird ein metabolomisches Objekt und eine GCF, die
// Reihenfolge der Argumente spielt keine Rolle.
func (d *DataLinks) CommonStrains(a, b models.Object) ([]string, error) {
	met, gcf := a, b
	if met.Kind() == models.KindGCF {
		met, gcf = b, a
	}
	if gcf.Kind() != models.KindGCF {
		return nil, fmt.Errorf("gemeinsame strains brauchen eine gcf, bekommen: %s und %s", a.Kind(), b.Kind())
	}
	if met.Kind() != models.KindSpectrum && met.Kind() != models.KindMolecularFamily {
		return nil, fmt.Errorf("gemeinsame strains brauchen ein spektrum oder eine familie, bekommen: %s und %s", a.Kind(), b.Kind())
	}

	rowMet, err := d.presenceRow(met)
	if err != nil {
		return nil, err
	}
	rowGCF, err := d.presenceRow(gcf)
	if err != nil {
		return nil, err
	}

	var shared []string
	for col, id := range d.strainIDs {
		if rowMet.AtVec(col) > 0 && rowGCF.AtVec(col) > 0 {
			shared = append(shared, id)
		}
	}
	return shared, nil
}

// StrainCount gibt die Anzahl der Strains im Index zurück.
func (d *DataLinks) StrainCount() int { return len(d.strainIDs) }

// SpectrumCount gibt die Anzahl indizierter Spektren zurück.
func (d *DataLinks) SpectrumCount() int { return len(d.specIDs) }

// FamilyCount gibt die Anzahl indizierter Familien zurück.
func (d *DataLinks) FamilyCount() int { return len(d.famIDs) }

// GCFCount gibt die Anzahl indizierter GCFs zurück.
func (d *DataLinks) GCFCount() int { return len(d.gcfIDs) }

// matrixState ist die gob-taugliche Form einer Dense-Matrix.
type matrixState struct {
	Rows, Cols int
	Data       []float64
}

func denseState(m *mat.Dense) matrixState {
	if m == nil {
		return matrixState{}
	}
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return matrixState{Rows: r, Cols: c, Data: data}
}

func stateDense(s matrixState) *mat.Dense {
	if s.Rows == 0 || s.Cols == 0 {
		return nil
	}
	return mat.NewDense(s.Rows, s.Cols, s.Data)
}

// DataLinksState ist der serialisierbare Zustand eines DataLinks für den
// Score-Cache. Die Ko-Okkurrenzen werden nicht mitgespeichert, da sie nach
// der Score-Berechnung nicht mehr gebraucht werden.
type DataLinksState struct {
	SpecIDs    []int
	FamIDs     []int
	GCFIDs     []int
	StrainIDs  []string
	SpecStrain matrixState
	FamStrain  matrixState
	GCFStrain  matrixState
}

// State extrahiert den serialisierbaren Zustand.
func (d *DataLinks) State() *DataLinksState {
	return &DataLinksState{
		SpecIDs:    d.specIDs,
		FamIDs:     d.famIDs,
		GCFIDs:     d.gcfIDs,
		StrainIDs:  d.strainIDs,
		SpecStrain: denseState(d.specStrain),
		FamStrain:  denseState(d.famStrain),
		GCFStrain:  denseState(d.gcfStrain),
	}
}

// DataLinksFromState stellt ein DataLinks aus Cache-Zustand wieder her.
func DataLinksFromState(s *DataLinksState) *DataLinks {
	d := NewDataLinks()
	d.specIDs = s.SpecIDs
	d.famIDs = s.FamIDs
	d.gcfIDs = s.GCFIDs
	d.strainIDs = s.StrainIDs
	for i, id := range s.SpecIDs {
		d.specIndex[id] = i
	}
	for i, id := range s.FamIDs {
		d.famIndex[id] = i
	}
	for i, id := range s.GCFIDs {
		d.gcfIndex[id] = i
	}
	for i, id := range s.StrainIDs {
		d.strainIndex[id] = i
	}
	d.specStrain = stateDense(s.SpecStrain)
	d.famStrain = stateDense(s.FamStrain)
	d.gcfStrain = stateDense(s.GCFStrain)
	return d
}
