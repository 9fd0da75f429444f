// Package dataset bündelt das komplette Objekt-Universum einer Analyse
// und dessen Konfiguration. Der Dataset wird einmal aufgebaut und per
// Referenz an die Scoring-Methoden gereicht.
package dataset

import (
	"fmt"

	"github.com/louwenjjr/nplinker/config"
	"github.com/louwenjjr/nplinker/models"
)

// Dataset ist der Analyse-Kontext: alle Objekte, die Strain-Collection
// und die Konfiguration für Scoring-Parameter und Cache-Pfade.
type Dataset struct {
	Config *config.Config

	BGCs    []*models.BGC
	GCFs    []*models.GCF
	Spectra []*models.Spectrum
	MolFams []*models.MolecularFamily
	Strains *models.StrainCollection

	// Library ist die Referenz-Spektralbibliothek für das Rosetta-Scoring
	// (optional, kann leer sein).
	Library []*models.ReferenceSpectrum

	bgcByID      map[int]*models.BGC
	gcfByID      map[int]*models.GCF
	spectrumByID map[int]*models.Spectrum
	molfamByID   map[int]*models.MolecularFamily
}

// New erstellt einen Dataset und baut die ID-Indizes auf.
func New(cfg *config.Config, bgcs []*models.BGC, gcfs []*models.GCF, spectra []*models.Spectrum, molfams []*models.MolecularFamily, strains *models.StrainCollection) *Dataset {
	if strains == nil {
		strains = models.NewStrainCollection()
	}
	d := &Dataset{
		Config:       cfg,
		BGCs:         bgcs,
		GCFs:         gcfs,
		Spectra:      spectra,
		MolFams:      molfams,
		Strains:      strains,
		bgcByID:      make(map[int]*models.BGC, len(bgcs)),
		gcfByID:      make(map[int]*models.GCF, len(gcfs)),
		spectrumByID: make(map[int]*models.Spectrum, len(spectra)),
		molfamByID:   make(map[int]*models.MolecularFamily, len(molfams)),
	}
	for _, b := range bgcs {
		d.bgcByID[b.ID] = b
	}
	for _, g := range gcfs {
		d.gcfByID[g.ID] = g
	}
	for _, s := range spectra {
		d.spectrumByID[s.ID] = s
	}
	for _, m := range molfams {
		d.molfamByID[m.ID] = m
	}
	return d
}

// BGCByID sucht ein BGC über seine ID, nil wenn unbekannt.
func (d *Dataset) BGCByID(id int) *models.BGC { return d.bgcByID[id] }

// GCFByID sucht eine GCF über ihre ID, nil wenn unbekannt.
func (d *Dataset) GCFByID(id int) *models.GCF { return d.gcfByID[id] }

// SpectrumByID sucht ein Spektrum über seine ID, nil wenn unbekannt.
func (d *Dataset) SpectrumByID(id int) *models.Spectrum { return d.spectrumByID[id] }

// MolFamByID sucht eine Molecular Family über ihre ID, nil wenn unbekannt.
func (d *Dataset) MolFamByID(id int) *models.MolecularFamily { return d.molfamByID[id] }

// Counts gibt die Kardinalitäten des Universums zurück. Die Reihenfolge
// (BGCs, GCFs, Spektren, Familien, Strains) dient als Cache-Fingerprint.
func (d *Dataset) Counts() [5]int {
	return [5]int{len(d.BGCs), len(d.GCFs), len(d.Spectra), len(d.MolFams), d.Strains.Len()}
}

func (d *Dataset) String() string {
	c := d.Counts()
	return fmt.Sprintf("Dataset(bgcs=%d, gcfs=%d, spectra=%d, molfams=%d, strains=%d)", c[0], c[1], c[2], c[3], c[4])
}
