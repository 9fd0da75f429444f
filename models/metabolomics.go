package models

import "fmt"

// Peak ist ein einzelner m/z-Intensitäts-Punkt eines Spektrums.
type Peak struct {
	MZ        float64 `json:"mz"`
	Intensity float64 `json:"intensity"`
}

// Spectrum repräsentiert ein MS2-Spektrum aus einem GNPS Molecular
// Networking Lauf.
type Spectrum struct {
	ID          int     `json:"id"`
	PrecursorMZ float64 `json:"precursor_mz"`
	Peaks       []Peak  `json:"-"`

	// Family ist die Molecular Family, der das Spektrum zugeordnet wurde.
	Family *MolecularFamily `json:"-"`

	Strains *StrainCollection `json:"-"`
}

// NewSpectrum erstellt ein neues Spektrum ohne Peaks und ohne Familie.
func NewSpectrum(id int, precursorMZ float64) *Spectrum {
	return &Spectrum{
		ID:          id,
		PrecursorMZ: precursorMZ,
		Strains:     NewStrainCollection(),
	}
}

func (s *Spectrum) ObjectID() int { return s.ID }

func (s *Spectrum) Kind() ObjectKind { return KindSpectrum }

func (s *Spectrum) ObjectStrains() *StrainCollection { return s.Strains }

func (s *Spectrum) String() string {
	return fmt.Sprintf("Spectrum(id=%d, precursor_mz=%.4f)", s.ID, s.PrecursorMZ)
}

// MolecularFamily gruppiert Spektren, die im Molecular Network
// zusammenhängen. Die Strain-Menge ist die Vereinigung der Mitglieder.
type MolecularFamily struct {
	ID      int               `json:"id"`
	Spectra []*Spectrum       `json:"-"`
	Strains *StrainCollection `json:"-"`
}

// NewMolecularFamily erstellt eine leere Familie.
func NewMolecularFamily(id int) *MolecularFamily {
	return &MolecularFamily{
		ID:      id,
		Strains: NewStrainCollection(),
	}
}

// AddSpectrum fügt ein Spektrum hinzu, setzt dessen Family und vereinigt
// die Strain-Mengen.
func (m *MolecularFamily) AddSpectrum(s *Spectrum) {
	m.Spectra = append(m.Spectra, s)
	s.Family = m
	if s.Strains != nil {
		for _, strain := range s.Strains.Strains() {
			m.Strains.Add(strain)
		}
	}
}

func (m *MolecularFamily) ObjectID() int { return m.ID }

func (m *MolecularFamily) Kind() ObjectKind { return KindMolecularFamily }

func (m *MolecularFamily) ObjectStrains() *StrainCollection { return m.Strains }

func (m *MolecularFamily) String() string {
	return fmt.Sprintf("MolecularFamily(id=%d, spectra=%d)", m.ID, len(m.Spectra))
}

// ReferenceSpectrum ist ein annotierter Eintrag aus einer
// Spektralbibliothek (z.B. GNPS-Library), der über eine MiBIG-Accession
// mit einem bekannten Naturstoff-Cluster verknüpft ist.
type ReferenceSpectrum struct {
	CompoundName string  `json:"compound_name"`
	MiBIGID      string  `json:"mibig_id"`
	PrecursorMZ  float64 `json:"precursor_mz"`
	Peaks        []Peak  `json:"-"`
}
