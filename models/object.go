package models

import (
	"fmt"
	"sort"
)

// ObjectKind identifiziert die Art eines verknüpfbaren Objekts. Scoring-
// Methoden verzweigen über diesen Tag statt über Typ-Reflexion.
type ObjectKind int

const (
	KindBGC ObjectKind = iota
	KindGCF
	KindSpectrum
	KindMolecularFamily
)

func (k ObjectKind) String() string {
	switch k {
	case KindBGC:
		return "bgc"
	case KindGCF:
		return "gcf"
	case KindSpectrum:
		return "spectrum"
	case KindMolecularFamily:
		return "molfam"
	default:
		return "unknown"
	}
}

// ParseObjectKind übersetzt den Kurznamen einer Objektart zurück in die
// ObjectKind-Konstante.
func ParseObjectKind(s string) (ObjectKind, error) {
	switch s {
	case "bgc":
		return KindBGC, nil
	case "gcf":
		return KindGCF, nil
	case "spectrum":
		return KindSpectrum, nil
	case "molfam":
		return KindMolecularFamily, nil
	default:
		return 0, fmt.Errorf("unbekannte objektart: %q", s)
	}
}

// Object ist das gemeinsame Interface aller Objekte, zwischen denen Links
// berechnet werden können (BGC, GCF, Spectrum, MolecularFamily).
type Object interface {
	// ObjectID gibt die stabile numerische ID innerhalb des Datensatzes zurück.
	ObjectID() int

	// Kind gibt den Objekt-Tag für die Dispatch-Logik zurück.
	Kind() ObjectKind

	// ObjectStrains gibt die Menge der Strains zurück, in denen das Objekt
	// beobachtet wurde.
	ObjectStrains() *StrainCollection

	String() string
}

// SharedStrains berechnet die Schnittmenge der Strain-Mengen zweier
// Objekte, sortiert nach Strain-ID. Jeder Aufruf liefert einen frisch
// allozierten Slice.
func SharedStrains(a, b Object) []*Strain {
	shared := make([]*Strain, 0)
	sa, sb := a.ObjectStrains(), b.ObjectStrains()
	if sa == nil || sb == nil {
		return shared
	}
	// über die kleinere Menge iterieren
	if sb.Len() < sa.Len() {
		sa, sb = sb, sa
	}
	for _, strain := range sa.Strains() {
		if sb.Contains(strain) {
			shared = append(shared, strain)
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].ID < shared[j].ID })
	return shared
}
