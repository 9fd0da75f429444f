package models

import "fmt"

// KnownClusterHit ist ein knownclusterblast-Treffer eines BGCs gegen einen
// MiBIG-Referenzcluster, mit Ähnlichkeit als Anteil (0..1).
type KnownClusterHit struct {
	MiBIGID    string  `json:"mibig_id"`
	Similarity float64 `json:"similarity"`
}

// BGC repräsentiert ein Biosynthetic Gene Cluster aus einem antiSMASH-Lauf.
type BGC struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	// Parent ist die GCF, zu der dieses BGC gehört (gesetzt durch AddBGC).
	Parent *GCF `json:"-"`

	Strains *StrainCollection `json:"-"`

	// KnownClusterHits sind die MiBIG-Referenzen aus knownclusterblast.
	KnownClusterHits []KnownClusterHit `json:"known_cluster_hits,omitempty"`
}

// NewBGC erstellt ein neues BGC ohne GCF-Zuordnung.
func NewBGC(id int, name string) *BGC {
	return &BGC{
		ID:      id,
		Name:    name,
		Strains: NewStrainCollection(),
	}
}

// AddKnownClusterHit registriert einen knownclusterblast-Treffer.
func (b *BGC) AddKnownClusterHit(mibigID string, similarity float64) {
	b.KnownClusterHits = append(b.KnownClusterHits, KnownClusterHit{
		MiBIGID:    mibigID,
		Similarity: similarity,
	})
}

func (b *BGC) ObjectID() int { return b.ID }

func (b *BGC) Kind() ObjectKind { return KindBGC }

func (b *BGC) ObjectStrains() *StrainCollection { return b.Strains }

func (b *BGC) String() string {
	return fmt.Sprintf("BGC(id=%d, name=%s)", b.ID, b.Name)
}

// GCF repräsentiert eine Gene Cluster Family, d.h. eine Gruppe verwandter
// BGCs. Die Strain-Menge ist die Vereinigung der Mitglieds-Strains.
type GCF struct {
	ID      int               `json:"id"`
	BGCs    []*BGC            `json:"-"`
	Strains *StrainCollection `json:"-"`
}

// NewGCF erstellt eine leere GCF.
func NewGCF(id int) *GCF {
	return &GCF{
		ID:      id,
		Strains: NewStrainCollection(),
	}
}

// AddBGC fügt ein Mitglied hinzu, setzt dessen Parent und vereinigt die
// Strain-Mengen.
func (g *GCF) AddBGC(b *BGC) {
	g.BGCs = append(g.BGCs, b)
	b.Parent = g
	if b.Strains != nil {
		for _, strain := range b.Strains.Strains() {
			g.Strains.Add(strain)
		}
	}
}

func (g *GCF) ObjectID() int { return g.ID }

func (g *GCF) Kind() ObjectKind { return KindGCF }

func (g *GCF) ObjectStrains() *StrainCollection { return g.Strains }

func (g *GCF) String() string {
	return fmt.Sprintf("GCF(id=%d, bgcs=%d)", g.ID, len(g.BGCs))
}
