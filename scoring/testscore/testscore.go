// Package testscore enthält eine Debug-Scoring-Methode für Harness- und
// Integrationstests. Nicht für echte Analysen gedacht.
package testscore

import (
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/dataset"
	"github.com/louwenjjr/nplinker/models"
	"github.com/louwenjjr/nplinker/scoring"
	"github.com/louwenjjr/nplinker/scoring/metcalf"
)

// Name ist der registrierte Name der Methode.
const Name = "testscore"

// Scoring führt intern das Metcalf-Scoring aus, behält einen
// deterministischen Anteil der Quellen (sortiert nach Objekt-ID) und
// ersetzt deren Payloads durch Zufallswerte unter eigenem Namen. Der
// Metcalf-Payload wird dabei verworfen.
type Scoring struct {
	mc     *metcalf.Scoring
	logger *zap.Logger

	// Value ist der Anteil der Quellen, der behalten wird.
	Value float64
}

// New erstellt eine Instanz um das gegebene Metcalf-Scoring, mit
// Standard-Anteil 0.5.
func New(mc *metcalf.Scoring, logger *zap.Logger) *Scoring {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scoring{mc: mc, logger: logger, Value: 0.5}
}

// Name gibt den Methodennamen zurück.
func (t *Scoring) Name() string { return Name }

// Setup delegiert an das umschlossene Metcalf-Scoring.
func (t *Scoring) Setup(ds *dataset.Dataset) error {
	return t.mc.Setup(ds)
}

// GetLinks lässt Metcalf rechnen, kürzt die Ergebnisse auf den
// konfigurierten Anteil und tauscht die Payloads aus.
func (t *Scoring) GetLinks(objects []models.Object, coll *scoring.LinkCollection) (*scoring.LinkCollection, error) {
	if _, err := t.mc.GetLinks(objects, coll); err != nil {
		return nil, err
	}

	all := coll.Links()
	sources := make([]models.Object, 0, len(all))
	for source := range all {
		sources = append(sources, source)
	}
	// stabile Kürzung: erst nach ID sortieren, dann abschneiden
	sort.Slice(sources, func(i, j int) bool { return sources[i].ObjectID() < sources[j].ObjectID() })
	keep := int(float64(len(sources)) * t.Value)

	truncated := make(map[models.Object]map[models.Object]*scoring.ObjectLink, keep)
	for _, source := range sources[:keep] {
		targets := all[source]
		for _, link := range targets {
			link.SetData(t, rand.Float64())
			link.DeleteData(t.mc)
		}
		truncated[source] = targets
	}

	t.logger.Debug("Metcalf-Ergebnisse für Testzwecke gekürzt",
		zap.Int("sources_before", len(sources)), zap.Int("sources_after", keep))

	if err := coll.AddFromMethod(t, truncated); err != nil {
		return nil, err
	}
	return coll, nil
}

// FormatData delegiert an die Metcalf-Formatierung.
func (t *Scoring) FormatData(data any) string {
	return t.mc.FormatData(data)
}

// Sort gibt die Links unverändert zurück.
func (t *Scoring) Sort(links []*scoring.ObjectLink, _ bool) []*scoring.ObjectLink {
	return links
}
