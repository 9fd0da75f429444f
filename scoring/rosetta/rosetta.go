// Package rosetta implementiert das Rosetta-Scoring: Links entstehen,
// wenn ein Spektrum eine annotierte Referenz trifft UND ein BGC per
// knownclusterblast auf denselben MiBIG-Cluster zeigt.
package rosetta

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/dataset"
	"github.com/louwenjjr/nplinker/models"
	"github.com/louwenjjr/nplinker/scoring"
)

// Name ist der registrierte Name der Methode.
const Name = "rosetta"

// Default-Toleranzen für den Abgleich, überschreibbar per Konfiguration.
const (
	DefMS1Tol        = 100.0
	DefMS2Tol        = 0.2
	DefScoreThresh   = 0.5
	DefMinMatchPeaks = 1
)

// Shared hält die einmal berechnete Hit-Liste. Alle Rosetta-Instanzen
// einer Analyse teilen sich denselben Shared.
type Shared struct {
	once sync.Once
	err  error
	hits []*Hit
}

// NewShared erstellt einen noch nicht initialisierten Zustand.
func NewShared() *Shared {
	return &Shared{}
}

// NewSharedFromHits erstellt einen bereits initialisierten Zustand mit
// einer vorab berechneten Hit-Liste.
func NewSharedFromHits(hits []*Hit) *Shared {
	s := &Shared{hits: hits}
	s.once.Do(func() {})
	return s
}

// Hits gibt die Hit-Liste nach dem Setup zurück.
func (s *Shared) Hits() []*Hit { return s.hits }

func (s *Shared) setup(ds *dataset.Dataset, logger *zap.Logger) error {
	s.once.Do(func() {
		if len(ds.Library) == 0 {
			logger.Warn("Keine Referenzbibliothek im Datensatz, Rosetta wird keine Hits finden.")
		}

		ms1Tol, ms2Tol, scoreThresh, minMatchPeaks := DefMS1Tol, DefMS2Tol, DefScoreThresh, DefMinMatchPeaks
		if cfg := ds.Config; cfg != nil {
			ms1Tol = cfg.RosettaMS1Tol
			ms2Tol = cfg.RosettaMS2Tol
			scoreThresh = cfg.RosettaScoreThresh
			minMatchPeaks = cfg.RosettaMinMatchPeaks
		}

		matcher := NewMatcher(ds.Library, logger)
		s.hits = matcher.Run(ds.Spectra, ds.BGCs, ms1Tol, ms2Tol, scoreThresh, minMatchPeaks)
	})
	return s.err
}

// Scoring ist die Rosetta-Scoring-Methode.
type Scoring struct {
	shared *Shared
	logger *zap.Logger

	// BGCToGCF rollt BGC-Treffer auf die Parent-GCF hoch.
	BGCToGCF bool

	// Ein Hit zählt nur, wenn BEIDE Scores ihre Cutoffs erreichen.
	SpecScoreCutoff float64
	BGCScoreCutoff  float64
}

// New erstellt eine Instanz mit den Standardwerten (Rollup aktiv,
// Cutoffs 0).
func New(shared *Shared, logger *zap.Logger) *Scoring {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scoring{shared: shared, logger: logger, BGCToGCF: true}
}

// Name gibt den Methodennamen zurück.
func (r *Scoring) Name() string { return Name }

// Setup führt den Spektral-/MiBIG-Abgleich einmalig aus.
func (r *Scoring) Setup(ds *dataset.Dataset) error {
	return r.shared.setup(ds, r.logger)
}

func (r *Scoring) includeHit(hit *Hit) bool {
	return hit.SpecMatchScore >= r.SpecScoreCutoff && hit.BGCMatchScore >= r.BGCScoreCutoff
}

// GetLinks berechnet Rosetta-Links für BGCs, GCFs oder Spektren.
// Molecular Families werden nicht unterstützt.
func (r *Scoring) GetLinks(objects []models.Object, coll *scoring.LinkCollection) (*scoring.LinkCollection, error) {
	kind, err := scoring.HomogeneousKind(objects)
	if err != nil {
		return nil, err
	}

	links := make(map[models.Object]map[models.Object]*scoring.ObjectLink)

	switch kind {
	case models.KindMolecularFamily:
		return nil, fmt.Errorf("rosetta-scoring unterstützt keine molecular families")

	case models.KindGCF:
		bgcs := expandGCFs(objects)
		r.logger.Info("GCF-Eingaben zu BGCs expandiert",
			zap.Int("gcfs", len(objects)), zap.Int("unique_bgcs", len(bgcs)))
		r.collectBGCLinks(bgcs, links)

	case models.KindBGC:
		bgcs := make([]*models.BGC, 0, len(objects))
		for _, obj := range objects {
			bgcs = append(bgcs, obj.(*models.BGC))
		}
		r.collectBGCLinks(bgcs, links)

	case models.KindSpectrum:
		r.collectSpectrumLinks(objects, links)
	}

	if err := coll.AddFromMethod(r, links); err != nil {
		return nil, err
	}
	return coll, nil
}

// expandGCFs bildet die deduplizierte Vereinigung aller Mitglieds-BGCs.
func expandGCFs(objects []models.Object) []*models.BGC {
	seen := make(map[int]struct{})
	var bgcs []*models.BGC
	for _, obj := range objects {
		gcf := obj.(*models.GCF)
		for _, bgc := range gcf.BGCs {
			if _, ok := seen[bgc.ID]; ok {
				continue
			}
			seen[bgc.ID] = struct{}{}
			bgcs = append(bgcs, bgc)
		}
	}
	return bgcs
}

func (r *Scoring) collectBGCLinks(bgcs []*models.BGC, links map[models.Object]map[models.Object]*scoring.ObjectLink) {
	for _, bgc := range bgcs {
		for _, hit := range r.shared.hits {
			if hit.BGC.ID != bgc.ID || !r.includeHit(hit) {
				continue
			}
			var source models.Object = bgc
			if r.BGCToGCF && bgc.Parent != nil {
				source = bgc.Parent
			}
			r.appendHit(links, source, hit.Spec, hit)
		}
	}
}

func (r *Scoring) collectSpectrumLinks(objects []models.Object, links map[models.Object]map[models.Object]*scoring.ObjectLink) {
	for _, obj := range objects {
		spec := obj.(*models.Spectrum)
		for _, hit := range r.shared.hits {
			if hit.Spec.ID != spec.ID || !r.includeHit(hit) {
				continue
			}
			var target models.Object = hit.BGC
			if r.BGCToGCF && hit.BGC.Parent != nil {
				target = hit.BGC.Parent
			}
			r.appendHit(links, spec, target, hit)
		}
	}
}

// appendHit hängt den Hit an die Liste eines bestehenden Links an oder
// legt einen neuen Link mit einelementiger Liste an. Payloads werden nie
// überschrieben, nur erweitert.
func (r *Scoring) appendHit(links map[models.Object]map[models.Object]*scoring.ObjectLink, source, target models.Object, hit *Hit) {
	targets, ok := links[source]
	if !ok {
		targets = make(map[models.Object]*scoring.ObjectLink)
		links[source] = targets
	}
	if link, ok := targets[target]; ok {
		if data, err := link.Data(r); err == nil {
			if hits, ok := data.([]*Hit); ok {
				link.SetData(r, append(hits, hit))
				return
			}
		}
	}
	targets[target] = scoring.NewObjectLink(source, target, r, []*Hit{hit}, models.SharedStrains(source, target))
}

// FormatData rendert die Anzahl der Hits eines Links.
func (r *Scoring) FormatData(data any) string {
	if hits, ok := data.([]*Hit); ok {
		return fmt.Sprintf("%d hits", len(hits))
	}
	return fmt.Sprintf("%v", data)
}

// Sort gibt die Links unverändert zurück; über Hit-Listen ist keine
// fachliche Ordnung definiert.
func (r *Scoring) Sort(links []*scoring.ObjectLink, _ bool) []*scoring.ObjectLink {
	return links
}
