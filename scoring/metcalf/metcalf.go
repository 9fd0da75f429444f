// Package metcalf implementiert das Strain-Korrelations-Scoring nach
// Metcalf et al. Die teuren Statistik-Strukturen werden einmal pro
// Analyse berechnet und auf Platte gecacht.
package metcalf

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/dataset"
	"github.com/louwenjjr/nplinker/linking"
	"github.com/louwenjjr/nplinker/models"
	"github.com/louwenjjr/nplinker/scoring"
	"github.com/louwenjjr/nplinker/storage"
)

// Name ist der registrierte Name der Methode.
const Name = "metcalf"

const cacheFile = "metcalf_scores.gob.gz"

// cacheState ist der Blob-Inhalt des Score-Caches. Die Counts dienen als
// Fingerprint des Datensatzes.
type cacheState struct {
	Counts     [5]int
	Datalinks  *linking.DataLinksState
	Linkfinder *linking.LinkFinderState
}

// Shared hält die einmal berechneten Statistik-Strukturen. Alle
// Metcalf-Instanzen einer Analyse teilen sich denselben Shared; das
// sync.Once garantiert die Einmal-Berechnung auch bei parallelen Setups.
type Shared struct {
	once       sync.Once
	err        error
	fromCache  bool
	datalinks  *linking.DataLinks
	linkfinder *linking.LinkFinder
}

// NewShared erstellt einen noch nicht initialisierten Zustand.
func NewShared() *Shared {
	return &Shared{}
}

// FromCache meldet, ob das Setup die Score-Tabellen aus dem Platten-Cache
// geladen hat (false = komplette Neuberechnung).
func (s *Shared) FromCache() bool { return s.fromCache }

func (s *Shared) setup(ds *dataset.Dataset, logger *zap.Logger) error {
	s.once.Do(func() {
		s.err = s.build(ds, logger)
	})
	return s.err
}

func (s *Shared) build(ds *dataset.Dataset, logger *zap.Logger) error {
	counts := ds.Counts()

	cachePath := ""
	if ds.Config != nil {
		cachePath = filepath.Join(ds.Config.MetcalfCacheDir(), cacheFile)
	}

	// 1. Cache-Versuch: nur gültig, wenn der Fingerprint noch stimmt.
	if cachePath != "" {
		var blob cacheState
		err := storage.LoadGob(cachePath, &blob)
		switch {
		case err == nil && blob.Counts == counts && blob.Datalinks != nil && blob.Linkfinder != nil:
			s.datalinks = linking.DataLinksFromState(blob.Datalinks)
			s.linkfinder = linking.LinkFinderFromState(blob.Linkfinder)
			s.fromCache = true
			logger.Info("Metcalf-Scores aus Cache geladen", zap.String("path", cachePath))
			return nil
		case err == nil:
			logger.Info("Metcalf-Cache passt nicht mehr zum Datensatz, berechne neu",
				zap.String("path", cachePath))
		case !errors.Is(err, os.ErrNotExist):
			// Kaputter Cache zählt als Miss, nicht als Fehler.
			logger.Warn("Metcalf-Cache unlesbar, berechne neu", zap.Error(err))
		}
	}

	// 2. Komplette Neuberechnung
	logger.Info("Berechne Metcalf-Statistiken", zap.String("dataset", ds.String()))
	dl := linking.NewDataLinks()
	if err := dl.LoadData(ds.Spectra, ds.MolFams, ds.GCFs, ds.Strains); err != nil {
		return fmt.Errorf("datalinks aufbauen fehlgeschlagen: %w", err)
	}
	dl.FindCorrelations()

	lf := linking.NewLinkFinder()
	if err := lf.MetcalfScoring(dl, linking.SpecGCF); err != nil {
		return err
	}
	if err := lf.MetcalfScoring(dl, linking.FamGCF); err != nil {
		return err
	}
	s.datalinks = dl
	s.linkfinder = lf

	// 3. Cache schreiben (best effort)
	if cachePath != "" {
		blob := cacheState{Counts: counts, Datalinks: dl.State(), Linkfinder: lf.State()}
		if err := storage.SaveGob(cachePath, &blob); err != nil {
			logger.Warn("Metcalf-Cache schreiben fehlgeschlagen", zap.Error(err))
		} else {
			logger.Info("Metcalf-Scores gecacht", zap.String("path", cachePath))
		}
	}
	return nil
}

// Scoring ist die Metcalf-Scoring-Methode. Cutoff und Standardised sind
// pro Instanz einstellbar, die Statistik-Strukturen kommen aus dem
// geteilten Zustand.
type Scoring struct {
	shared *Shared
	ds     *dataset.Dataset
	logger *zap.Logger

	// Cutoff ist der minimale Score, der behalten wird (inklusive
	// Grenze). nil deaktiviert die Filterung.
	Cutoff *float64

	// Standardised rechnet Rohscores in Z-Scores um; der Cutoff wird
	// dann erst nach der Standardisierung angewendet.
	Standardised bool
}

// New erstellt eine Instanz mit den Standardwerten (Cutoff 1.0,
// standardisiert).
func New(shared *Shared, logger *zap.Logger) *Scoring {
	if logger == nil {
		logger = zap.NewNop()
	}
	cutoff := 1.0
	return &Scoring{
		shared:       shared,
		logger:       logger,
		Cutoff:       &cutoff,
		Standardised: true,
	}
}

// Name gibt den Methodennamen zurück.
func (m *Scoring) Name() string { return Name }

// Setup berechnet die Statistik-Strukturen bzw. lädt sie aus dem Cache.
// Wiederholte Aufrufe sind idempotent.
func (m *Scoring) Setup(ds *dataset.Dataset) error {
	m.ds = ds
	return m.shared.setup(ds, m.logger)
}

// Datalinks gibt die Korrelationsstrukturen nach dem Setup zurück.
func (m *Scoring) Datalinks() *linking.DataLinks { return m.shared.datalinks }

// Linkfinder gibt die Score-Tabellen nach dem Setup zurück.
func (m *Scoring) Linkfinder() *linking.LinkFinder { return m.shared.linkfinder }

// GetLinks berechnet Metcalf-Links für Spektren, Familien oder GCFs.
// BGC-Eingaben werden abgelehnt.
func (m *Scoring) GetLinks(objects []models.Object, coll *scoring.LinkCollection) (*scoring.LinkCollection, error) {
	kind, err := scoring.HomogeneousKind(objects)
	if err != nil {
		return nil, err
	}
	if kind == models.KindBGC {
		return nil, fmt.Errorf("metcalf-scoring unterstützt keine BGCs, stattdessen GCFs übergeben")
	}
	if m.shared == nil || m.shared.linkfinder == nil || m.ds == nil {
		return nil, fmt.Errorf("metcalf-scoring ohne Setup aufgerufen")
	}

	// Rohphase: bei Standardisierung wird der Cutoff unterdrückt und
	// erst auf die Z-Scores angewendet.
	var rawCutoff *float64
	if !m.Standardised {
		rawCutoff = m.Cutoff
	}
	results, err := m.shared.linkfinder.GetLinks(m.shared.datalinks, objects, rawCutoff)
	if err != nil {
		return nil, err
	}

	links := make(map[models.Object]map[models.Object]*scoring.ObjectLink)
	total := 0

	if kind == models.KindGCF {
		// Zwei Ergebnislisten: GCF↔Spectrum und GCF↔MolecularFamily.
		for i, candidates := range results {
			metKind := models.KindSpectrum
			if i == 1 {
				metKind = models.KindMolecularFamily
			}
			for _, cand := range candidates {
				gcf := m.ds.GCFByID(cand.SourceID)
				met := m.metObjectByID(metKind, cand.TargetID)
				if gcf == nil || met == nil {
					return nil, fmt.Errorf("kandidat verweist auf unbekannte objekte (gcf=%d, %s=%d)", cand.SourceID, metKind, cand.TargetID)
				}
				score, keep := m.finalScore(cand.Score, met, gcf)
				if !keep {
					continue
				}
				m.addLink(links, gcf, met, score)
				total++
			}
		}
	} else {
		for _, cand := range results[0] {
			met := m.metObjectByID(kind, cand.SourceID)
			gcf := m.ds.GCFByID(cand.TargetID)
			if met == nil || gcf == nil {
				return nil, fmt.Errorf("kandidat verweist auf unbekannte objekte (%s=%d, gcf=%d)", kind, cand.SourceID, cand.TargetID)
			}
			score, keep := m.finalScore(cand.Score, met, gcf)
			if !keep {
				continue
			}
			m.addLink(links, met, gcf, score)
			total++
		}
	}

	if total == 0 {
		m.logger.Debug("Keine Metcalf-Links über dem Cutoff gefunden", zap.Int("objects", len(objects)))
	}
	if err := coll.AddFromMethod(m, links); err != nil {
		return nil, err
	}
	return coll, nil
}

// finalScore standardisiert den Rohscore und wendet danach den Cutoff an.
// Ohne Standardisierung ist der Rohscore bereits gefiltert.
func (m *Scoring) finalScore(raw float64, met, gen models.Object) (float64, bool) {
	if !m.Standardised {
		return raw, true
	}
	metStrains := met.ObjectStrains().Len()
	genStrains := gen.ObjectStrains().Len()
	z := (raw - m.shared.linkfinder.ExpectedScore(metStrains, genStrains)) /
		m.shared.linkfinder.VarianceSqrt(metStrains, genStrains)
	if m.Cutoff != nil && z < *m.Cutoff {
		return z, false
	}
	return z, true
}

func (m *Scoring) metObjectByID(kind models.ObjectKind, id int) models.Object {
	if kind == models.KindSpectrum {
		if s := m.ds.SpectrumByID(id); s != nil {
			return s
		}
		return nil
	}
	if f := m.ds.MolFamByID(id); f != nil {
		return f
	}
	return nil
}

func (m *Scoring) addLink(links map[models.Object]map[models.Object]*scoring.ObjectLink, source, target models.Object, score float64) {
	targets, ok := links[source]
	if !ok {
		targets = make(map[models.Object]*scoring.ObjectLink)
		links[source] = targets
	}
	targets[target] = scoring.NewObjectLink(source, target, m, score, m.commonStrains(source, target))
}

// commonStrains löst die Strain-Schnittmenge über die Präsenzmatrizen des
// Korrelations-Backends auf. Objekte ohne Präsenzzeile (etwa nach einem
// Cache-Restore mit fremden IDs) fallen auf die direkten Strain-Mengen
// zurück.
func (m *Scoring) commonStrains(a, b models.Object) []*models.Strain {
	ids, err := m.shared.datalinks.CommonStrains(a, b)
	if err != nil {
		return models.SharedStrains(a, b)
	}
	shared := make([]*models.Strain, 0, len(ids))
	for _, id := range ids {
		if strain := m.ds.Strains.Lookup(id); strain != nil {
			shared = append(shared, strain)
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].ID < shared[j].ID })
	return shared
}

// FormatData rendert den Score mit vier Nachkommastellen.
func (m *Scoring) FormatData(data any) string {
	if v, ok := data.(float64); ok {
		return fmt.Sprintf("%.4f", v)
	}
	return fmt.Sprintf("%v", data)
}

// Sort ordnet Links nach dem Metcalf-Score, bei reverse absteigend.
func (m *Scoring) Sort(links []*scoring.ObjectLink, reverse bool) []*scoring.ObjectLink {
	sorted := make([]*scoring.ObjectLink, len(links))
	copy(sorted, links)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := m.linkScore(sorted[i]), m.linkScore(sorted[j])
		if reverse {
			return si > sj
		}
		return si < sj
	})
	return sorted
}

func (m *Scoring) linkScore(l *scoring.ObjectLink) float64 {
	data, err := l.Data(m)
	if err != nil {
		return math.Inf(-1)
	}
	v, _ := data.(float64)
	return v
}
