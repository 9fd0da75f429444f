package rosetta

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/models"
)

// Hit ist ein Rosetta-Treffer: ein Spektrum und ein BGC, die über
// dieselbe MiBIG-Referenz verbunden sind, jeweils mit der Stärke der
// spektralen bzw. genomischen Evidenz.
type Hit struct {
	Spec           *models.Spectrum
	BGC            *models.BGC
	MiBIGID        string
	SpecMatchScore float64
	BGCMatchScore  float64
}

func (h *Hit) String() string {
	return fmt.Sprintf("RosettaHit: %s <--> %s via %s (spec=%.3f, bgc=%.3f)",
		h.Spec, h.BGC, h.MiBIGID, h.SpecMatchScore, h.BGCMatchScore)
}

// Matcher gleicht Datensatz-Spektren gegen eine annotierte
// Referenzbibliothek ab und joint die spektralen Treffer über die
// MiBIG-Accession mit den knownclusterblast-Hits der BGCs.
type Matcher struct {
	library []*models.ReferenceSpectrum
	logger  *zap.Logger
}

// NewMatcher erstellt einen Matcher über der gegebenen Bibliothek.
func NewMatcher(library []*models.ReferenceSpectrum, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{library: library, logger: logger}
}

// Run führt den kompletten Abgleich aus. ms1Tol ist die
// Precursor-Toleranz in ppm, ms2Tol die Peak-Toleranz in Da.
func (m *Matcher) Run(spectra []*models.Spectrum, bgcs []*models.BGC, ms1Tol, ms2Tol, scoreThresh float64, minMatchPeaks int) []*Hit {
	// 1. Spektrale Seite: Spektrum → MiBIG über Bibliotheks-Matches
	type spectralHit struct {
		spec  *models.Spectrum
		score float64
	}
	spectralHits := make(map[string][]spectralHit)
	spectralCount := 0
	for _, spec := range spectra {
		for _, ref := range m.library {
			if !withinPPM(spec.PrecursorMZ, ref.PrecursorMZ, ms1Tol) {
				continue
			}
			score, matched := CosineScore(spec.Peaks, ref.Peaks, ms2Tol)
			if matched < minMatchPeaks || score < scoreThresh {
				continue
			}
			spectralHits[ref.MiBIGID] = append(spectralHits[ref.MiBIGID], spectralHit{spec: spec, score: score})
			spectralCount++
		}
	}

	// 2. Genomische Seite: knownclusterblast-Hits der BGCs, Join über
	// die Accession
	var hits []*Hit
	for _, bgc := range bgcs {
		for _, kch := range bgc.KnownClusterHits {
			for _, sh := range spectralHits[kch.MiBIGID] {
				hits = append(hits, &Hit{
					Spec:           sh.spec,
					BGC:            bgc,
					MiBIGID:        kch.MiBIGID,
					SpecMatchScore: sh.score,
					BGCMatchScore:  kch.Similarity,
				})
			}
		}
	}

	m.logger.Info("Rosetta-Abgleich abgeschlossen",
		zap.Int("library_entries", len(m.library)),
		zap.Int("spectral_hits", spectralCount),
		zap.Int("hits", len(hits)))
	return hits
}

func withinPPM(a, b, ppmTol float64) bool {
	if b == 0 {
		return false
	}
	return math.Abs(a-b)/b*1e6 <= ppmTol
}

// CosineScore berechnet die Kosinus-Ähnlichkeit zweier Peak-Listen mit
// Greedy-Matching innerhalb der MS2-Toleranz. Die Intensitäten werden
// wurzeltransformiert, damit einzelne Basispeaks den Score nicht
// dominieren. Gibt den Score (0..1) und die Anzahl gematchter Peaks
// zurück.
func CosineScore(a, b []models.Peak, ms2Tol float64) (float64, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}

	type pair struct {
		i, j    int
		product float64
	}
	var pairs []pair
	for i, pa := range a {
		for j, pb := range b {
			if math.Abs(pa.MZ-pb.MZ) <= ms2Tol {
				pairs = append(pairs, pair{i: i, j: j, product: math.Sqrt(pa.Intensity) * math.Sqrt(pb.Intensity)})
			}
		}
	}
	sort.Slice(pairs, func(x, y int) bool { return pairs[x].product > pairs[y].product })

	usedA := make(map[int]bool, len(a))
	usedB := make(map[int]bool, len(b))
	var score float64
	matched := 0
	for _, p := range pairs {
		if usedA[p.i] || usedB[p.j] {
			continue
		}
		usedA[p.i] = true
		usedB[p.j] = true
		score += p.product
		matched++
	}

	norm := math.Sqrt(totalIntensity(a)) * math.Sqrt(totalIntensity(b))
	if norm == 0 {
		return 0, matched
	}
	return score / norm, matched
}

func totalIntensity(peaks []models.Peak) float64 {
	var sum float64
	for _, p := range peaks {
		sum += p.Intensity
	}
	return sum
}
