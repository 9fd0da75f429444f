package linking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/louwenjjr/nplinker/models"
)

// ScoringWeights sind die Metcalf-Gewichte für die vier
// Ko-Okkurrenz-Fälle eines Strains.
type ScoringWeights struct {
	Both      float64 // Metabolit und GCF präsent
	MetNotGen float64 // Metabolit präsent, GCF absent
	GenNotMet float64 // GCF präsent, Metabolit absent
	Neither   float64
}

// MetcalfWeights sind die Standardgewichte nach Metcalf et al.
var MetcalfWeights = ScoringWeights{Both: 10, MetNotGen: -10, GenNotMet: 0, Neither: 1}

// Candidate ist ein roher Score-Kandidat (Quelle, Ziel, Score). Quelle ist
// immer das angefragte Objekt, Ziel die Gegenseite.
type Candidate struct {
	SourceID int
	TargetID int
	Score    float64
}

// LinkFinder hält die berechneten Metcalf-Score-Matrizen sowie die
// Erwartungswert-/Varianz-Tabellen für die Standardisierung.
type LinkFinder struct {
	weights ScoringWeights

	scoresSpecGCF *mat.Dense // Zeilen Spektren, Spalten GCFs
	scoresFamGCF  *mat.Dense

	// Tabellen indiziert [metStrainCount][genStrainCount]
	expected     *mat.Dense
	varianceSqrt *mat.Dense
	nStrains     int
}

// NewLinkFinder erstellt einen LinkFinder mit den Standard-Gewichten.
func NewLinkFinder() *LinkFinder {
	return &LinkFinder{weights: MetcalfWeights}
}

// MetcalfScoring berechnet die Score-Matrix für die gegebene
// Korrelationsart. Beim ersten Aufruf werden zusätzlich die
// Erwartungswert- und Varianz-Tabellen über alle Strain-Zahlen-Paare
// aufgebaut.
func (lf *LinkFinder) MetcalfScoring(dl *DataLinks, kind CorrelationKind) error {
	var cooc *cooccurrence
	switch kind {
	case SpecGCF:
		cooc = dl.specGCF
	case FamGCF:
		cooc = dl.famGCF
	}
	if cooc == nil {
		return fmt.Errorf("korrelationen für %s fehlen, FindCorrelations zuerst aufrufen", kind)
	}

	scores := weightedSum(cooc, lf.weights)
	switch kind {
	case SpecGCF:
		lf.scoresSpecGCF = scores
	case FamGCF:
		lf.scoresFamGCF = scores
	}

	if lf.expected == nil {
		lf.calcExpectedTables(dl.StrainCount())
	}
	return nil
}

func weightedSum(c *cooccurrence, w ScoringWeights) *mat.Dense {
	scores := &mat.Dense{}
	scores.Scale(w.Both, c.both)

	tmp := &mat.Dense{}
	tmp.Scale(w.MetNotGen, c.metOnly)
	scores.Add(scores, tmp)

	tmp.Scale(w.GenNotMet, c.genOnly)
	scores.Add(scores, tmp)

	tmp.Scale(w.Neither, c.neither)
	scores.Add(scores, tmp)
	return scores
}

// calcExpectedTables baut expected[n][m] und varianceSqrt[n][m] für alle
// Paare von Strain-Zahlen (n = metabolomisch, m = genomisch) über die
// hypergeometrische Verteilung der möglichen Überlappungen auf.
func (lf *LinkFinder) calcExpectedTables(nStrains int) {
	lf.nStrains = nStrains
	size := nStrains + 1
	lf.expected = mat.NewDense(size, size, nil)
	lf.varianceSqrt = mat.NewDense(size, size, nil)

	for n := 0; n <= nStrains; n++ {
		for m := 0; m <= nStrains; m++ {
			minOverlap := n + m - nStrains
			if minOverlap < 0 {
				minOverlap = 0
			}
			maxOverlap := n
			if m < n {
				maxOverlap = m
			}

			var ev, evSq float64
			for o := minOverlap; o <= maxOverlap; o++ {
				p := hypergeomPMF(o, nStrains, n, m)
				score := lf.weights.Both*float64(o) +
					lf.weights.MetNotGen*float64(n-o) +
					lf.weights.GenNotMet*float64(m-o) +
					lf.weights.Neither*float64(nStrains-(n+m-o))
				ev += p * score
				evSq += p * score * score
			}

			variance := evSq - ev*ev
			if variance < 1e-9 {
				variance = 1
			}
			lf.expected.Set(n, m, ev)
			lf.varianceSqrt.Set(n, m, math.Sqrt(variance))
		}
	}
}

// hypergeomPMF gibt P(X = overlap) zurück, wenn aus total Strains die
// genPresent genomischen gezogen werden und metPresent metabolomische
// Treffer im Pool sind.
func hypergeomPMF(overlap, total, metPresent, genPresent int) float64 {
	logP := combin.LogGeneralizedBinomial(float64(metPresent), float64(overlap)) +
		combin.LogGeneralizedBinomial(float64(total-metPresent), float64(genPresent-overlap)) -
		combin.LogGeneralizedBinomial(float64(total), float64(genPresent))
	return math.Exp(logP)
}

// ExpectedScore gibt den Erwartungswert für ein Strain-Zahlen-Paar zurück.
func (lf *LinkFinder) ExpectedScore(metStrains, genStrains int) float64 {
	return lf.expected.At(metStrains, genStrains)
}

// VarianceSqrt gibt die Wurzel der Varianz für ein Strain-Zahlen-Paar
// zurück.
func (lf *LinkFinder) VarianceSqrt(metStrains, genStrains int) float64 {
	return lf.varianceSqrt.At(metStrains, genStrains)
}

// GetLinks liefert rohe Score-Kandidaten für homogene Eingabeobjekte.
// Für Spektren bzw. Familien ist das Ergebnis eine Liste, für GCFs zwei
// Listen (GCF↔Spectrum und GCF↔MolecularFamily). Ein cutoff von nil
// deaktiviert die Filterung, sonst werden Scores >= cutoff behalten.
func (lf *LinkFinder) GetLinks(dl *DataLinks, objects []models.Object, cutoff *float64) ([][]Candidate, error) {
	if len(objects) == 0 {
		return nil, fmt.Errorf("keine objekte übergeben")
	}

	switch objects[0].Kind() {
	case models.KindSpectrum:
		list, err := lf.metaboliteLinks(objects, dl.specIndex, lf.scoresSpecGCF, dl.gcfIDs, cutoff)
		if err != nil {
			return nil, err
		}
		return [][]Candidate{list}, nil

	case models.KindMolecularFamily:
		list, err := lf.metaboliteLinks(objects, dl.famIndex, lf.scoresFamGCF, dl.gcfIDs, cutoff)
		if err != nil {
			return nil, err
		}
		return [][]Candidate{list}, nil

	case models.KindGCF:
		specList, err := lf.gcfLinks(objects, dl, lf.scoresSpecGCF, dl.specIDs, cutoff)
		if err != nil {
			return nil, err
		}
		famList, err := lf.gcfLinks(objects, dl, lf.scoresFamGCF, dl.famIDs, cutoff)
		if err != nil {
			return nil, err
		}
		return [][]Candidate{specList, famList}, nil

	default:
		return nil, fmt.Errorf("objektart %s wird nicht unterstützt", objects[0].Kind())
	}
}

// metaboliteLinks liest für metabolomische Objekte die Zeile der
// Score-Matrix aus (Quelle = Objekt, Ziel = GCF).
func (lf *LinkFinder) metaboliteLinks(objects []models.Object, index map[int]int, scores *mat.Dense, gcfIDs []int, cutoff *float64) ([]Candidate, error) {
	if scores == nil {
		return nil, fmt.Errorf("score-matrix fehlt, MetcalfScoring zuerst aufrufen")
	}
	var out []Candidate
	for _, obj := range objects {
		row, ok := index[obj.ObjectID()]
		if !ok {
			return nil, fmt.Errorf("objekt %s ist nicht im korrelations-index", obj)
		}
		for col, gcfID := range gcfIDs {
			score := scores.At(row, col)
			if cutoff == nil || score >= *cutoff {
				out = append(out, Candidate{SourceID: obj.ObjectID(), TargetID: gcfID, Score: score})
			}
		}
	}
	return out, nil
}

// gcfLinks liest für GCFs die Spalte der Score-Matrix aus (Quelle = GCF,
// Ziel = metabolomisches Objekt).
func (lf *LinkFinder) gcfLinks(objects []models.Object, dl *DataLinks, scores *mat.Dense, metIDs []int, cutoff *float64) ([]Candidate, error) {
	if scores == nil {
		return nil, fmt.Errorf("score-matrix fehlt, MetcalfScoring zuerst aufrufen")
	}
	var out []Candidate
	for _, obj := range objects {
		col, ok := dl.gcfIndex[obj.ObjectID()]
		if !ok {
			return nil, fmt.Errorf("GCF %s ist nicht im korrelations-index", obj)
		}
		for row, metID := range metIDs {
			score := scores.At(row, col)
			if cutoff == nil || score >= *cutoff {
				out = append(out, Candidate{SourceID: obj.ObjectID(), TargetID: metID, Score: score})
			}
		}
	}
	return out, nil
}

// LinkFinderState ist der serialisierbare Zustand für den Score-Cache.
type LinkFinderState struct {
	Weights       ScoringWeights
	ScoresSpecGCF matrixState
	ScoresFamGCF  matrixState
	Expected      matrixState
	VarianceSqrt  matrixState
	NStrains      int
}

// State extrahiert den serialisierbaren Zustand.
func (lf *LinkFinder) State() *LinkFinderState {
	return &LinkFinderState{
		Weights:       lf.weights,
		ScoresSpecGCF: denseState(lf.scoresSpecGCF),
		ScoresFamGCF:  denseState(lf.scoresFamGCF),
		Expected:      denseState(lf.expected),
		VarianceSqrt:  denseState(lf.varianceSqrt),
		NStrains:      lf.nStrains,
	}
}

// LinkFinderFromState stellt einen LinkFinder aus Cache-Zustand wieder her.
func LinkFinderFromState(s *LinkFinderState) *LinkFinder {
	return &LinkFinder{
		weights:       s.Weights,
		scoresSpecGCF: stateDense(s.ScoresSpecGCF),
		scoresFamGCF:  stateDense(s.ScoresFamGCF),
		expected:      stateDense(s.Expected),
		varianceSqrt:  stateDense(s.VarianceSqrt),
		nStrains:      s.NStrains,
	}
}
