package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/config"
	"github.com/louwenjjr/nplinker/dataset"
	"github.com/louwenjjr/nplinker/models"
	"github.com/louwenjjr/nplinker/scoring"
	"github.com/louwenjjr/nplinker/scoring/metcalf"
	"github.com/louwenjjr/nplinker/scoring/rosetta"
	"github.com/louwenjjr/nplinker/scoring/testscore"
)

// AnalysisService orchestriert die Scoring-Methoden über einem geladenen
// Datensatz. Er besitzt die geteilten Zustände der Methoden, sodass
// beliebig viele Methoden-Instanzen dieselben einmal berechneten
// Strukturen wiederverwenden.
type AnalysisService struct {
	Config  *config.Config
	Dataset *dataset.Dataset
	Logger  *zap.Logger

	metcalfShared *metcalf.Shared
	rosettaShared *rosetta.Shared
}

// NewAnalysisService erstellt einen neuen AnalysisService mit frischen
// geteilten Zuständen.
func NewAnalysisService(cfg *config.Config, ds *dataset.Dataset, logger *zap.Logger) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{
		Config:        cfg,
		Dataset:       ds,
		Logger:        logger,
		metcalfShared: metcalf.NewShared(),
		rosettaShared: rosetta.NewShared(),
	}
}

// MethodNames gibt die Namen aller verfügbaren Scoring-Methoden zurück.
func (a *AnalysisService) MethodNames() []string {
	return []string{metcalf.Name, rosetta.Name, testscore.Name}
}

// ScoringMethod erstellt eine neue, mit den Konfigurationswerten
// vorbelegte Instanz der benannten Methode. Instanzen derselben Methode
// teilen sich den vom Service gehaltenen Zustand.
func (a *AnalysisService) ScoringMethod(name string) (scoring.Method, error) {
	switch name {
	case metcalf.Name:
		return a.newMetcalf(), nil
	case rosetta.Name:
		return rosetta.New(a.rosettaShared, a.Logger), nil
	case testscore.Name:
		return testscore.New(a.newMetcalf(), a.Logger), nil
	default:
		return nil, fmt.Errorf("unbekannte scoring-methode %q", name)
	}
}

func (a *AnalysisService) newMetcalf() *metcalf.Scoring {
	mc := metcalf.New(a.metcalfShared, a.Logger)
	if a.Config != nil {
		cutoff := a.Config.MetcalfCutoff
		mc.Cutoff = &cutoff
		mc.Standardised = a.Config.MetcalfStandardised
	}
	return mc
}

// Warm berechnet die geteilten Strukturen beider Methoden vor, damit die
// erste Anfrage nicht auf die Statistik warten muss. Gibt zurück, ob die
// Metcalf-Scores aus dem Platten-Cache kamen.
func (a *AnalysisService) Warm() (bool, error) {
	if err := a.newMetcalf().Setup(a.Dataset); err != nil {
		return false, fmt.Errorf("metcalf-setup fehlgeschlagen: %w", err)
	}
	if err := rosetta.New(a.rosettaShared, a.Logger).Setup(a.Dataset); err != nil {
		return a.metcalfShared.FromCache(), fmt.Errorf("rosetta-setup fehlgeschlagen: %w", err)
	}
	return a.metcalfShared.FromCache(), nil
}

// GetLinks führt die übergebenen Methoden nacheinander über den
// Eingabeobjekten aus und kombiniert die Ergebnisse in einer
// LinkCollection. Bei andMode überleben nur Links, die jede Methode
// gefunden hat, sonst die Vereinigung aller Treffer.
func (a *AnalysisService) GetLinks(objects []models.Object, methods []scoring.Method, andMode bool) (*scoring.LinkCollection, error) {
	if len(methods) == 0 {
		return nil, fmt.Errorf("keine scoring-methoden angegeben")
	}
	if _, err := scoring.HomogeneousKind(objects); err != nil {
		return nil, err
	}

	coll := scoring.NewLinkCollection(andMode, a.Logger)
	for _, method := range methods {
		// 1. Einmalige Vorbereitung der Methode (idempotent dank Shared-Zustand)
		if err := method.Setup(a.Dataset); err != nil {
			return nil, fmt.Errorf("setup der methode %s fehlgeschlagen: %w", method.Name(), err)
		}

		// 2. Links berechnen und in die Sammlung mischen
		if _, err := method.GetLinks(objects, coll); err != nil {
			return nil, fmt.Errorf("scoring mit %s fehlgeschlagen: %w", method.Name(), err)
		}
	}

	a.Logger.Info("Scoring abgeschlossen",
		zap.Int("methods", len(methods)),
		zap.Int("sources", coll.SourceCount()),
		zap.Int("links", coll.Len()),
		zap.Bool("and_mode", andMode))

	return coll, nil
}

// ObjectsByKind löst numerische IDs einer Objektart in die Objekte des
// Datensatzes auf. Unbekannte IDs führen zu einem Fehler.
func (a *AnalysisService) ObjectsByKind(kind models.ObjectKind, ids []int) ([]models.Object, error) {
	if a.Dataset == nil {
		return nil, fmt.Errorf("kein datensatz geladen")
	}
	objects := make([]models.Object, 0, len(ids))
	for _, id := range ids {
		var obj models.Object
		switch kind {
		case models.KindBGC:
			if b := a.Dataset.BGCByID(id); b != nil {
				obj = b
			}
		case models.KindGCF:
			if g := a.Dataset.GCFByID(id); g != nil {
				obj = g
			}
		case models.KindSpectrum:
			if s := a.Dataset.SpectrumByID(id); s != nil {
				obj = s
			}
		case models.KindMolecularFamily:
			if m := a.Dataset.MolFamByID(id); m != nil {
				obj = m
			}
		default:
			return nil, fmt.Errorf("objektart %s wird nicht unterstützt", kind)
		}
		if obj == nil {
			return nil, fmt.Errorf("%s mit id %d nicht im datensatz", kind, id)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}
