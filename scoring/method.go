// Package scoring definiert das Interface für Scoring-Methoden sowie die
// Strukturen, in denen deren Ergebnisse gesammelt und kombiniert werden
// (ObjectLink, LinkCollection).
package scoring

import (
	"errors"
	"fmt"

	"github.com/louwenjjr/nplinker/dataset"
	"github.com/louwenjjr/nplinker/models"
)

// ErrMethodExists wird zurückgegeben, wenn dieselbe Methode mehrfach zu
// einer LinkCollection beitragen will.
var ErrMethodExists = errors.New("scoring method already added")

// ErrNoMethodData wird zurückgegeben, wenn ein Link keine Daten für die
// angefragte Methode trägt.
var ErrNoMethodData = errors.New("no data for scoring method")

// Method ist das Interface, das jede Scoring-Methode (z.B. Metcalf,
// Rosetta) implementieren muss.
type Method interface {
	// Name gibt den eindeutigen Namen der Methode zurück (z.B. "metcalf").
	Name() string

	// Setup führt die einmalige Initialisierung gegen den Analyse-Kontext
	// aus. Wiederholte Aufrufe sind idempotent.
	Setup(ds *dataset.Dataset) error

	// GetLinks berechnet Links für die übergebenen Objekte und trägt sie
	// in die Collection ein. Die Objekte müssen homogen einer Art sein.
	GetLinks(objects []models.Object, coll *LinkCollection) (*LinkCollection, error)

	// FormatData rendert den Payload eines Links dieser Methode für die
	// Anzeige.
	FormatData(data any) string

	// Sort ordnet Links dieser Methode (z.B. nach Score).
	Sort(links []*ObjectLink, reverse bool) []*ObjectLink
}

// HomogeneousKind prüft, dass alle Objekte dieselbe Art haben, und gibt
// diese zurück. Leere oder gemischte Eingaben sind ein Fehler.
func HomogeneousKind(objects []models.Object) (models.ObjectKind, error) {
	if len(objects) == 0 {
		return 0, fmt.Errorf("leere objektliste übergeben")
	}
	kind := objects[0].Kind()
	for _, obj := range objects[1:] {
		if obj.Kind() != kind {
			return 0, fmt.Errorf("gemischte objektarten in der eingabe: %s und %s", kind, obj.Kind())
		}
	}
	return kind, nil
}
