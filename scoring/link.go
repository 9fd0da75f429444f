package scoring

import (
	"fmt"
	"sort"

	"github.com/louwenjjr/nplinker/models"
)

// ObjectLink ist eine einzelne bewertete Verknüpfung zwischen einem
// Quell- und einem Zielobjekt. Mehrere Methoden können Payloads zum
// selben Link beitragen; die gemeinsamen Strains stehen bei der
// Konstruktion fest.
type ObjectLink struct {
	source        models.Object
	target        models.Object
	sharedStrains []*models.Strain
	methodData    map[Method]any
}

// NewObjectLink erstellt einen Link mit dem Payload der erzeugenden
// Methode. sharedStrains darf nil sein; der Slice wird pro Instanz frisch
// alloziert.
func NewObjectLink(source, target models.Object, method Method, data any, sharedStrains []*models.Strain) *ObjectLink {
	l := &ObjectLink{
		source:        source,
		target:        target,
		sharedStrains: make([]*models.Strain, len(sharedStrains)),
		methodData:    make(map[Method]any),
	}
	copy(l.sharedStrains, sharedStrains)
	if method != nil {
		l.methodData[method] = data
	}
	return l
}

// Source gibt das Quellobjekt zurück.
func (l *ObjectLink) Source() models.Object { return l.source }

// Target gibt das Zielobjekt zurück.
func (l *ObjectLink) Target() models.Object { return l.target }

// SharedStrains gibt die bei der Konstruktion festgelegte Menge
// gemeinsamer Strains zurück.
func (l *ObjectLink) SharedStrains() []*models.Strain { return l.sharedStrains }

// Merge übernimmt die Methoden-Payloads des anderen Links. Payloads
// derselben Methode werden überschrieben. Gibt den Empfänger zurück.
func (l *ObjectLink) Merge(other *ObjectLink) *ObjectLink {
	if other == nil {
		return l
	}
	for method, data := range other.methodData {
		l.methodData[method] = data
	}
	return l
}

// SetData setzt den Payload einer Methode.
func (l *ObjectLink) SetData(method Method, data any) {
	l.methodData[method] = data
}

// Data gibt den Payload einer Methode zurück. Fehlt die Methode, wird
// ErrNoMethodData gewrappt zurückgegeben.
func (l *ObjectLink) Data(method Method) (any, error) {
	data, ok := l.methodData[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMethodData, method.Name())
	}
	return data, nil
}

// DeleteData entfernt den Payload einer Methode.
func (l *ObjectLink) DeleteData(method Method) {
	delete(l.methodData, method)
}

// HasMethod prüft, ob die Methode zu diesem Link beigetragen hat.
func (l *ObjectLink) HasMethod(method Method) bool {
	_, ok := l.methodData[method]
	return ok
}

// Methods gibt die beitragenden Methoden zurück, sortiert nach Name.
func (l *ObjectLink) Methods() []Method {
	out := make([]Method, 0, len(l.methodData))
	for method := range l.methodData {
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// MethodCount gibt die Anzahl der beitragenden Methoden zurück.
func (l *ObjectLink) MethodCount() int { return len(l.methodData) }

func (l *ObjectLink) String() string {
	return fmt.Sprintf("ObjectLink(source=%s, target=%s, #methods=%d)", l.source, l.target, len(l.methodData))
}
