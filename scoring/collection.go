package scoring

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/models"
)

// LinkCollection sammelt die Ergebnisse mehrerer Scoring-Methoden und
// kombiniert sie im AND- oder OR-Modus. Der Modus steht für die Lebenszeit
// der Collection fest. Links sind über das Paar (Quelle, Ziel) adressiert.
type LinkCollection struct {
	andMode bool
	logger  *zap.Logger
	methods []Method
	links   map[models.Object]map[models.Object]*ObjectLink
}

// NewLinkCollection erstellt eine leere Collection. logger darf nil sein.
func NewLinkCollection(andMode bool, logger *zap.Logger) *LinkCollection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkCollection{
		andMode: andMode,
		logger:  logger,
		links:   make(map[models.Object]map[models.Object]*ObjectLink),
	}
}

// AndMode meldet, ob Ergebnisse per Schnittmenge kombiniert werden.
func (c *LinkCollection) AndMode() bool { return c.andMode }

// AddFromMethod trägt die Ergebnisse einer Methode ein. Die erste Methode
// wird unverändert übernommen, weitere werden je nach Modus vereinigt
// (OR) oder geschnitten (AND). Eine Methode darf nur einmal beitragen.
func (c *LinkCollection) AddFromMethod(method Method, results map[models.Object]map[models.Object]*ObjectLink) error {
	if c.hasMethod(method) {
		return fmt.Errorf("%w: %s", ErrMethodExists, method.Name())
	}
	if results == nil {
		results = make(map[models.Object]map[models.Object]*ObjectLink)
	}

	if len(c.methods) == 0 {
		c.links = results
	} else if c.andMode {
		c.mergeAnd(results)
	} else {
		c.mergeOr(results)
	}

	c.methods = append(c.methods, method)
	c.logger.Debug("Methoden-Ergebnisse eingetragen",
		zap.String("method", method.Name()),
		zap.Bool("and_mode", c.andMode),
		zap.Int("sources", len(c.links)),
		zap.Int("links", c.Len()))
	return nil
}

// mergeOr vereinigt: fehlende Quellen werden eingefügt, neue Ziele
// ergänzt, gemeinsame Paare gemerged.
func (c *LinkCollection) mergeOr(results map[models.Object]map[models.Object]*ObjectLink) {
	for source, targets := range results {
		existing, ok := c.links[source]
		if !ok {
			c.links[source] = targets
			continue
		}
		for target, link := range targets {
			if el, ok := existing[target]; ok {
				el.Merge(link)
			} else {
				existing[target] = link
			}
		}
	}
}

// mergeAnd schneidet: nur Quellen in beiden Ergebnismengen überleben, pro
// Quelle nur gemeinsame Ziele. Quellen ohne verbleibende Ziele fallen weg.
func (c *LinkCollection) mergeAnd(results map[models.Object]map[models.Object]*ObjectLink) {
	merged := make(map[models.Object]map[models.Object]*ObjectLink)
	for source, targets := range results {
		existing, ok := c.links[source]
		if !ok {
			continue
		}
		kept := make(map[models.Object]*ObjectLink)
		for target, link := range targets {
			if el, ok := existing[target]; ok {
				kept[target] = el.Merge(link)
			}
		}
		if len(kept) > 0 {
			merged[source] = kept
		}
	}
	c.links = merged
}

// FilterNoSharedStrains entfernt Links ohne gemeinsame Strains.
func (c *LinkCollection) FilterNoSharedStrains() {
	c.FilterLinks(func(l *ObjectLink) bool { return len(l.SharedStrains()) > 0 }, nil)
}

// FilterSources behält nur Quellen, für die keep true liefert.
func (c *LinkCollection) FilterSources(keep func(models.Object) bool) {
	before := len(c.links)
	for source := range c.links {
		if !keep(source) {
			delete(c.links, source)
		}
	}
	c.logger.Debug("FilterSources angewendet", zap.Int("before", before), zap.Int("after", len(c.links)))
}

// FilterTargets behält nur Ziele, für die keep true liefert. sources
// schränkt den Filter auf die genannten Quellen ein, nil heißt alle.
func (c *LinkCollection) FilterTargets(keep func(models.Object) bool, sources []models.Object) {
	before := c.Len()
	c.applyToSources(sources, func(targets map[models.Object]*ObjectLink) {
		for target := range targets {
			if !keep(target) {
				delete(targets, target)
			}
		}
	})
	c.dropEmptySources()
	c.logger.Debug("FilterTargets angewendet", zap.Int("before", before), zap.Int("after", c.Len()))
}

// FilterLinks behält nur Links, für die keep true liefert. sources
// schränkt den Filter auf die genannten Quellen ein, nil heißt alle.
func (c *LinkCollection) FilterLinks(keep func(*ObjectLink) bool, sources []models.Object) {
	before := c.Len()
	c.applyToSources(sources, func(targets map[models.Object]*ObjectLink) {
		for target, link := range targets {
			if !keep(link) {
				delete(targets, target)
			}
		}
	})
	c.dropEmptySources()
	c.logger.Debug("FilterLinks angewendet", zap.Int("before", before), zap.Int("after", c.Len()))
}

func (c *LinkCollection) applyToSources(sources []models.Object, fn func(map[models.Object]*ObjectLink)) {
	if sources == nil {
		for _, targets := range c.links {
			fn(targets)
		}
		return
	}
	for _, source := range sources {
		if targets, ok := c.links[source]; ok {
			fn(targets)
		}
	}
}

func (c *LinkCollection) dropEmptySources() {
	for source, targets := range c.links {
		if len(targets) == 0 {
			delete(c.links, source)
		}
	}
}

// SortedLinks gibt die Links einer Quelle zurück, geordnet durch die
// Sortierung der Methode. Mit strict=false werden Links ohne Beitrag der
// Methode unsortiert angehängt.
func (c *LinkCollection) SortedLinks(method Method, source models.Object, reverse, strict bool) []*ObjectLink {
	var withMethod, rest []*ObjectLink
	for _, link := range c.links[source] {
		if link.HasMethod(method) {
			withMethod = append(withMethod, link)
		} else {
			rest = append(rest, link)
		}
	}
	sorted := method.Sort(withMethod, reverse)
	if !strict {
		sorted = append(sorted, rest...)
	}
	return sorted
}

// AllTargets gibt die deduplizierte Menge aller Zielobjekte zurück.
func (c *LinkCollection) AllTargets() []models.Object {
	seen := make(map[models.Object]struct{})
	var out []models.Object
	for _, targets := range c.links {
		for target := range targets {
			if _, ok := seen[target]; !ok {
				seen[target] = struct{}{}
				out = append(out, target)
			}
		}
	}
	sortObjects(out)
	return out
}

// Methods gibt die beitragenden Methoden in Eintragsreihenfolge zurück.
func (c *LinkCollection) Methods() []Method { return c.methods }

// MethodCount gibt die Anzahl beitragender Methoden zurück.
func (c *LinkCollection) MethodCount() int { return len(c.methods) }

// Sources gibt alle Quellobjekte sortiert nach ID zurück.
func (c *LinkCollection) Sources() []models.Object {
	out := make([]models.Object, 0, len(c.links))
	for source := range c.links {
		out = append(out, source)
	}
	sortObjects(out)
	return out
}

// Links gibt die rohe Quelle→Ziel→Link-Struktur zurück.
func (c *LinkCollection) Links() map[models.Object]map[models.Object]*ObjectLink {
	return c.links
}

// LinksForSource gibt die Ziel→Link-Map einer Quelle zurück (nil, wenn
// die Quelle keine Links hat).
func (c *LinkCollection) LinksForSource(source models.Object) map[models.Object]*ObjectLink {
	return c.links[source]
}

// SourceCount gibt die Anzahl der Quellen zurück.
func (c *LinkCollection) SourceCount() int { return len(c.links) }

// Len gibt die Gesamtzahl der Links zurück.
func (c *LinkCollection) Len() int {
	n := 0
	for _, targets := range c.links {
		n += len(targets)
	}
	return n
}

func (c *LinkCollection) hasMethod(method Method) bool {
	for _, m := range c.methods {
		if m == method {
			return true
		}
	}
	return false
}

func sortObjects(objects []models.Object) {
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].Kind() != objects[j].Kind() {
			return objects[i].Kind() < objects[j].Kind()
		}
		return objects[i].ObjectID() < objects[j].ObjectID()
	})
}
