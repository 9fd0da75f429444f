package models

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
)

// Strain repräsentiert einen mikrobiellen Stamm mit seinem primären
// Bezeichner und allen bekannten Aliassen (z.B. Genom-Accessions,
// GNPS-Dateinamen).
type Strain struct {
	ID      string `json:"id"`
	aliases map[string]struct{}
}

// NewStrain erstellt einen neuen Strain ohne Aliasse.
func NewStrain(id string) *Strain {
	return &Strain{
		ID:      id,
		aliases: make(map[string]struct{}),
	}
}

// AddAlias registriert einen weiteren Namen für diesen Stamm.
func (s *Strain) AddAlias(alias string) {
	if alias == "" || alias == s.ID {
		return
	}
	s.aliases[alias] = struct{}{}
}

// Aliases gibt alle Aliasse sortiert zurück.
func (s *Strain) Aliases() []string {
	out := make([]string, 0, len(s.aliases))
	for a := range s.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Names gibt den primären Bezeichner plus alle Aliasse zurück.
func (s *Strain) Names() []string {
	return append([]string{s.ID}, s.Aliases()...)
}

func (s *Strain) String() string {
	return fmt.Sprintf("Strain(%s) [%d aliases]", s.ID, len(s.aliases))
}

// StrainCollection verwaltet eine Menge von Strains mit Lookup über
// primäre Bezeichner und Aliasse.
type StrainCollection struct {
	strains []*Strain
	lookup  map[string]*Strain
}

// NewStrainCollection erstellt eine leere Collection.
func NewStrainCollection() *StrainCollection {
	return &StrainCollection{
		lookup: make(map[string]*Strain),
	}
}

// Add fügt einen Strain hinzu. Existiert bereits ein Strain mit derselben
// ID, werden stattdessen die Aliasse zusammengeführt.
func (c *StrainCollection) Add(s *Strain) {
	if existing, ok := c.lookup[s.ID]; ok {
		if existing == s {
			return
		}
		for _, alias := range s.Aliases() {
			existing.AddAlias(alias)
			c.lookup[alias] = existing
		}
		return
	}
	c.strains = append(c.strains, s)
	for _, name := range s.Names() {
		c.lookup[name] = s
	}
}

// Lookup sucht einen Strain über ID oder Alias. Gibt nil zurück, wenn der
// Name unbekannt ist.
func (c *StrainCollection) Lookup(name string) *Strain {
	return c.lookup[name]
}

// Contains prüft, ob der Strain (über seine ID) enthalten ist.
func (c *StrainCollection) Contains(s *Strain) bool {
	if s == nil {
		return false
	}
	_, ok := c.lookup[s.ID]
	return ok
}

// Strains gibt die enthaltenen Strains in Einfügereihenfolge zurück.
func (c *StrainCollection) Strains() []*Strain {
	return c.strains
}

// Len gibt die Anzahl der Strains zurück.
func (c *StrainCollection) Len() int {
	return len(c.strains)
}

func (c *StrainCollection) String() string {
	return fmt.Sprintf("StrainCollection(n=%d)", len(c.strains))
}

// AddFromFile lädt Strain-Mappings aus einer CSV-Datei. Jede Zeile enthält
// die primäre ID gefolgt von beliebig vielen Aliassen.
func (c *StrainCollection) AddFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("strain mappings öffnen fehlgeschlagen: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // variable Alias-Anzahl pro Zeile
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("strain mappings lesen fehlgeschlagen: %w", err)
	}

	for _, record := range records {
		if len(record) == 0 || record[0] == "" {
			continue
		}
		strain := NewStrain(record[0])
		for _, alias := range record[1:] {
			strain.AddAlias(alias)
		}
		c.Add(strain)
	}
	return nil
}

// SaveToFile schreibt die Collection im strain_mappings.csv-Format.
func (c *StrainCollection) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("strain mappings schreiben fehlgeschlagen: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	for _, strain := range c.strains {
		if err := writer.Write(strain.Names()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
