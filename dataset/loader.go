package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/config"
	"github.com/louwenjjr/nplinker/models"
)

// Load lädt einen lokalen Datensatz aus dem DataDir:
//
//	strain_mappings.csv            — Strain-IDs und Aliasse
//	metabolomics/spectra.mgf       — MS2-Spektren
//	metabolomics/clusterinfo.tsv   — Spektrum → Familie + Strain-Labels
//	metabolomics/library.mgf       — Referenzbibliothek (optional)
//	genomics/clusters.tsv          — BGC → GCF + Strain + MiBIG-Treffer
func Load(cfg *config.Config, logger *zap.Logger) (*Dataset, error) {
	log := logger.With(zap.String("data_dir", cfg.DataDir))
	log.Info("Lade Datensatz.")

	strains := models.NewStrainCollection()
	if err := strains.AddFromFile(cfg.StrainMappingsPath()); err != nil {
		return nil, err
	}
	log.Info("Strain-Mappings geladen", zap.Int("strains", strains.Len()))

	spectra, err := loadSpectra(filepath.Join(cfg.DataDir, "metabolomics", "spectra.mgf"))
	if err != nil {
		return nil, err
	}
	log.Info("Spektren geladen", zap.Int("spectra", len(spectra)))

	molfams, err := loadClusterInfo(filepath.Join(cfg.DataDir, "metabolomics", "clusterinfo.tsv"), spectra, strains, log)
	if err != nil {
		return nil, err
	}
	log.Info("Molecular Families aufgebaut", zap.Int("molfams", len(molfams)))

	bgcs, gcfs, err := loadClusters(filepath.Join(cfg.DataDir, "genomics", "clusters.tsv"), strains, log)
	if err != nil {
		return nil, err
	}
	log.Info("Gencluster geladen", zap.Int("bgcs", len(bgcs)), zap.Int("gcfs", len(gcfs)))

	library, err := loadLibrary(filepath.Join(cfg.DataDir, "metabolomics", "library.mgf"))
	if err != nil {
		return nil, err
	}
	if len(library) > 0 {
		log.Info("Referenzbibliothek geladen", zap.Int("entries", len(library)))
	}

	ds := New(cfg, bgcs, gcfs, spectra, molfams, strains)
	ds.Library = library
	log.Info("Datensatz vollständig geladen", zap.String("dataset", ds.String()))
	return ds, nil
}

// mgfRecord ist ein roher Eintrag aus einer MGF-Datei.
type mgfRecord struct {
	headers map[string]string
	peaks   []models.Peak
}

func parseMGF(path string) ([]mgfRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []mgfRecord
	var cur *mgfRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "BEGIN IONS":
			cur = &mgfRecord{headers: make(map[string]string)}
		case line == "END IONS":
			if cur != nil {
				records = append(records, *cur)
			}
			cur = nil
		case cur == nil:
			continue
		case strings.Contains(line, "="):
			parts := strings.SplitN(line, "=", 2)
			cur.headers[strings.ToUpper(parts[0])] = parts[1]
		default:
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			mz, err1 := strconv.ParseFloat(fields[0], 64)
			intensity, err2 := strconv.ParseFloat(fields[1], 64)
			if err1 != nil || err2 != nil {
				continue
			}
			cur.peaks = append(cur.peaks, models.Peak{MZ: mz, Intensity: intensity})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("MGF lesen fehlgeschlagen: %w", err)
	}
	return records, nil
}

// pepmass liest den Precursor aus dem PEPMASS-Header (erster Wert, der
// zweite ist eine optionale Intensität).
func pepmass(headers map[string]string) float64 {
	fields := strings.Fields(headers["PEPMASS"])
	if len(fields) == 0 {
		return 0
	}
	v, _ := strconv.ParseFloat(fields[0], 64)
	return v
}

func loadSpectra(path string) ([]*models.Spectrum, error) {
	records, err := parseMGF(path)
	if err != nil {
		return nil, fmt.Errorf("spektren laden fehlgeschlagen: %w", err)
	}

	spectra := make([]*models.Spectrum, 0, len(records))
	for _, rec := range records {
		id, err := strconv.Atoi(rec.headers["SCANS"])
		if err != nil {
			return nil, fmt.Errorf("spektrum ohne gültige SCANS-ID: %w", err)
		}
		spec := models.NewSpectrum(id, pepmass(rec.headers))
		spec.Peaks = rec.peaks
		spectra = append(spectra, spec)
	}
	return spectra, nil
}

// loadLibrary lädt die optionale Referenzbibliothek. Eine fehlende Datei
// ist kein Fehler.
func loadLibrary(path string) ([]*models.ReferenceSpectrum, error) {
	records, err := parseMGF(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("referenzbibliothek laden fehlgeschlagen: %w", err)
	}

	var library []*models.ReferenceSpectrum
	for _, rec := range records {
		mibigID := rec.headers["MIBIGACCESSION"]
		if mibigID == "" {
			continue // Einträge ohne MiBIG-Bezug sind für Rosetta nutzlos
		}
		library = append(library, &models.ReferenceSpectrum{
			CompoundName: rec.headers["NAME"],
			MiBIGID:      mibigID,
			PrecursorMZ:  pepmass(rec.headers),
			Peaks:        rec.peaks,
		})
	}
	return library, nil
}

// loadClusterInfo verknüpft Spektren mit Familien und Strains. Format pro
// Zeile: spectrum_id <tab> family_id <tab> strain;strain;...
// Eine family_id von -1 markiert GNPS-Singletons, die jeweils eine eigene
// Familie bekommen.
func loadClusterInfo(path string, spectra []*models.Spectrum, strains *models.StrainCollection, log *zap.Logger) ([]*models.MolecularFamily, error) {
	rows, err := readTSV(path)
	if err != nil {
		return nil, fmt.Errorf("clusterinfo laden fehlgeschlagen: %w", err)
	}

	specByID := make(map[int]*models.Spectrum, len(spectra))
	for _, s := range spectra {
		specByID[s.ID] = s
	}

	famSpectra := make(map[int][]*models.Spectrum)
	var singletons []*models.Spectrum
	maxFamID := 0

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		specID, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("ungültige spektrum-ID %q: %w", row[0], err)
		}
		famID, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("ungültige familien-ID %q: %w", row[1], err)
		}

		spec := specByID[specID]
		if spec == nil {
			log.Warn("clusterinfo verweist auf unbekanntes Spektrum", zap.Int("spectrum_id", specID))
			continue
		}

		if len(row) > 2 {
			for _, label := range strings.Split(row[2], ";") {
				label = strings.TrimSpace(label)
				if label == "" {
					continue
				}
				strain := strains.Lookup(label)
				if strain == nil {
					log.Warn("Unbekanntes Strain-Label im clusterinfo", zap.String("label", label))
					continue
				}
				spec.Strains.Add(strain)
			}
		}

		if famID == -1 {
			singletons = append(singletons, spec)
			continue
		}
		famSpectra[famID] = append(famSpectra[famID], spec)
		if famID > maxFamID {
			maxFamID = famID
		}
	}

	famIDs := make([]int, 0, len(famSpectra))
	for id := range famSpectra {
		famIDs = append(famIDs, id)
	}
	sort.Ints(famIDs)

	var molfams []*models.MolecularFamily
	for _, id := range famIDs {
		fam := models.NewMolecularFamily(id)
		for _, spec := range famSpectra[id] {
			fam.AddSpectrum(spec)
		}
		molfams = append(molfams, fam)
	}

	// Singletons erhalten fortlaufende IDs oberhalb der echten Familien.
	nextID := maxFamID + 1
	for _, spec := range singletons {
		fam := models.NewMolecularFamily(nextID)
		fam.AddSpectrum(spec)
		molfams = append(molfams, fam)
		nextID++
	}

	return molfams, nil
}

// loadClusters lädt BGCs und ihre GCF-Zuordnung. Format pro Zeile:
// bgc_name <tab> gcf_id <tab> strain_label [<tab> MIBIG:percent;...]
func loadClusters(path string, strains *models.StrainCollection, log *zap.Logger) ([]*models.BGC, []*models.GCF, error) {
	rows, err := readTSV(path)
	if err != nil {
		return nil, nil, fmt.Errorf("gencluster laden fehlgeschlagen: %w", err)
	}

	var bgcs []*models.BGC
	gcfByID := make(map[int]*models.GCF)

	for i, row := range rows {
		if len(row) < 3 {
			continue
		}
		gcfID, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, nil, fmt.Errorf("ungültige GCF-ID %q: %w", row[1], err)
		}

		bgc := models.NewBGC(i, row[0])
		strain := strains.Lookup(strings.TrimSpace(row[2]))
		if strain == nil {
			log.Warn("Unbekanntes Strain-Label für BGC", zap.String("bgc", row[0]), zap.String("label", row[2]))
		} else {
			bgc.Strains.Add(strain)
		}

		if len(row) > 3 && row[3] != "" {
			for _, hit := range strings.Split(row[3], ";") {
				parts := strings.SplitN(hit, ":", 2)
				if len(parts) != 2 {
					continue
				}
				percent, err := strconv.ParseFloat(parts[1], 64)
				if err != nil {
					continue
				}
				bgc.AddKnownClusterHit(strings.TrimSpace(parts[0]), percent/100)
			}
		}

		gcf, ok := gcfByID[gcfID]
		if !ok {
			gcf = models.NewGCF(gcfID)
			gcfByID[gcfID] = gcf
		}
		gcf.AddBGC(bgc)
		bgcs = append(bgcs, bgc)
	}

	gcfIDs := make([]int, 0, len(gcfByID))
	for id := range gcfByID {
		gcfIDs = append(gcfIDs, id)
	}
	sort.Ints(gcfIDs)
	gcfs := make([]*models.GCF, 0, len(gcfIDs))
	for _, id := range gcfIDs {
		gcfs = append(gcfs, gcfByID[id])
	}

	return bgcs, gcfs, nil
}

func readTSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows, scanner.Err()
}
