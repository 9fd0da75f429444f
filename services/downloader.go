package services

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/config"
	"github.com/louwenjjr/nplinker/models"
)

// CustomTransport fügt jeder Anfrage einen User-Agent-Header hinzu.
type CustomTransport struct {
	Transport http.RoundTripper
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	return t.Transport.RoundTrip(req)
}

// httpClient wird für alle externen HTTP-Anfragen in diesem Service verwendet.
var httpClient = &http.Client{
	Timeout: 10 * time.Minute,
	Transport: &CustomTransport{
		Transport: http.DefaultTransport,
	},
}

const (
	gnpsDownloadURL    = "https://gnps.ucsd.edu/ProteoSAFe/DownloadResult?task=%s&view=download_clustered_spectra"
	antismashDBPageURL = "https://antismash-db.secondarymetabolites.org/output/%s/"
	antismashDBFileURL = "https://antismash-db.secondarymetabolites.org/output/%s/%s"
	mibigJSONURL       = "https://dl.secondarymetabolites.org/mibig/mibig_json_%s.tar.gz"
)

// antismashLinkRe findet den ersten Download-Link auf der
// antiSMASH-DB-Ergebnisseite eines Genoms.
var antismashLinkRe = regexp.MustCompile(`(?s)id="downloadoptions".*?href="([^"]+)"`)

// platformRecord ist ein Projekteintrag der Paired-Omics-Plattform,
// reduziert auf die hier benötigten Felder.
type platformRecord struct {
	ID      string          `json:"_id"`
	Project platformProject `json:"project"`
}

type platformProject struct {
	Metabolomics struct {
		Project struct {
			GNPSMassIVEID    string `json:"GNPSMassIVE_ID"`
			MolecularNetwork string `json:"molecular_network"`
		} `json:"project"`
	} `json:"metabolomics"`
	Genomes               []genomeRecord         `json:"genomes"`
	GenomeMetabolomeLinks []genomeMetabolomeLink `json:"genome_metabolome_links"`
}

type genomeRecord struct {
	Label    string `json:"genome_label"`
	GenomeID struct {
		RefSeqAccession  string `json:"RefSeq_accession"`
		GenBankAccession string `json:"GenBank_accession"`
	} `json:"genome_ID"`
}

type genomeMetabolomeLink struct {
	GenomeLabel      string `json:"genome_label"`
	MetabolomicsFile string `json:"metabolomics_file"`
}

// DownloadService lädt ein komplettes Paired-Omics-Projekt (GNPS-Archiv,
// antiSMASH-Ergebnisse, MiBIG-Referenzdaten) herunter und legt die
// Datensatz-Struktur unter DataDir an.
type DownloadService struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewDownloadService erstellt eine neue Instanz des DownloadService.
func NewDownloadService(cfg *config.Config, logger *zap.Logger) *DownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadService{Config: cfg, Logger: logger}
}

func (d *DownloadService) downloadDir() string {
	return filepath.Join(d.Config.DataDir, "downloads")
}

// Run führt den kompletten Download-Prozess für das konfigurierte
// Projekt aus. Bereits heruntergeladene Archive werden wiederverwendet.
func (d *DownloadService) Run(ctx context.Context) error {
	if d.Config.DatasetID == "" {
		return fmt.Errorf("DATASET_ID ist nicht gesetzt")
	}

	log := d.Logger.With(zap.String("dataset_id", d.Config.DatasetID))
	log.Info("Starte Download des Paired-Omics-Projekts.")

	if err := os.MkdirAll(d.downloadDir(), 0o755); err != nil {
		return err
	}

	// 1. Projektdokument von der Plattform holen
	record, err := d.fetchProject(ctx)
	if err != nil {
		return err
	}
	log.Info("Projekt auf der Plattform gefunden",
		zap.String("platform_id", record.ID),
		zap.String("gnps_task", record.Project.Metabolomics.Project.MolecularNetwork),
		zap.Int("genomes", len(record.Project.Genomes)))

	// 2. Metabolomik-Archiv von GNPS laden und entpacken
	if err := d.downloadMetabolomics(ctx, record.Project.Metabolomics.Project.MolecularNetwork); err != nil {
		return fmt.Errorf("metabolomik-download fehlgeschlagen: %w", err)
	}

	// 3. antiSMASH-Ergebnisse je Genom parallel laden
	found, err := d.downloadGenomics(ctx, record.Project.Genomes)
	if err != nil {
		return err
	}
	if found == 0 {
		return fmt.Errorf("keine antismash-daten für das projekt gefunden")
	}

	// 4. MiBIG-Referenzdaten laden
	if err := d.downloadMiBIG(ctx); err != nil {
		return fmt.Errorf("mibig-download fehlgeschlagen: %w", err)
	}

	// 5. Strain-Mappings generieren
	if err := d.generateStrainMappings(record.Project); err != nil {
		return fmt.Errorf("strain-mappings generieren fehlgeschlagen: %w", err)
	}

	log.Info("Download abgeschlossen.", zap.String("data_dir", d.Config.DataDir))
	return nil
}

// fetchProject lädt die Projektliste der Plattform und sucht das Projekt
// mit der konfigurierten GNPS-MassIVE-ID.
func (d *DownloadService) fetchProject(ctx context.Context) (*platformRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Config.PlatformAPIURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plattform nicht erreichbar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plattform antwortete mit status %s", resp.Status)
	}

	var payload struct {
		Data []platformRecord `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("projektliste nicht lesbar: %w", err)
	}
	d.Logger.Debug("Projektliste geladen", zap.Int("projects", len(payload.Data)))

	for i := range payload.Data {
		record := &payload.Data[i]
		if record.Project.Metabolomics.Project.GNPSMassIVEID != d.Config.DatasetID {
			continue
		}
		if record.Project.Metabolomics.Project.MolecularNetwork == "" {
			return nil, fmt.Errorf("projekt %s hat keine GNPS-Task-ID", d.Config.DatasetID)
		}

		// Projektdokument für spätere Läufe lokal ablegen
		if data, err := json.MarshalIndent(record, "", "  "); err == nil {
			if err := os.WriteFile(filepath.Join(d.Config.DataDir, "project.json"), data, 0o644); err != nil {
				d.Logger.Warn("Projektdokument konnte nicht gespeichert werden", zap.Error(err))
			}
		}
		return record, nil
	}
	return nil, fmt.Errorf("kein projekt mit GNPS-MassIVE-ID %s auf der plattform", d.Config.DatasetID)
}

// downloadMetabolomics lädt das GNPS-Ergebnisarchiv (erfordert einen POST)
// und entpackt Spektren-MGF und Clusterinfo in das Metabolomik-Verzeichnis.
func (d *DownloadService) downloadMetabolomics(ctx context.Context, gnpsTaskID string) error {
	zipPath := filepath.Join(d.downloadDir(), "metabolomics_data.zip")
	url := fmt.Sprintf(gnpsDownloadURL, gnpsTaskID)
	if err := d.downloadToFile(ctx, http.MethodPost, url, zipPath); err != nil {
		return err
	}

	metDir := filepath.Join(d.Config.DataDir, "metabolomics")
	if err := os.MkdirAll(metDir, 0o755); err != nil {
		return err
	}

	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("gnps-archiv nicht lesbar: %w", err)
	}
	defer archive.Close()

	gnpsClusterInfo := ""
	for _, member := range archive.File {
		name := member.Name
		switch {
		case strings.HasSuffix(name, ".mgf"):
			if err := extractZipMember(member, filepath.Join(metDir, "spectra.mgf")); err != nil {
				return err
			}
			d.Logger.Info("Spektren-MGF entpackt", zap.String("member", name))
		case strings.HasPrefix(name, "clusterinfosummarygroup") && strings.HasSuffix(name, ".tsv"):
			gnpsClusterInfo = filepath.Join(metDir, "clusterinfo_gnps.tsv")
			if err := extractZipMember(member, gnpsClusterInfo); err != nil {
				return err
			}
			d.Logger.Info("GNPS-Clusterinfo entpackt", zap.String("member", name))
		case strings.HasPrefix(name, "networkedges_selfloop") && !member.FileInfo().IsDir():
			if err := extractZipMember(member, filepath.Join(metDir, "networkedges.pairsinfo")); err != nil {
				return err
			}
		}
	}

	if gnpsClusterInfo == "" {
		return fmt.Errorf("gnps-archiv enthält keine clusterinfo-datei")
	}
	return d.convertClusterInfo(gnpsClusterInfo, filepath.Join(metDir, "clusterinfo.tsv"))
}

// convertClusterInfo übersetzt die GNPS-Clusterinfo (Spalten "cluster index",
// "componentindex" und "UniqueFileSources") in das kompakte
// clusterinfo.tsv-Format des Loaders.
func (d *DownloadService) convertClusterInfo(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		return fmt.Errorf("clusterinfo %s ist leer", src)
	}

	header := strings.Split(scanner.Text(), "\t")
	clusterIdx, componentIdx, sourcesIdx := -1, -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "cluster index":
			clusterIdx = i
		case "componentindex":
			componentIdx = i
		case "UniqueFileSources":
			sourcesIdx = i
		}
	}
	if clusterIdx < 0 || componentIdx < 0 || sourcesIdx < 0 {
		return fmt.Errorf("clusterinfo %s hat ein unbekanntes spaltenformat", src)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	rows := 0
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= sourcesIdx || len(fields) <= clusterIdx || len(fields) <= componentIdx {
			continue
		}
		// GNPS trennt die Quelldateien mit "|", der Loader erwartet ";"
		strains := strings.ReplaceAll(fields[sourcesIdx], "|", ";")
		fmt.Fprintf(w, "%s\t%s\t%s\n", fields[clusterIdx], fields[componentIdx], strains)
		rows++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	d.Logger.Info("Clusterinfo konvertiert", zap.String("file", dst), zap.Int("rows", rows))
	return w.Flush()
}

// downloadGenomics lädt die antiSMASH-Ergebnisse aller Genome mit
// RefSeq-Accession parallel herunter. Genome, für die die antiSMASH-DB
// nichts liefert, werden in missing_antismash.txt vermerkt und bei
// späteren Läufen übersprungen.
func (d *DownloadService) downloadGenomics(ctx context.Context, genomes []genomeRecord) (int, error) {
	missingPath := filepath.Join(d.downloadDir(), "missing_antismash.txt")
	missing := make(map[string]struct{})
	if data, err := os.ReadFile(missingPath); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				missing[line] = struct{}{}
			}
		}
	}
	d.Logger.Debug("Bekannte Genome ohne antiSMASH-Daten", zap.Int("count", len(missing)))

	var mu sync.Mutex
	var wg sync.WaitGroup
	found := 0
	semaphore := make(chan struct{}, 5) // Limit auf 5 parallele Downloads

	for _, genome := range genomes {
		accession := trimAccessionVersion(genome.GenomeID.RefSeqAccession)
		if accession == "" {
			d.Logger.Warn("Genom ohne RefSeq-Accession wird übersprungen",
				zap.String("genome_label", genome.Label),
				zap.String("genbank", genome.GenomeID.GenBankAccession))
			continue
		}

		mu.Lock()
		_, skip := missing[accession]
		mu.Unlock()
		if skip {
			d.Logger.Warn("Accession als fehlend bekannt, kein erneuter Versuch", zap.String("accession", accession))
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(accession string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			ok, err := d.downloadAntismash(ctx, accession)
			if err != nil {
				d.Logger.Warn("antiSMASH-Download fehlgeschlagen", zap.String("accession", accession), zap.Error(err))
			}

			mu.Lock()
			if ok {
				found++
			} else {
				missing[accession] = struct{}{}
			}
			mu.Unlock()
		}(accession)
	}
	wg.Wait()

	var lines []string
	for accession := range missing {
		lines = append(lines, accession)
	}
	if err := os.WriteFile(missingPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		d.Logger.Warn("missing_antismash.txt konnte nicht geschrieben werden", zap.Error(err))
	}

	d.Logger.Info("Genomik-Download abgeschlossen",
		zap.Int("found", found), zap.Int("genomes", len(genomes)))
	return found, nil
}

// downloadAntismash lädt das antiSMASH-DB-Archiv einer Accession und
// entpackt .gbk-Dateien sowie die knownclusterblast-Ergebnisse.
func (d *DownloadService) downloadAntismash(ctx context.Context, accession string) (bool, error) {
	zipPath := filepath.Join(d.downloadDir(), accession+".zip")

	if _, err := os.Stat(zipPath); err != nil {
		// Ergebnisseite nach dem Archivnamen durchsuchen
		pageURL := fmt.Sprintf(antismashDBPageURL, accession)
		page, err := d.fetchBytes(ctx, http.MethodGet, pageURL)
		if err != nil {
			return false, err
		}
		match := antismashLinkRe.FindSubmatch(page)
		if match == nil {
			d.Logger.Warn("Keine antiSMASH-DB-Ergebnisse für Accession", zap.String("accession", accession))
			return false, nil
		}

		fileURL := fmt.Sprintf(antismashDBFileURL, accession, string(match[1]))
		if err := d.downloadToFile(ctx, http.MethodGet, fileURL, zipPath); err != nil {
			return false, err
		}
	} else {
		d.Logger.Debug("Verwende vorhandenes antiSMASH-Archiv", zap.String("file", zipPath))
	}

	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		// defektes Archiv verwerfen, nächster Lauf lädt neu
		os.Remove(zipPath)
		return false, fmt.Errorf("antismash-archiv %s nicht lesbar: %w", zipPath, err)
	}
	defer archive.Close()

	antismashDir := filepath.Join(d.Config.DataDir, "genomics", "antismash")
	kcPrefix := accession + "/knownclusterblast"
	extracted := 0
	for _, member := range archive.File {
		if member.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(member.Name, ".gbk") && !strings.HasPrefix(member.Name, kcPrefix) {
			continue
		}
		if strings.Contains(member.Name, "..") {
			continue
		}
		dest := filepath.Join(antismashDir, filepath.FromSlash(member.Name))
		if err := extractZipMember(member, dest); err != nil {
			return false, err
		}
		extracted++
	}

	d.Logger.Info("antiSMASH-Daten entpackt",
		zap.String("accession", accession), zap.Int("files", extracted))
	return extracted > 0, nil
}

// downloadMiBIG lädt das MiBIG-JSON-Archiv und entpackt es nach
// genomics/mibig_json.
func (d *DownloadService) downloadMiBIG(ctx context.Context) error {
	version := d.Config.MiBIGVersion
	tarPath := filepath.Join(d.downloadDir(), fmt.Sprintf("mibig_json_%s.tar.gz", version))
	if err := d.downloadToFile(ctx, http.MethodGet, fmt.Sprintf(mibigJSONURL, version), tarPath); err != nil {
		return err
	}

	outDir := filepath.Join(d.Config.DataDir, "genomics", "mibig_json")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	extracted := 0
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break // Ende des Archivs
		}
		if err != nil {
			return err
		}
		if header.Typeflag != tar.TypeReg || !strings.HasSuffix(header.Name, ".json") {
			continue
		}
		// Die 1.4er-Archive liegen flach, neuere in einem Unterverzeichnis.
		dest := filepath.Join(outDir, filepath.Base(header.Name))
		out, err := os.Create(dest)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
		extracted++
	}

	d.Logger.Info("MiBIG-Referenzdaten entpackt",
		zap.String("version", version), zap.Int("files", extracted))
	return nil
}

// generateStrainMappings erzeugt die strain_mappings.csv aus den
// Genom-/Metabolomik-Zuordnungen des Projektdokuments und den entpackten
// antiSMASH-Verzeichnissen. Eine vorhandene Datei bleibt unangetastet.
func (d *DownloadService) generateStrainMappings(project platformProject) error {
	path := d.Config.StrainMappingsPath()
	if _, err := os.Stat(path); err == nil {
		d.Logger.Info("Strain-Mappings existieren bereits", zap.String("file", path))
		return nil
	}

	byLabel := make(map[string]*models.Strain)

	// 1. Metabolomik-Dateinamen als Aliasse der Genom-Labels
	for _, link := range project.GenomeMetabolomeLinks {
		strain, ok := byLabel[link.GenomeLabel]
		if !ok {
			strain = models.NewStrain(link.GenomeLabel)
			byLabel[link.GenomeLabel] = strain
		}
		strain.AddAlias(filepath.Base(link.MetabolomicsFile))
	}

	// 2. Genom-Accessions als Aliasse
	for _, genome := range project.Genomes {
		accession := trimAccessionVersion(genome.GenomeID.RefSeqAccession)
		if accession == "" {
			continue
		}
		strain, ok := byLabel[genome.Label]
		if !ok {
			strain = models.NewStrain(genome.Label)
			byLabel[genome.Label] = strain
		}
		strain.AddAlias(accession)
	}

	// 3. BGC-Dateinamen aus den antiSMASH-Verzeichnissen als Aliasse
	antismashDir := filepath.Join(d.Config.DataDir, "genomics", "antismash")
	_ = filepath.Walk(antismashDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(p, ".gbk") {
			return nil
		}
		accession := filepath.Base(filepath.Dir(p))
		base := filepath.Base(p)
		if dot := strings.Index(base, "."); dot > 0 {
			base = base[:dot]
		}
		for _, strain := range byLabel {
			for _, name := range strain.Names() {
				if name == accession {
					strain.AddAlias(base)
					return nil
				}
			}
		}
		return nil
	})

	strains := models.NewStrainCollection()
	for _, strain := range byLabel {
		strains.Add(strain)
	}
	if err := strains.SaveToFile(path); err != nil {
		return err
	}

	d.Logger.Info("Strain-Mappings generiert",
		zap.String("file", path), zap.Int("strains", strains.Len()))
	return nil
}

// downloadToFile lädt eine URL in die Zieldatei. Existiert die Datei
// bereits, wird der Download übersprungen.
func (d *DownloadService) downloadToFile(ctx context.Context, method, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		d.Logger.Info("Verwende vorhandenen Download", zap.String("file", dest))
		return nil
	}

	d.Logger.Info("Starte Download", zap.String("url", url))
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download von %s fehlgeschlagen: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	written, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	d.Logger.Info("Download abgeschlossen",
		zap.String("file", dest), zap.Int64("bytes", written))
	return nil
}

// fetchBytes lädt eine URL komplett in den Speicher.
func (d *DownloadService) fetchBytes(ctx context.Context, method, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("abruf von %s fehlgeschlagen: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// extractZipMember entpackt einen einzelnen Archiv-Eintrag in die Zieldatei.
func extractZipMember(member *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := member.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// trimAccessionVersion entfernt das Versionssuffix einer Accession
// (z.B. "GCF_000514775.1" => "GCF_000514775").
func trimAccessionVersion(accession string) string {
	if idx := strings.LastIndex(accession, "."); idx > 0 {
		return accession[:idx]
	}
	return accession
}
