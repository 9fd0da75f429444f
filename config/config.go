package config

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	HTTPPort     string `envconfig:"HTTP_PORT" default:"4270"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// DataDir ist das Wurzelverzeichnis des Datensatzes (Strain-Mappings,
	// Metabolomik, Genomik, Score-Caches).
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	// Paired-Omics-Plattform für den Download kompletter Projekte
	PlatformAPIURL string `envconfig:"PLATFORM_API_URL" default:"https://pairedomicsdata.bioinformatics.nl/api/projects"`
	DatasetID      string `envconfig:"DATASET_ID"`
	MiBIGVersion   string `envconfig:"MIBIG_VERSION" default:"1.4"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 0 * * *"`

	// Metcalf-Scoring
	MetcalfCutoff       float64 `envconfig:"METCALF_CUTOFF" default:"1.0"`
	MetcalfStandardised bool    `envconfig:"METCALF_STANDARDISED" default:"true"`

	// Rosetta-Scoring (Toleranzen für den Spektral-/MiBIG-Abgleich)
	RosettaMS1Tol        float64 `envconfig:"ROSETTA_MS1_TOL" default:"100"`
	RosettaMS2Tol        float64 `envconfig:"ROSETTA_MS2_TOL" default:"0.2"`
	RosettaScoreThresh   float64 `envconfig:"ROSETTA_SCORE_THRESH" default:"0.5"`
	RosettaMinMatchPeaks int     `envconfig:"ROSETTA_MIN_MATCH_PEAKS" default:"1"`

	// S3 für Ergebnis-Exporte (optional, Export-Endpunkt liefert sonst 503)
	StratoS3Key    string `envconfig:"STRATO_S3_KEY"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET"`
}

// MetcalfCacheDir gibt das Verzeichnis für den Metcalf-Score-Cache zurück.
func (c *Config) MetcalfCacheDir() string {
	return filepath.Join(c.DataDir, "metcalf")
}

// StrainMappingsPath gibt den Pfad der strain_mappings.csv zurück.
func (c *Config) StrainMappingsPath() string {
	return filepath.Join(c.DataDir, "strain_mappings.csv")
}

// S3Configured meldet, ob ein Ergebnis-Export nach S3 möglich ist.
func (c *Config) S3Configured() bool {
	return c.StratoS3URL != "" && c.StratoS3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
