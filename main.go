package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/louwenjjr/nplinker/config"
	"github.com/louwenjjr/nplinker/dataset"
	"github.com/louwenjjr/nplinker/models"
	"github.com/louwenjjr/nplinker/scoring"
	"github.com/louwenjjr/nplinker/scoring/metcalf"
	"github.com/louwenjjr/nplinker/scoring/rosetta"
	"github.com/louwenjjr/nplinker/scoring/testscore"
	"github.com/louwenjjr/nplinker/services"
	"github.com/louwenjjr/nplinker/storage"
)

var (
	scoringRunsCounter      prometheus.Counter
	linksFoundCounter       prometheus.Counter
	metcalfRecomputeCounter prometheus.Counter
)

func init() {
	scoringRunsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nplinker_scoring_runs_total",
			Help: "Total number of scoring runs executed via the API.",
		},
	)
	linksFoundCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nplinker_links_found_total",
			Help: "Total number of links returned by scoring runs.",
		},
	)
	metcalfRecomputeCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nplinker_metcalf_recomputes_total",
			Help: "Number of dataset loads that recomputed Metcalf scores instead of reading the cache.",
		},
	)
	prometheus.MustRegister(scoringRunsCounter, linksFoundCounter, metcalfRecomputeCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// app hält den aktuell geladenen Datensatz samt AnalysisService. Reload
// tauscht beide atomar aus, laufende Anfragen behalten ihre alte Sicht.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	mu       sync.RWMutex
	analysis *services.AnalysisService
}

func (a *app) current() *services.AnalysisService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.analysis
}

// reload lädt den Datensatz von Platte, wärmt die geteilten
// Statistik-Strukturen vor und tauscht dann den aktiven Service aus.
func (a *app) reload() error {
	ds, err := dataset.Load(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("datensatz laden fehlgeschlagen: %w", err)
	}
	analysis := services.NewAnalysisService(a.cfg, ds, a.logger)
	fromCache, err := analysis.Warm()
	if err != nil {
		return err
	}
	if !fromCache {
		metcalfRecomputeCounter.Inc()
	}
	a.mu.Lock()
	a.analysis = analysis
	a.mu.Unlock()
	a.logger.Info("Datensatz aktiv",
		zap.String("dataset", ds.String()),
		zap.Bool("metcalf_cache_hit", fromCache))
	return nil
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	application := &app{cfg: cfg, logger: logging}

	// Initialer Load. Fehlt der Datensatz noch (frische Installation),
	// startet der Server trotzdem und liefert 503, bis ein Download oder
	// Reload erfolgreich war.
	if err := application.reload(); err != nil {
		logging.Warn("Kein Datensatz beim Start geladen", zap.Error(err))
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupLinkRoutes(router, application)
	setupObjectRoutes(router, application)
	setupDatasetRoutes(router, application)
	setupHealthRoutes(router, application)

	// Setup Cron: regelmäßiger Reload, damit neue Dateien im DataDir und
	// veraltete Score-Caches automatisch aufgegriffen werden.
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled dataset reload...")
		if err := application.reload(); err != nil {
			logging.Error("Cron reload failed", zap.Error(err))
		} else {
			logging.Info("Cron reload completed")
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// linkQuery ist der Request-Body für Scoring-Läufe. Die Methoden-Blöcke
// überschreiben die Konfigurationswerte nur für diese eine Anfrage.
type linkQuery struct {
	Kind    string   `json:"kind" binding:"required"`
	IDs     []int    `json:"ids" binding:"required"`
	Methods []string `json:"methods"`

	// AndMode: Links überleben nur, wenn jede Methode sie gefunden hat.
	// Fehlt das Feld, gilt AND.
	AndMode               *bool `json:"and_mode"`
	FilterNoSharedStrains bool  `json:"filter_no_shared_strains"`

	Metcalf *struct {
		Cutoff       *float64 `json:"cutoff"`
		NoCutoff     bool     `json:"no_cutoff"`
		Standardised *bool    `json:"standardised"`
	} `json:"metcalf"`
	Rosetta *struct {
		BGCToGCF        *bool    `json:"bgc_to_gcf"`
		SpecScoreCutoff *float64 `json:"spec_score_cutoff"`
		BGCScoreCutoff  *float64 `json:"bgc_score_cutoff"`
	} `json:"rosetta"`
	TestScore *struct {
		Value *float64 `json:"value"`
	} `json:"testscore"`
}

func setupLinkRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/links")

	// Body-gesteuerter Endpunkt für Scoring-Läufe
	rg.POST("/query", func(c *gin.Context) {
		analysis := a.current()
		if analysis == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no dataset loaded"})
			return
		}

		var req linkQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		result, status, err := runLinkQuery(analysis, &req)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Wie /query, aber das Ergebnis wandert als JSON-Dokument nach S3.
	rg.POST("/export", func(c *gin.Context) {
		analysis := a.current()
		if analysis == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no dataset loaded"})
			return
		}
		if !a.cfg.S3Configured() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "S3 export not configured"})
			return
		}

		var req linkQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		result, status, err := runLinkQuery(analysis, &req)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode result"})
			return
		}

		s3Client, err := storage.NewS3Client(a.cfg)
		if err != nil {
			a.logger.Error("S3 client creation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "S3 client creation failed"})
			return
		}
		key := fmt.Sprintf("nplinker/links-%s.json", time.Now().UTC().Format("20060102-150405"))
		link, err := storage.UploadFile(s3Client, a.cfg.StratoS3Bucket, key, payload, a.cfg)
		if err != nil {
			a.logger.Error("S3 upload failed", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "S3 upload failed"})
			return
		}

		a.logger.Info("Link-Export nach S3 geschrieben",
			zap.String("bucket", a.cfg.StratoS3Bucket),
			zap.String("key", key),
			zap.Int("bytes", len(payload)))
		c.JSON(http.StatusOK, gin.H{
			"bucket": a.cfg.StratoS3Bucket,
			"key":    key,
			"url":    link,
			"bytes":  len(payload),
		})
	})

	// GET - verfügbare Scoring-Methoden
	rg.GET("/methods", func(c *gin.Context) {
		analysis := a.current()
		if analysis == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no dataset loaded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"methods": analysis.MethodNames()})
	})
}

// runLinkQuery führt den kompletten Scoring-Lauf für einen Request aus:
// Objekte auflösen, Methoden-Instanzen konfigurieren, Links berechnen und
// das Ergebnis rendern.
func runLinkQuery(analysis *services.AnalysisService, req *linkQuery) (gin.H, int, error) {
	kind, err := models.ParseObjectKind(req.Kind)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	if len(req.IDs) == 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("ids must not be empty")
	}
	objects, err := analysis.ObjectsByKind(kind, req.IDs)
	if err != nil {
		return nil, http.StatusNotFound, err
	}

	methods, err := buildMethods(analysis, req)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	andMode := true
	if req.AndMode != nil {
		andMode = *req.AndMode
	}
	coll, err := analysis.GetLinks(objects, methods, andMode)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}
	if req.FilterNoSharedStrains {
		coll.FilterNoSharedStrains()
	}

	scoringRunsCounter.Inc()
	linksFoundCounter.Add(float64(coll.Len()))

	return renderLinks(coll, methods), http.StatusOK, nil
}

// buildMethods erstellt die Methoden-Instanzen des Requests und legt die
// Request-Parameter über die konfigurierten Defaults.
func buildMethods(analysis *services.AnalysisService, req *linkQuery) ([]scoring.Method, error) {
	names := req.Methods
	if len(names) == 0 {
		names = []string{metcalf.Name}
	}
	methods := make([]scoring.Method, 0, len(names))
	for _, name := range names {
		method, err := analysis.ScoringMethod(name)
		if err != nil {
			return nil, err
		}
		switch m := method.(type) {
		case *metcalf.Scoring:
			if p := req.Metcalf; p != nil {
				if p.NoCutoff {
					m.Cutoff = nil
				} else if p.Cutoff != nil {
					m.Cutoff = p.Cutoff
				}
				if p.Standardised != nil {
					m.Standardised = *p.Standardised
				}
			}
		case *rosetta.Scoring:
			if p := req.Rosetta; p != nil {
				if p.BGCToGCF != nil {
					m.BGCToGCF = *p.BGCToGCF
				}
				if p.SpecScoreCutoff != nil {
					m.SpecScoreCutoff = *p.SpecScoreCutoff
				}
				if p.BGCScoreCutoff != nil {
					m.BGCScoreCutoff = *p.BGCScoreCutoff
				}
			}
		case *testscore.Scoring:
			if p := req.TestScore; p != nil && p.Value != nil {
				m.Value = *p.Value
			}
		}
		methods = append(methods, method)
	}
	return methods, nil
}

// renderLinks baut die JSON-Antwort eines Scoring-Laufs. Die Links jeder
// Quelle sind absteigend nach der ersten angefragten Methode sortiert.
func renderLinks(coll *scoring.LinkCollection, methods []scoring.Method) gin.H {
	primary := methods[0]
	sources := make([]gin.H, 0, coll.SourceCount())
	for _, source := range coll.Sources() {
		links := coll.SortedLinks(primary, source, true, false)
		rendered := make([]gin.H, 0, len(links))
		for _, link := range links {
			scores := gin.H{}
			for _, m := range link.Methods() {
				if data, err := link.Data(m); err == nil {
					scores[m.Name()] = m.FormatData(data)
				}
			}
			strains := make([]string, 0, len(link.SharedStrains()))
			for _, s := range link.SharedStrains() {
				strains = append(strains, s.ID)
			}
			rendered = append(rendered, gin.H{
				"target":         link.Target().String(),
				"target_id":      link.Target().ObjectID(),
				"target_kind":    link.Target().Kind().String(),
				"shared_strains": strains,
				"scores":         scores,
			})
		}
		sources = append(sources, gin.H{
			"source":      source.String(),
			"source_id":   source.ObjectID(),
			"source_kind": source.Kind().String(),
			"links":       rendered,
		})
	}
	methodNames := make([]string, 0, len(methods))
	for _, m := range methods {
		methodNames = append(methodNames, m.Name())
	}
	return gin.H{
		"methods":      methodNames,
		"and_mode":     coll.AndMode(),
		"source_count": coll.SourceCount(),
		"link_count":   coll.Len(),
		"sources":      sources,
	}
}

func setupObjectRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/objects")

	// limit=0 liefert alles; der Default hält die Antworten klein.
	parseLimit := func(c *gin.Context) int {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 0 {
			return 100
		}
		return limit
	}
	withDataset := func(handler func(c *gin.Context, ds *dataset.Dataset, limit int)) gin.HandlerFunc {
		return func(c *gin.Context) {
			analysis := a.current()
			if analysis == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no dataset loaded"})
				return
			}
			handler(c, analysis.Dataset, parseLimit(c))
		}
	}

	rg.GET("/gcfs", withDataset(func(c *gin.Context, ds *dataset.Dataset, limit int) {
		out := make([]gin.H, 0, len(ds.GCFs))
		for i, gcf := range ds.GCFs {
			if limit > 0 && i == limit {
				break
			}
			out = append(out, gin.H{"id": gcf.ID, "bgcs": len(gcf.BGCs), "strains": gcf.Strains.Len()})
		}
		c.JSON(http.StatusOK, gin.H{"total": len(ds.GCFs), "gcfs": out})
	}))

	rg.GET("/bgcs", withDataset(func(c *gin.Context, ds *dataset.Dataset, limit int) {
		out := make([]gin.H, 0, len(ds.BGCs))
		for i, bgc := range ds.BGCs {
			if limit > 0 && i == limit {
				break
			}
			entry := gin.H{"id": bgc.ID, "name": bgc.Name, "known_cluster_hits": len(bgc.KnownClusterHits)}
			if bgc.Parent != nil {
				entry["gcf_id"] = bgc.Parent.ID
			}
			out = append(out, entry)
		}
		c.JSON(http.StatusOK, gin.H{"total": len(ds.BGCs), "bgcs": out})
	}))

	rg.GET("/spectra", withDataset(func(c *gin.Context, ds *dataset.Dataset, limit int) {
		out := make([]gin.H, 0, len(ds.Spectra))
		for i, spec := range ds.Spectra {
			if limit > 0 && i == limit {
				break
			}
			entry := gin.H{"id": spec.ID, "precursor_mz": spec.PrecursorMZ, "peaks": len(spec.Peaks), "strains": spec.Strains.Len()}
			if spec.Family != nil {
				entry["family_id"] = spec.Family.ID
			}
			out = append(out, entry)
		}
		c.JSON(http.StatusOK, gin.H{"total": len(ds.Spectra), "spectra": out})
	}))

	rg.GET("/molfams", withDataset(func(c *gin.Context, ds *dataset.Dataset, limit int) {
		out := make([]gin.H, 0, len(ds.MolFams))
		for i, fam := range ds.MolFams {
			if limit > 0 && i == limit {
				break
			}
			out = append(out, gin.H{"id": fam.ID, "spectra": len(fam.Spectra), "strains": fam.Strains.Len()})
		}
		c.JSON(http.StatusOK, gin.H{"total": len(ds.MolFams), "molfams": out})
	}))

	rg.GET("/strains", withDataset(func(c *gin.Context, ds *dataset.Dataset, limit int) {
		strains := ds.Strains.Strains()
		out := make([]gin.H, 0, len(strains))
		for i, strain := range strains {
			if limit > 0 && i == limit {
				break
			}
			out = append(out, gin.H{"id": strain.ID, "aliases": strain.Aliases()})
		}
		c.JSON(http.StatusOK, gin.H{"total": len(strains), "strains": out})
	}))
}

func setupDatasetRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/dataset")

	rg.GET("/", func(c *gin.Context) {
		analysis := a.current()
		if analysis == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no dataset loaded"})
			return
		}
		ds := analysis.Dataset
		c.JSON(http.StatusOK, gin.H{
			"dataset_id":    a.cfg.DatasetID,
			"mibig_version": a.cfg.MiBIGVersion,
			"bgcs":          len(ds.BGCs),
			"gcfs":          len(ds.GCFs),
			"spectra":       len(ds.Spectra),
			"molfams":       len(ds.MolFams),
			"strains":       ds.Strains.Len(),
			"library":       len(ds.Library),
		})
	})

	// Reload läuft asynchron; der aktive Datensatz bleibt bis zum
	// erfolgreichen Abschluss nutzbar.
	rg.POST("/reload", func(c *gin.Context) {
		go func() {
			if err := a.reload(); err != nil {
				a.logger.Error("Async reload failed", zap.Error(err))
			} else {
				a.logger.Info("Async reload completed")
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Dataset reload triggered."})
	})

	// Download holt das komplette Projekt von der Paired-Omics-Plattform
	// und lädt den Datensatz anschließend neu.
	rg.POST("/download", func(c *gin.Context) {
		if a.cfg.DatasetID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DATASET_ID not configured"})
			return
		}
		downloader := services.NewDownloadService(a.cfg, a.logger)
		go func() {
			if err := downloader.Run(context.Background()); err != nil {
				a.logger.Error("Async dataset download failed", zap.Error(err))
				return
			}
			if err := a.reload(); err != nil {
				a.logger.Error("Reload after download failed", zap.Error(err))
				return
			}
			a.logger.Info("Async dataset download completed")
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Download of dataset %s triggered.", a.cfg.DatasetID)})
	})
}

func setupHealthRoutes(router *gin.Engine, a *app) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"dataset_loaded": a.current() != nil,
		})
	})
}
