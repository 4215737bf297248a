package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"

	"sceneminer/internal/cache"
	"sceneminer/internal/config"
	"sceneminer/internal/ensemble"
	"sceneminer/internal/extraction"
	"sceneminer/internal/models"
	"sceneminer/internal/processors"
	"sceneminer/internal/storage"
	"sceneminer/internal/strategy"
	"sceneminer/internal/workflows"
)

type Server struct {
	cfg          config.Config
	db           *storage.DB
	unitRepo     *storage.UnitRepo
	docRepo      *storage.DocumentRepo
	registry     *processors.Registry
	orchestrator *extraction.Orchestrator
	temporal     tclient.Client
	logger       *slog.Logger
}

func NewServer(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := db.Migrate(ctx); err != nil {
		panic(err)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		panic(err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	local := cache.NewMemoryTier(cfg.MemoryCacheSize, cacheTTL)
	shared := cache.NewRedisTier(rdb, "sceneminer", cacheTTL)
	locker := cache.NewRedisLocker(rdb, "sceneminer")

	voter := ensemble.NewVoter(ensemble.Options{
		ConsensusThreshold: cfg.ConsensusThreshold,
		Similarity:         ensemble.DefaultSimilarity(),
	})
	runner := strategy.NewRunner(voter, logger)
	selector := strategy.DefaultSelectorConfig()
	selector.Default = strategy.ModeAdaptive

	unitRepo := storage.NewUnitRepo(db)
	orch := extraction.NewOrchestrator(
		unitRepo,
		storage.NewDescriptionRepo(db),
		local, shared, locker,
		registry, runner, selector,
		extraction.Options{
			ExtractionTimeout: time.Duration(cfg.ExtractionTimeoutSeconds) * time.Second,
			LockTTL:           time.Duration(cfg.LockTTLSeconds) * time.Second,
		},
		logger,
	)

	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}

	return &Server{
		cfg:          cfg,
		db:           db,
		unitRepo:     unitRepo,
		docRepo:      storage.NewDocumentRepo(db),
		registry:     registry,
		orchestrator: orch,
		temporal:     tc,
		logger:       logger,
	}
}

// buildRegistry resolves the processor set from the YAML file when present,
// else the env list. Fails fast below the minimum-viable floor.
func buildRegistry(cfg config.Config, logger *slog.Logger) (*processors.Registry, error) {
	var configs []processors.ProcessorConfig
	if cfg.ProcessorConfigPath != "" {
		loaded, err := processors.LoadProcessorFile(cfg.ProcessorConfigPath)
		if err != nil {
			return nil, err
		}
		configs = loaded
	} else {
		configs = processors.ParseProcessorList(cfg.Processors)
	}
	return processors.NewRegistry(configs, processors.RegistryOptions{
		MinEnabled: cfg.MinEnabledProcessors,
		LLM: processors.LLMSettings{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		},
		Logger: logger,
	})
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/units/", s.handleUnitsScoped)
	mux.HandleFunc("/processors", s.handleProcessors)
	mux.HandleFunc("/processors/", s.handleProcessorsScoped)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentsScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "processors": s.registry.HealthCheck(r.Context())})
}

func (s *Server) handleUnitsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/units/"), "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	unitID, action := parts[0], parts[1]
	switch {
	case action == "descriptions" && r.Method == http.MethodGet:
		s.handleGetDescriptions(w, r, unitID)
	case action == "reprocess" && r.Method == http.MethodPost:
		s.handleReprocess(w, r, unitID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetDescriptions(w http.ResponseWriter, r *http.Request, unitID string) {
	allowExtraction := r.URL.Query().Get("extract") == "true"
	res, err := s.orchestrator.GetDescriptions(r.Context(), unitID, allowExtraction)
	if err != nil {
		s.writeExtractionErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request, unitID string) {
	res, err := s.orchestrator.Reprocess(r.Context(), unitID)
	if err != nil {
		s.writeExtractionErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeExtractionErr maps the orchestrator's typed errors: a held lock is a
// retryable 409, a blown budget is a 504. Both leave the unit retryable.
func (s *Server) writeExtractionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extraction.ErrUnitNotFound):
		writeErr(w, http.StatusNotFound, err)
	case errors.Is(err, extraction.ErrLockConflict):
		writeErr(w, http.StatusConflict, fmt.Errorf("%w; retry shortly", err))
	case errors.Is(err, extraction.ErrExtractionTimeout):
		writeErr(w, http.StatusGatewayTimeout, err)
	default:
		s.logger.Error("extraction request failed", "error", err)
		writeErr(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleProcessors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"processors": s.registry.Configs()})
}

func (s *Server) handleProcessorsScoped(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/processors/"), "/")
	if name == "" || r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	var cfg processors.ProcessorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if err := s.registry.UpdateConfig(name, cfg); err != nil {
		if errors.Is(err, processors.ErrUnknownProcessor) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": name})
}

type ingestUnit struct {
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ingestRequest struct {
	Title  string       `json:"title"`
	Author string       `json:"author"`
	Units  []ingestUnit `json:"units"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.docRepo.ListDocuments(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	case http.MethodPost:
		s.handleIngest(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleIngest stores a pre-split document and kicks off the background
// pre-parse workflow over its first K units.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}
	if len(req.Units) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("at least one unit is required"))
		return
	}

	doc := models.Document{DocumentID: uuid.NewString(), Title: req.Title, Author: req.Author}
	units := make([]models.ContentUnit, 0, len(req.Units))
	for i, u := range req.Units {
		ordinal := u.Ordinal
		if ordinal == 0 {
			ordinal = i + 1
		}
		units = append(units, models.ContentUnit{
			UnitID:     uuid.NewString(),
			DocumentID: doc.DocumentID,
			Ordinal:    ordinal,
			Title:      u.Title,
			Content:    u.Content,
			WordCount:  len(strings.Fields(u.Content)),
		})
	}
	if err := s.docRepo.InsertWithUnits(r.Context(), doc, units); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	workflowID := "preparse-" + doc.DocumentID
	_, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.DocumentPreparseWorkflow, workflows.DocumentPreparseInput{
		DocumentID: doc.DocumentID,
		MaxUnits:   s.cfg.PreparseUnits,
	})
	if err != nil {
		// the document is stored; preparse is opportunistic
		s.logger.Error("preparse workflow start failed", "document", doc.DocumentID, "error", err)
	}

	unitIDs := make([]string, 0, len(units))
	for _, u := range units {
		unitIDs = append(unitIDs, u.UnitID)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"document_id": doc.DocumentID,
		"unit_ids":    unitIDs,
		"workflow_id": workflowID,
	})
}

func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		doc, err := s.docRepo.GetDocument(r.Context(), parts[0])
		if err != nil {
			if errors.Is(err, storage.ErrDocumentNotFound) {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case len(parts) == 2 && parts[1] == "preparse" && r.Method == http.MethodGet:
		s.handlePreparseStatus(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handlePreparseStatus(w http.ResponseWriter, r *http.Request, documentID string) {
	workflowID := "preparse-" + documentID
	desc, err := s.temporal.DescribeWorkflowExecution(r.Context(), workflowID, "")
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("preparse workflow not found: %w", err))
		return
	}
	status := desc.GetWorkflowExecutionInfo().GetStatus()

	out := map[string]any{
		"workflow_id": workflowID,
		"status":      status.String(),
	}
	if status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING || status == enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED {
		var progress workflows.DocumentPreparseProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryGetPreparseProgress)
		if err == nil && resp.Get(&progress) == nil {
			out["progress"] = progress
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
