package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speechflow/internal/config"
	"speechflow/internal/domain"
	"speechflow/internal/orchestrator"
	"speechflow/internal/output"
)

// API carries the handler dependencies.
type API struct {
	cfg      config.ServerConfig
	svc      *orchestrator.Service
	settings domain.Settings
	log      zerolog.Logger
}

// NewAPI builds the handler set.
func NewAPI(cfg config.ServerConfig, svc *orchestrator.Service, settings domain.Settings, log zerolog.Logger) *API {
	return &API{cfg: cfg, svc: svc, settings: settings, log: log}
}

func registerRoutes(r *gin.Engine, api *API) {
	r.GET("/", api.handleRoot)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)
		apiGroup.GET("/status", api.handleStatus)

		apiGroup.POST("/transcribe", api.handleTranscribe)
		apiGroup.POST("/batch_transcribe", api.handleBatchTranscribe)
		apiGroup.POST("/summarize", api.handleSummarize)

		apiGroup.GET("/jobs/:id", api.handleReport)
		apiGroup.GET("/jobs/:id/events", api.handleEvents)
		apiGroup.POST("/jobs/:id/cancel", api.handleCancel)
	}
}

func (a *API) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "speechflow",
		"endpoints": []string{
			"GET /api/health",
			"GET /api/status",
			"POST /api/transcribe",
			"POST /api/batch_transcribe",
			"POST /api/summarize",
			"GET /api/jobs/:id",
			"GET /api/jobs/:id/events",
			"POST /api/jobs/:id/cancel",
		},
	})
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleStatus(c *gin.Context) {
	fingerprints := a.svc.Fingerprints()
	sort.Strings(fingerprints)
	c.JSON(http.StatusOK, gin.H{
		"submissions": a.svc.Status(),
		"engines":     fingerprints,
	})
}

// handleTranscribe accepts either a JSON body naming a local input path or a
// multipart upload carrying the audio itself.
func (a *API) handleTranscribe(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		a.handleTranscribeUpload(c)
		return
	}

	var payload struct {
		InputPath  string                `json:"inputPath" binding:"required"`
		OutputPath string                `json:"outputPath"`
		Backend    *domain.BackendConfig `json:"backend"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if !a.cfg.AllowsExtension(filepath.Ext(payload.InputPath)) {
		respondMessage(c, http.StatusBadRequest, "unsupported file extension")
		return
	}

	job := domain.Job{
		Kind:       domain.JobKindTranscribe,
		InputPath:  payload.InputPath,
		OutputPath: output.Resolve(payload.InputPath, payload.OutputPath, a.outputDir()),
		Backend:    a.recognizerConfig(payload.Backend),
	}
	c.JSON(http.StatusAccepted, gin.H{"id": a.svc.SubmitJob(job)})
}

func (a *API) handleTranscribeUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing audio file")
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !a.cfg.AllowsExtension(ext) {
		respondMessage(c, http.StatusBadRequest, "unsupported file extension")
		return
	}

	savedPath := filepath.Join(a.cfg.UploadDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(fileHeader, savedPath); err != nil {
		a.log.Error().Err(err).Str("file", fileHeader.Filename).Msg("saving upload failed")
		respondMessage(c, http.StatusInternalServerError, "unable to save uploaded file")
		return
	}

	backend, err := backendFromForm(c.PostForm("backend"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	base := strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	job := domain.Job{
		Kind:       domain.JobKindTranscribe,
		InputPath:  savedPath,
		OutputPath: filepath.Join(a.outputDir(), base+".txt"),
		Backend:    a.recognizerConfig(backend),
	}
	c.JSON(http.StatusAccepted, gin.H{"id": a.svc.SubmitJob(job)})
}

func (a *API) handleBatchTranscribe(c *gin.Context) {
	var payload struct {
		Inputs    []string              `json:"inputs" binding:"required,min=1"`
		OutputDir string                `json:"outputDir"`
		Backend   *domain.BackendConfig `json:"backend"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	outputDir := payload.OutputDir
	if outputDir == "" {
		outputDir = a.outputDir()
	}

	backend := a.recognizerConfig(payload.Backend)
	batch := make([]domain.Job, 0, len(payload.Inputs))
	for _, input := range payload.Inputs {
		if !a.cfg.AllowsExtension(filepath.Ext(input)) {
			respondMessage(c, http.StatusBadRequest, "unsupported file extension: "+input)
			return
		}
		batch = append(batch, domain.Job{
			Kind:       domain.JobKindTranscribe,
			InputPath:  input,
			OutputPath: output.Resolve(input, "", outputDir),
			Backend:    backend,
		})
	}
	c.JSON(http.StatusAccepted, gin.H{"id": a.svc.SubmitBatch(batch)})
}

func (a *API) handleSummarize(c *gin.Context) {
	var payload struct {
		Text       string                `json:"text" binding:"required"`
		MaxLength  int                   `json:"maxLength"`
		Language   string                `json:"language"`
		OutputPath string                `json:"outputPath"`
		Backend    *domain.BackendConfig `json:"backend"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	maxLength := payload.MaxLength
	if maxLength <= 0 {
		maxLength = a.settings.SummaryMaxLength
	}
	language := payload.Language
	if language == "" {
		language = a.settings.SummaryLanguage
	}

	job := domain.Job{
		Kind:       domain.JobKindSummarize,
		InputText:  payload.Text,
		OutputPath: payload.OutputPath,
		Backend:    a.summarizerConfig(payload.Backend),
		Summary:    domain.SummaryOptions{MaxLength: maxLength, Language: language},
	}
	c.JSON(http.StatusAccepted, gin.H{"id": a.svc.SubmitJob(job)})
}

func (a *API) handleReport(c *gin.Context) {
	report, finished, err := a.svc.Report(c.Param("id"))
	if errors.Is(err, orchestrator.ErrUnknownSubmission) {
		respondMessage(c, http.StatusNotFound, "unknown submission")
		return
	}
	if !finished {
		c.JSON(http.StatusOK, gin.H{"finished": false})
		return
	}

	body := gin.H{"finished": true, "report": report}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (a *API) handleEvents(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "since must be an integer")
		return
	}

	events, err := a.svc.SubmissionEvents(c.Param("id"), since)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "unknown submission")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (a *API) handleCancel(c *gin.Context) {
	err := a.svc.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, orchestrator.ErrUnknownSubmission):
		respondMessage(c, http.StatusNotFound, "unknown submission")
	case errors.Is(err, orchestrator.ErrAlreadyFinished):
		respondMessage(c, http.StatusConflict, "submission already finished")
	case err != nil:
		respondError(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusAccepted, gin.H{"cancelled": true})
	}
}

// outputDir picks the transcript destination directory: server config first,
// then user settings.
func (a *API) outputDir() string {
	if a.cfg.OutputDir != "" {
		return a.cfg.OutputDir
	}
	return a.settings.OutputDir
}

// recognizerConfig uses the request's backend when given, else the default
// whisper configuration from settings.
func (a *API) recognizerConfig(requested *domain.BackendConfig) domain.BackendConfig {
	if requested != nil {
		return *requested
	}
	return domain.BackendConfig{
		Kind: domain.BackendWhisper,
		Whisper: domain.WhisperParams{
			ModelPath: a.settings.WhisperModelPath,
			ModelSize: a.settings.WhisperModelSize,
			Language:  a.settings.Language,
		},
	}
}

// summarizerConfig uses the request's backend when given, else the default
// Ollama configuration from settings.
func (a *API) summarizerConfig(requested *domain.BackendConfig) domain.BackendConfig {
	if requested != nil {
		return *requested
	}
	return domain.BackendConfig{
		Kind: domain.BackendOllama,
		Ollama: domain.OllamaParams{
			URL:   a.settings.OllamaURL,
			Model: a.settings.OllamaModel,
		},
	}
}

// backendFromForm parses an optional JSON backend config form field.
func backendFromForm(raw string) (*domain.BackendConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var cfg domain.BackendConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
