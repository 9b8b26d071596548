package api

import (
	"log/slog"

	"github.com/shaiso/Montage/internal/orchestrator"
	"github.com/shaiso/Montage/internal/repo"
	"github.com/shaiso/Montage/internal/wiring"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	catalogRepo  *repo.CatalogRepo
	pipelineRepo *repo.PipelineRepo
	connRepo     *repo.ConnectionRepo
	projectRepo  *repo.ProjectRepo
	stepRunRepo  *repo.StepRunRepo
	logRepo      *repo.LogRepo
	orch         *orchestrator.Orchestrator
	wiring       *wiring.Engine
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	CatalogRepo  *repo.CatalogRepo
	PipelineRepo *repo.PipelineRepo
	ConnRepo     *repo.ConnectionRepo
	ProjectRepo  *repo.ProjectRepo
	StepRunRepo  *repo.StepRunRepo
	LogRepo      *repo.LogRepo
	Orchestrator *orchestrator.Orchestrator
	Wiring       *wiring.Engine
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		catalogRepo:  cfg.CatalogRepo,
		pipelineRepo: cfg.PipelineRepo,
		connRepo:     cfg.ConnRepo,
		projectRepo:  cfg.ProjectRepo,
		stepRunRepo:  cfg.StepRunRepo,
		logRepo:      cfg.LogRepo,
		orch:         cfg.Orchestrator,
		wiring:       cfg.Wiring,
		logger:       cfg.Logger,
	}
}
