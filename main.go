package main

import (
	"context"
	"log"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"

	"taskflow/agent"
	"taskflow/config"
	"taskflow/db"
	"taskflow/executor"
	"taskflow/forms"
	"taskflow/handlers"
	"taskflow/interrupt"
	"taskflow/memory"
	"taskflow/models"
	"taskflow/plan"
	"taskflow/platform/shutdown"
	"taskflow/pool"
	"taskflow/providers"
	"taskflow/tools"
	"taskflow/workspace"
)

func main() {
	config.Initialize()
	cfg := config.Get()

	database, err := db.GetDB()
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	ws, err := workspace.NewManager(cfg.DataDir, cfg.ExternalFolder)
	if err != nil {
		log.Fatal(err)
	}

	notifier := models.NewNotifier()
	modelStore := db.NewModelStore(database, notifier)
	templateStore := db.NewTemplateStore(database)
	dbRecorder := db.NewRecorder(database)

	llmService := providers.NewService(modelStore, nil)
	llmService.WatchModelChanges(notifier.Subscribe())

	pools := pool.NewLevelPools(cfg.PoolDepthLevels, cfg.PoolWorkersPerLevel)
	interrupts := interrupt.NewService()
	formStore := forms.NewStore(time.Duration(cfg.FormLockTimeoutMs) * time.Millisecond)
	dispatcher := plan.NewDispatcher()

	conversations := memory.NewConversationStore(cfg.MaxMemory)
	compressor := memory.NewCompressor(conversations, llmService, memory.CompressorConfig{
		MaxChars: cfg.ConversationMemoryMaxChars,
	})

	registry := tools.NewRegistry()
	parallel := tools.NewParallelService(registry, pools)

	services := agent.Services{
		LLM:           llmService,
		Registry:      registry,
		Parallel:      parallel,
		Compressor:    compressor,
		Conversations: conversations,
		Recorder:      dbRecorder,
		Interrupts:    interrupts,
		Forms:         formStore,
		Dispatcher:    dispatcher,
		Config:        cfg,
	}

	defaultAgents := []plan.AgentSpec{
		{
			Name:        plan.DefaultAgentTag,
			Description: "General-purpose agent with file and sub-plan tools",
			ToolKeys: []string{
				tools.TerminateToolName,
				tools.ErrorReportToolName,
				tools.FormInputToolName,
				"file_read",
				"file_write",
				tools.SubPlanToolName,
			},
		},
	}

	planExecutor := executor.New(defaultAgents, services, pools, ws)

	registerBuiltinTools(registry, ws, planExecutor)

	// Create a new rweb server with options
	s := rweb.NewServer(rweb.ServerOptions{
		Address: cfg.ServerAddress,
		Verbose: true,
	})

	// Add middleware for request logging
	s.Use(rweb.RequestInfo)

	handlers.SetupRoutes(s, handlers.Deps{
		Executor:      planExecutor,
		Templates:     templateStore,
		Recorder:      dbRecorder,
		Models:        modelStore,
		Interrupts:    interrupts,
		Forms:         formStore,
		Dispatcher:    dispatcher,
		Conversations: conversations,
	})

	// Graceful shutdown: interrupt active plans, then close the database
	done := make(chan struct{})
	shutdown.InitShutdownService(done)
	shutdown.RegisterHook(func(grace time.Duration) error {
		interrupts.InterruptAll()
		return nil
	})
	shutdown.RegisterHook(func(grace time.Duration) error {
		return database.Close()
	})

	go func() {
		logger.Info("Starting taskflow server", "address", cfg.ServerAddress)
		if err := s.Run(); err != nil {
			log.Fatal(err)
		}
	}()

	<-done
	logger.Info("taskflow server stopped")
}

// registerBuiltinTools wires the distinguished tools plus the plan-scoped
// file tools and the sub-plan spawner
func registerBuiltinTools(registry *tools.Registry, ws *workspace.Manager, planExecutor *executor.PlanExecutor) {
	terminate := tools.NewTerminateTool()
	registry.Register(terminate.GetDefinition(), terminate)

	errorReport := tools.NewErrorReportTool()
	registry.Register(errorReport.GetDefinition(), errorReport)

	systemErrorReport := tools.NewSystemErrorReportTool()
	registry.Register(systemErrorReport.GetDefinition(), systemErrorReport)

	formInput := tools.NewFormInputTool()
	registry.Register(formInput.GetDefinition(), formInput)

	fileRead := &tools.FileReadTool{PlanDir: ws.RootPlanDir}
	registry.Register(fileRead.GetDefinition(), fileRead)

	fileWrite := &tools.FileWriteTool{PlanDir: ws.RootPlanDir}
	registry.Register(fileWrite.GetDefinition(), fileWrite)

	subPlan := &tools.SubPlanTool{
		Spawner: func(title string, steps []string, parent tools.CallContext) (string, error) {
			return planExecutor.SpawnSubPlan(context.Background(), title, steps, parent)
		},
	}
	registry.Register(subPlan.GetDefinition(), subPlan)
}
