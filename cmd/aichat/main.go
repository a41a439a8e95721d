package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/aichat/internal/ai"
	"github.com/xxxsen/aichat/internal/analysis"
	"github.com/xxxsen/aichat/internal/chat"
	"github.com/xxxsen/aichat/internal/config"
	"github.com/xxxsen/aichat/internal/extract"
	"github.com/xxxsen/aichat/internal/handler"
	"github.com/xxxsen/aichat/internal/job"
	"github.com/xxxsen/aichat/internal/knowledge"
	"github.com/xxxsen/aichat/internal/middleware"
	"github.com/xxxsen/aichat/internal/moderation"
	"github.com/xxxsen/aichat/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "aichat",
		Short: "aichat backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run aichat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Bool("moderation", cfg.Moderation.Enable),
		zap.Bool("knowledge", cfg.Knowledge.Enable),
	)

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	provider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}

	extractor := extract.NewExtractor(extract.Config{
		MinTextLayerChars: cfg.Analysis.MinTextLayerChars,
		MinRawTextChars:   cfg.Analysis.MinRawTextChars,
		RenderScale:       cfg.Analysis.RenderScale,
		MaxImageWidth:     cfg.Analysis.MaxImageWidth,
	})
	vision := analysis.NewVisionAnalyzer(provider, cfg.AI.VisionModel)
	summarizer := analysis.NewSummarizer(provider, cfg.AI.TextModel, cfg.Analysis.ChunkSize)
	orchestrator := analysis.NewOrchestrator(extractor, vision, summarizer)

	var moderator chat.ModerationChecker
	if cfg.Moderation.Enable {
		moderator = moderation.NewChecker(moderation.Config{
			APIKey:    cfg.Moderation.APIKey,
			BaseURL:   cfg.Moderation.BaseURL,
			CacheSize: cfg.Moderation.CacheSize,
			CacheTTL:  time.Duration(cfg.Moderation.CacheTTLMinutes) * time.Minute,
			Timeout:   time.Duration(cfg.Moderation.TimeoutSeconds) * time.Second,
		})
	}

	scheduler := schedule.NewScheduler()
	var kb chat.KnowledgeSearcher
	var knowledgeHandler *handler.KnowledgeHandler
	if cfg.Knowledge.Enable {
		store, err := knowledge.NewStore(knowledge.Config{
			Dir:          cfg.Knowledge.Dir,
			DBPath:       cfg.Knowledge.DBPath,
			TopK:         cfg.Knowledge.TopK,
			ChunkSize:    cfg.Analysis.ChunkSize,
			EmbedBaseURL: cfg.Knowledge.EmbedBaseURL,
			EmbedAPIKey:  cfg.Knowledge.EmbedAPIKey,
			EmbedModel:   cfg.Knowledge.EmbedModel,
		})
		if err != nil {
			return fmt.Errorf("init knowledge store: %w", err)
		}
		if _, err := store.Reindex(context.Background()); err != nil {
			logutil.GetLogger(context.Background()).Warn("initial knowledge reindex failed", zap.Error(err))
		}
		if err := scheduler.AddJob(job.NewKnowledgeReindexJob(store), cfg.Knowledge.ReindexCron); err != nil {
			return fmt.Errorf("schedule knowledge reindex: %w", err)
		}
		kb = store
		knowledgeHandler = handler.NewKnowledgeHandler(store)
	}

	chatService := chat.NewService(chat.Config{
		TextModel:       cfg.AI.TextModel,
		SystemPrompt:    cfg.SystemPrompt,
		EnableWebSearch: cfg.AI.EnableWebSearch,
		KnowledgeTopK:   cfg.Knowledge.TopK,
		RequestBudget:   time.Duration(cfg.Analysis.RequestBudgetSeconds) * time.Second,
	}, provider, orchestrator, moderator, kb)

	deps := handler.RouterDeps{
		Chat:      handler.NewChatHandler(chatService),
		Knowledge: knowledgeHandler,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			// The chat stream must not be buffered by compression.
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/chat"})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
