package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hyunwoo-p/counseldesk/internal/ai"
	"github.com/hyunwoo-p/counseldesk/internal/audit"
	"github.com/hyunwoo-p/counseldesk/internal/config"
	"github.com/hyunwoo-p/counseldesk/internal/db"
	"github.com/hyunwoo-p/counseldesk/internal/httpapi"
	"github.com/hyunwoo-p/counseldesk/internal/httpapi/handlers"
	"github.com/hyunwoo-p/counseldesk/internal/notify"
	"github.com/hyunwoo-p/counseldesk/internal/store/rabbitmq"
	"github.com/hyunwoo-p/counseldesk/internal/store/redisstore"
	"github.com/hyunwoo-p/counseldesk/internal/suggest"
	"github.com/hyunwoo-p/counseldesk/internal/support"
)

func buildRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	reg.Register("gateway", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.GatewayModel
		}
		return ai.NewOpenAIProvider(cfg.GatewayBaseURL, cfg.GatewayAPIKey, m), nil
	})

	return reg
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&support.Conversation{},
		&support.Message{},
		&support.AIResponse{},
		&support.ApprovalDecision{},
		&support.AnalysisJob{},
		&audit.Entry{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	reg := buildRegistry(cfg)
	model := cfg.GatewayModel
	if cfg.AIProvider == "ollama" {
		model = cfg.OllamaModel
	}
	provider, err := reg.Get(context.Background(), cfg.AIProvider, model)
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}
	gateway := ai.NewGateway(provider, model, time.Duration(cfg.AITimeoutSeconds)*time.Second, cfg.AIMaxRetries)

	repo := support.NewRepo(gdb)
	suggestions := suggest.NewStore(repo, rds)
	svc := support.NewService(
		repo,
		gateway,
		support.NewGate(cfg.ConfidenceThreshold),
		audit.NewLogger(gdb),
		suggestions,
		notify.NewPublisher(rds),
		cfg.ContextWindowSize,
	)

	// Without a broker analysis jobs run inline in the request path.
	var rabbit *rabbitmq.Publisher
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Printf("rabbit unavailable, analysis jobs run inline: %v", err)
	} else {
		rabbit = pub
		defer rabbit.Close()
	}

	h := handlers.NewHandler(gdb, cfg, svc, suggestions, rabbit)
	r := httpapi.NewRouter(cfg, h)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("server listening addr=%s provider=%s model=%s", addr, cfg.AIProvider, model)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
