package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/hyunwoo-p/counseldesk/internal/ai"
	"github.com/hyunwoo-p/counseldesk/internal/audit"
	"github.com/hyunwoo-p/counseldesk/internal/config"
	"github.com/hyunwoo-p/counseldesk/internal/db"
	"github.com/hyunwoo-p/counseldesk/internal/notify"
	"github.com/hyunwoo-p/counseldesk/internal/store/redisstore"
	"github.com/hyunwoo-p/counseldesk/internal/suggest"
	"github.com/hyunwoo-p/counseldesk/internal/support"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func buildService(cfg config.Config) *support.Service {
	gdb := db.Connect(cfg.DBDSN)
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var provider ai.Provider
	model := cfg.GatewayModel
	switch cfg.AIProvider {
	case "", "gateway":
		provider = ai.NewOpenAIProvider(cfg.GatewayBaseURL, cfg.GatewayAPIKey, model)
	case "ollama":
		model = cfg.OllamaModel
		provider = ai.NewOllamaProvider(cfg.OllamaBaseURL, model)
	default:
		log.Fatalf("unsupported AI_PROVIDER=%q", cfg.AIProvider)
	}
	gateway := ai.NewGateway(provider, model, time.Duration(cfg.AITimeoutSeconds)*time.Second, cfg.AIMaxRetries)

	repo := support.NewRepo(gdb)
	return support.NewService(
		repo,
		gateway,
		support.NewGate(cfg.ConfidenceThreshold),
		audit.NewLogger(gdb),
		suggest.NewStore(repo, rds),
		notify.NewPublisher(rds),
		cfg.ContextWindowSize,
	)
}

func main() {
	cfg := config.Load()

	svc := buildService(cfg)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	mainQ := cfg.RabbitQueue
	dlqQ := mainQ + ".dlq"

	// topology matches the publisher; nacked jobs land in the DLQ
	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		log.Fatalf("dlq declare: %v", err)
	}
	if _, err := ch.QueueDeclare(mainQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(mainQ, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", mainQ, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := svc.RunAnalysisJob(ctx, m.JobID); err != nil {
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
