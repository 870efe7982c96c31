package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/redis/go-redis/v9"

	"github.com/veritrace/veritrace/anomaly"
	"github.com/veritrace/veritrace/config"
	"github.com/veritrace/veritrace/credential"
	"github.com/veritrace/veritrace/docstore"
	"github.com/veritrace/veritrace/ledger"
	"github.com/veritrace/veritrace/movement"
	"github.com/veritrace/veritrace/notify"
	"github.com/veritrace/veritrace/registry"
	"github.com/veritrace/veritrace/telemetry"
	"github.com/veritrace/veritrace/verify"
)

const demoSecret = "veritrace-demo-secret"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	handler := pterm.NewSlogHandler(&pterm.DefaultLogger)
	logger := slog.New(handler)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	title, err := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("Veri", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("Trace", pterm.FgDarkGray.ToStyle()),
	).Srender()
	if err != nil {
		logger.Error(err.Error())
	}
	pterm.Print("\n" + title)

	secret := cfg.QRSecret
	if secret == "" {
		logger.Warn("VERITRACE_QR_SECRET not set, using demo secret")
		secret = demoSecret
	}

	// Stores and collaborators. Redis and Kafka are optional; the demo runs
	// fully in-memory without them.
	var docs docstore.DocumentStore = docstore.NewMemory()
	var scans telemetry.ScanCounter = telemetry.NewMemoryScanCounter(time.Hour)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		docs = docstore.NewRedis(client, cfg.Redis.KeyPrefix)
		scans = telemetry.NewRedisScanCounter(client, cfg.Redis.KeyPrefix, time.Hour)
		logger.Info("using redis", "addr", cfg.Redis.Addr)
	}
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Kafka.Enabled {
		k := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer k.Close()
		notifier = k
		logger.Info("publishing events to kafka", "topic", cfg.Kafka.Topic)
	}

	adapter := ledger.NewAdapter(docs)
	engine := ledger.NewEngine(adapter)
	reg := registry.NewMemory()
	svc := movement.NewService(engine, reg, notifier)
	verifier := verify.NewEngine(secret, reg, engine, scans,
		anomaly.NewDocLog(docs), cfg.Policy.ToPolicy(), verify.WithNotifier(notifier))

	if err := runDemo(context.Background(), logger, engine, reg, svc, verifier, secret); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

// runDemo walks one product through its full lifecycle and verifies it.
func runDemo(ctx context.Context, logger *slog.Logger, engine *ledger.Engine, reg *registry.Memory, svc *movement.Service, verifier *verify.Engine, secret string) error {
	reg.Add(registry.ProductRecord{
		ProductID:    "PRD-1001",
		OrgID:        "ORG-ACME",
		SKU:          "SKU-4711",
		Name:         "Acme Smart Valve",
		Category:     "industrial",
		RegisteredAt: time.Now().UTC(),
	})

	if _, err := svc.RegisterProduct(ctx, "user-alice", "PRD-1001"); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	logger.Info("product registered", "product", "PRD-1001")

	if _, err := svc.RecordMovement(ctx, "user-alice", "PRD-1001", "ORG-ACME",
		ledger.MovementPayload{From: "WH-A", To: "WH-B", Quantity: 10, SKU: "SKU-4711"}); err != nil {
		return fmt.Errorf("movement failed: %w", err)
	}
	if _, err := svc.RecordTransfer(ctx, "user-alice", "PRD-1001", "ORG-ACME",
		ledger.TransferPayload{From: "ORG-ACME", To: "ORG-RETAIL"}); err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	if _, err := svc.RecordInspection(ctx, "qa-bob", "PRD-1001", "ORG-ACME",
		ledger.QCPayload{Result: "pass", Notes: "seal intact"}); err != nil {
		return fmt.Errorf("inspection failed: %w", err)
	}
	logger.Info("lifecycle recorded", "product", "PRD-1001")

	cred := credential.Issue("PRD-1001", "user-alice", "ORG-ACME")
	token, err := credential.Seal(cred, secret)
	if err != nil {
		return fmt.Errorf("sealing failed: %w", err)
	}
	logger.Info("QR credential sealed", "bytes", len(token))

	result, err := verifier.Verify(ctx, verify.Request{
		Token:      token,
		VerifierID: "user-carol",
		OrgID:      "ORG-RETAIL",
	})
	if err != nil {
		logger.Warn("verify append needs retry", "err", err.Error())
	}

	report, err := engine.VerifyChain(ctx, "PRD-1001")
	if err != nil {
		return fmt.Errorf("chain validation failed: %w", err)
	}

	renderVerdict(result)
	renderChain(report)
	return nil
}
