// Package main is the liquidity mesh router's composition root: it wires
// the routing core (cache, providers, orchestrator, router, scorer,
// pipeline, driver) onto an HTTP mux, plus the optional supplemented
// surfaces (WebSocket live quotes, NATS deposit eventing, Postgres audit
// ledger, Neo4j routing telemetry, gRPC mirror).
//
// Grounded on the teacher's cmd/server/main.go: single flat main(), plain
// http.NewServeMux(), signal-driven graceful shutdown with a 5s deadline.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/plm/liquidity-mesh-router/api/middleware"
	"github.com/plm/liquidity-mesh-router/auth"
	"github.com/plm/liquidity-mesh-router/messaging/nats"
	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/driver"
	"github.com/plm/liquidity-mesh-router/routing/eventing"
	"github.com/plm/liquidity-mesh-router/routing/execsim"
	"github.com/plm/liquidity-mesh-router/routing/grpcapi"
	"github.com/plm/liquidity-mesh-router/routing/httpapi"
	"github.com/plm/liquidity-mesh-router/routing/ledger"
	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/routing/orchestrator"
	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/providers"
	"github.com/plm/liquidity-mesh-router/routing/receipts"
	"github.com/plm/liquidity-mesh-router/routing/router"
	"github.com/plm/liquidity-mesh-router/routing/scorer"
	"github.com/plm/liquidity-mesh-router/routing/telemetry"
	"github.com/plm/liquidity-mesh-router/routing/ws"
	"github.com/plm/liquidity-mesh-router/storage/postgres"
	redisstore "github.com/plm/liquidity-mesh-router/storage/redis"
)

func main() {
	log.Println("🚀 starting liquidity mesh router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := redisstore.NewClient(ctx, redisstore.DefaultConfig())
	if err != nil {
		log.Fatalf("❌ redis connect failed: %v", err)
	}

	store := cache.NewRedisStore(redisClient.Redis())
	edgeCache := cache.NewEdgeCache(store)

	fastProviders, slowProviders := buildProviders()
	allProviders := append(append([]providers.QuoteProvider{}, fastProviders...), slowProviders...)

	orch := orchestrator.New(edgeCache, allProviders, orchestrator.DefaultConfig(), redisClient.CircuitBreaker())
	go orch.Start(ctx)

	rtr := router.New(edgeCache)
	scr := scorer.New(scorer.DefaultVolatilityParams(), nil)
	pipe := pipeline.New(store, pipeline.DefaultAccountDetails())

	auditLedger := buildLedger(ctx)
	defer auditLedger.Close()
	routingTelemetry := buildTelemetry(ctx)

	execDriver := driver.New(pipe, execsim.NewMockExecutor(), 50, auditLedger)
	defer execDriver.Stop()

	eventPublisher, eventConsumer := buildEventing(ctx, execDriver)
	if eventConsumer != nil {
		eventConsumer.Start()
		defer eventConsumer.Stop()
	}

	authMiddleware := buildAuth()
	receiptGen := buildReceiptGenerator()
	handlers := httpapi.New(edgeCache, rtr, scr, pipe, execDriver, auditLedger, routingTelemetry, eventPublisher, authMiddleware, redisClient.RateLimiter(), receiptGen, redisClient.CircuitBreaker(), orch)
	wsHandler := ws.New(rtr, scr, pipe)

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("/routing/ws", wsHandler.ServeHTTP)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := auditLedger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("ledger unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    ":8080",
		Handler: mux,
	}

	go func() {
		log.Println("📡 HTTP server listening on :8080")
		log.Println("   - Quote:     POST /routing/quote/v2")
		log.Println("   - Execute:   POST /routing/execute/v2")
		log.Println("   - Webhook:   POST /routing/webhooks/deposit")
		log.Println("   - Status:    GET  /routing/status")
		log.Println("   - Live quote: GET /routing/ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ http server error: %v", err)
		}
	}()

	grpcServer := buildGRPCServer(rtr, scr, pipe)
	if grpcServer != nil {
		go func() {
			log.Println("📡 gRPC mirror server listening on :50061")
			if err := grpcServer.Start(); err != nil {
				log.Printf("⚠️  gRPC server stopped: %v", err)
			}
		}()
		defer grpcServer.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  http server shutdown error: %v", err)
	}
	log.Println("stopped")
}

// buildProviders seeds a fixed static provider plus, when configured, live
// FX providers. The static provider guarantees the cache is never empty in
// local/dev runs without any network dependency (§4.2).
func buildProviders() (fast, slow []providers.QuoteProvider) {
	feeBps := 10
	static := providers.NewStaticProvider("static:seed", []*model.EdgeQuote{
		{VenueID: "static:seed", VenueKind: model.VenueFX, FromToken: "USD", ToToken: "BRL", AmountIn: 1, AmountOut: 5.4, FeeBps: &feeBps},
		{VenueID: "static:seed", VenueKind: model.VenueFX, FromToken: "BRL", ToToken: "USD", AmountIn: 5.4, AmountOut: 1, FeeBps: &feeBps},
		{VenueID: "static:seed", VenueKind: model.VenueFX, FromToken: "USD", ToToken: "MXN", AmountIn: 1, AmountOut: 17.0, FeeBps: &feeBps},
		{VenueID: "static:seed", VenueKind: model.VenueFX, FromToken: "USD", ToToken: "USDC", AmountIn: 1, AmountOut: 1, FeeBps: &feeBps},
		{VenueID: "static:seed", VenueKind: model.VenueFX, FromToken: "USDC", ToToken: "USD", AmountIn: 1, AmountOut: 1, FeeBps: &feeBps},
	})
	fast = append(fast, static)

	if apiKey := os.Getenv("FX_API_KEY"); apiKey != "" {
		pairs := []providers.Pair{{From: "USD", To: "BRL"}, {From: "USD", To: "MXN"}, {From: "USD", To: "EUR"}}
		slow = append(slow, providers.NewFXBatchProvider("fxbatch:exchangerate", apiKey, "USD", pairs))
		slow = append(slow, providers.NewFXSinglePairProvider("fxsingle:exchangerate", apiKey, pairs))
	}

	if dexURL := os.Getenv("DEX_AGGREGATOR_URL"); dexURL != "" {
		src, err := providers.NewHTTPDEXSource("aggregator", dexURL)
		if err != nil {
			log.Printf("⚠️  dex aggregator url rejected, dex provider disabled: %v", err)
		} else {
			pairs := []providers.Pair{{From: "USD", To: "USDC"}, {From: "USDC", To: "USD"}}
			fast = append(fast, providers.NewDEXProvider("dex:aggregator", []providers.DEXQuoteSource{src}, pairs))
		}
	}

	return fast, slow
}

func buildLedger(ctx context.Context) *ledger.Ledger {
	if os.Getenv("POSTGRES_HOST") == "" {
		log.Println("ℹ️  POSTGRES_HOST not set, audit ledger disabled")
		return nil
	}
	client, err := postgres.NewClient(ctx, postgres.DefaultConfig())
	if err != nil {
		log.Printf("⚠️  postgres connect failed, audit ledger disabled: %v", err)
		return nil
	}
	return ledger.New(client)
}

func buildTelemetry(ctx context.Context) *telemetry.Sink {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		log.Println("ℹ️  NEO4J_URI not set, routing telemetry disabled")
		return telemetry.Disabled()
	}
	user := os.Getenv("NEO4J_USER")
	pass := os.Getenv("NEO4J_PASSWORD")
	drv, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		log.Printf("⚠️  neo4j driver failed, routing telemetry disabled: %v", err)
		return telemetry.Disabled()
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		log.Printf("⚠️  neo4j unreachable, routing telemetry disabled: %v", err)
		return telemetry.Disabled()
	}
	return telemetry.New(drv, "neo4j")
}

func buildEventing(ctx context.Context, d *driver.Driver) (*eventing.Publisher, *eventing.Consumer) {
	urls := os.Getenv("NATS_URLS")
	if urls == "" {
		log.Println("ℹ️  NATS_URLS not set, deposit-confirmed eventing disabled (webhook advances synchronously)")
		return nil, nil
	}
	cfg := nats.DefaultConfig()
	cfg.URLs = urls
	client, err := nats.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("⚠️  nats connect failed, deposit-confirmed eventing disabled: %v", err)
		return nil, nil
	}
	if err := eventing.SetupStream(ctx, client); err != nil {
		log.Printf("⚠️  nats stream setup failed, deposit-confirmed eventing disabled: %v", err)
		return nil, nil
	}
	consumer, err := eventing.NewConsumer(ctx, client, d, eventing.DefaultConfig())
	if err != nil {
		log.Printf("⚠️  nats consumer setup failed, deposit-confirmed eventing disabled: %v", err)
		return nil, nil
	}
	return eventing.NewPublisher(client), consumer
}

// buildAuth gates /routing/execute/v2 behind a PASETO bearer token once
// AUTH_REQUIRED is set; absent that, execution stays open for local/dev use.
func buildAuth() *middleware.AuthMiddleware {
	if os.Getenv("AUTH_REQUIRED") != "true" {
		log.Println("ℹ️  AUTH_REQUIRED not set, /routing/execute/v2 accepts unauthenticated requests")
		return nil
	}
	tokenManager, err := auth.NewTokenManager(auth.DefaultTokenConfig())
	if err != nil {
		log.Printf("⚠️  token manager setup failed, /routing/execute/v2 accepts unauthenticated requests: %v", err)
		return nil
	}
	return middleware.NewAuthMiddleware(tokenManager)
}

func buildReceiptGenerator() *receipts.Generator {
	name := os.Getenv("RECEIPT_COMPANY_NAME")
	if name == "" {
		name = "Liquidity Mesh Router"
	}
	return receipts.NewGenerator(name)
}

func buildGRPCServer(r *router.Router, s *scorer.Scorer, p *pipeline.Pipeline) *grpcapi.Server {
	if os.Getenv("GRPC_DISABLED") == "true" {
		return nil
	}
	srv, err := grpcapi.NewServer(grpcapi.DefaultServerConfig(), r, s, p)
	if err != nil {
		log.Printf("⚠️  grpc server setup failed, mirror surface disabled: %v", err)
		return nil
	}
	return srv
}
