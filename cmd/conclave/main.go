// Copyright 2025 Certen Protocol
//
// Conclave Execution Core service entrypoint. Phased startup (signing keys,
// event store, validator bus, observer API) with per-component health
// tracking and graceful shutdown, grounded on main.go's startValidator/main
// shape: optional subsystems are nil-gated rather than fatal, and every
// phase logs its own outcome before the next begins.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/archon72/conclave/internal/config"
	"github.com/archon72/conclave/pkg/anchor"
	"github.com/archon72/conclave/pkg/audit"
	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/firestore"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/metrics"
	"github.com/archon72/conclave/pkg/observer"
	"github.com/archon72/conclave/pkg/signing"
	"github.com/archon72/conclave/pkg/validation"
	"github.com/archon72/conclave/pkg/witness"
)

// fixedWitnessIDs is the bootstrap witness roster for a single-process
// deployment. A production deployment would instead source this from the
// same operator-driven ceremony that provisions per-archon signing keys;
// this list exists so the witness pool and anchor builder have something
// concrete to attest with on first run.
var fixedWitnessIDs = []string{
	"archon-witness-01", "archon-witness-02", "archon-witness-03",
	"archon-witness-04", "archon-witness-05",
}

// componentHealth is the mutex-guarded health-status aggregate surfaced at
// /health and /health/detailed, mirroring main.go's HealthStatus: one
// settable field per optional subsystem, an overall status derived from
// all of them, and a timestamped JSON view.
type componentHealth struct {
	mu        sync.RWMutex
	startedAt time.Time

	eventStore string // ok | degraded | error
	database   string // ok | disabled | error
	firestore  string // ok | disabled | error
	anchor     string // ok | degraded

	lastAnchorErr string
}

func newComponentHealth() *componentHealth {
	return &componentHealth{startedAt: time.Now(), eventStore: "ok", database: "disabled", firestore: "disabled", anchor: "ok"}
}

func (h *componentHealth) setDatabase(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.database = status
}

func (h *componentHealth) setFirestore(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.firestore = status
}

func (h *componentHealth) setEventStore(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventStore = status
}

func (h *componentHealth) setAnchor(status string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.anchor = status
	if err != nil {
		h.lastAnchorErr = err.Error()
	} else {
		h.lastAnchorErr = ""
	}
}

func (h *componentHealth) overall() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.eventStore == "error" || h.database == "error" || h.firestore == "error" {
		return "error"
	}
	if h.anchor == "degraded" {
		return "degraded"
	}
	return "ok"
}

func (h *componentHealth) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":%q}`, h.overall())
}

func (h *componentHealth) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":%q,"uptime_seconds":%d,"event_store":%q,"database":%q,"firestore":%q,"anchor":%q,"last_anchor_error":%q}`,
		h.overall(), int(time.Since(h.startedAt).Seconds()), h.eventStore, h.database, h.firestore, h.anchor, h.lastAnchorErr)
}

func main() {
	help := flag.Bool("help", false, "print usage and exit")
	flag.Parse()
	if *help {
		fmt.Println("conclave: Archon 72 Conclave Execution Core")
		fmt.Println("Environment variables recognized: see internal/config.Config")
		return
	}

	log.Println("🚀 Conclave Execution Core starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🛑 load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("🛑 configuration invalid: %v", err)
	}
	log.Printf("⚙️  mode=%s environment=%s data_dir=%s", cfg.Mode(), cfg.Environment, cfg.DataDir)

	health := newComponentHealth()
	clock := time.Now

	// --- Phase 1: signing keys ---------------------------------------
	registry := signing.NewRegistry()
	priv, err := loadOrGenerateEd25519Key(cfg.DataDir)
	if err != nil {
		log.Fatalf("🛑 signing key bootstrap: %v", err)
	}
	bootstrapOwners := append([]string{
		cfg.WitnessArchonID, cfg.SecretaryTextArchonID, cfg.SecretaryJSONArchonID,
		"reconciliation-gate", "audit-breach-registry", "audit-scanner",
	}, fixedWitnessIDs...)
	if err := bootstrapSigningKeys(registry, priv, bootstrapOwners, clock()); err != nil {
		log.Fatalf("🛑 signing key registration: %v", err)
	}
	log.Printf("🔐 signing keys bootstrapped for %d identities", len(bootstrapOwners))

	// --- Phase 2: durable storage -------------------------------------
	primaryKV, secondaryKV := openEventKV(cfg.DataDir, health)
	store := eventstore.NewStore(primaryKV)
	halt := eventstore.NewHaltManager(primaryKV, secondaryKV)

	checkpointStore := checkpoint.NewStore(primaryKV, clock)
	counterTracker := checkpoint.NewCounterTracker()
	_ = checkpointStore
	_ = counterTracker

	// --- Phase 3: witness pool and selection --------------------------
	pool := witness.NewPool(3)
	for _, id := range fixedWitnessIDs {
		pool.Register(id)
	}
	witnessSigner := witness.NewRegistrySigner(registry, clock)
	witnessVerifier := witness.NewVerifier(registry, clock)
	selector := witness.NewSelector(pool, witnessSigner)

	// --- Phase 4: event-store writer/verifier -------------------------
	signingPort := signing.NewEd25519Signer(registry, cfg.DevMode)
	writer := eventstore.NewWriter(store, halt, signingPort, selector, clock, eventstore.WriterConfig{WitnessFloor: cfg.WitnessFloor})
	verifier := eventstore.NewVerifier(store, signingPort, witnessVerifier)
	log.Println("🗄️  event store ready")

	// --- Phase 5: anchor cycle -----------------------------------------
	blsKeystore := anchor.NewBLSKeystore()
	for _, id := range fixedWitnessIDs {
		if _, err := blsKeystore.GenerateForWitness(id, "conclave"); err != nil {
			log.Fatalf("🛑 anchor BLS key for %s: %v", id, err)
		}
	}
	anchorRepo := anchor.NewKVRepository(primaryKV)
	anchorBuilder := anchor.NewBuilder(store, anchorRepo, anchor.StaticWitnessSet(fixedWitnessIDs), blsKeystore)
	anchorSource := anchor.NewSource(store, anchorRepo)
	log.Println("🔗 anchor cycle wired")

	// --- Phase 6: audit (optional Postgres backing) --------------------
	counters := &audit.EventScanCounters{Store: store}
	breachRegistry, auditor, snapshotScheduler, dbClient := wireAudit(cfg, writer, counters, clock, health)
	if dbClient != nil {
		defer func() {
			if err := dbClient.Close(); err != nil {
				log.Printf("⚠️  audit database close: %v", err)
			}
		}()
	}

	// --- Phase 7: metrics ------------------------------------------------
	promReg := prometheus.NewRegistry()
	metricsRegistry, err := metrics.NewRegistry(promReg)
	if err != nil {
		log.Fatalf("🛑 metrics registry: %v", err)
	}

	// --- Phase 8: validator bus -----------------------------------------
	bus := validation.NewBus(256)
	breaker := validation.NewCircuitBreaker(5, 30*time.Second, 30*time.Second, clock)
	breaker.OnOpen(func() {
		log.Println("⚠️  validator bus circuit breaker OPEN, falling back to synchronous validation")
	})
	breaker.OnRecover(func() { log.Println("✅ validator bus circuit breaker recovered") })

	port := llmport.NewSimulatedPort(nil)
	workers := map[string]*validation.Worker{
		validation.RoleSecretaryText: validation.NewWorker(validation.RoleSecretaryText, port, bus, clock),
		validation.RoleSecretaryJSON: validation.NewWorker(validation.RoleSecretaryJSON, port, bus, clock),
		validation.RoleWitness:       validation.NewWorker(validation.RoleWitness, port, bus, clock),
	}
	tally := &validation.EventTally{Store: store}
	aggregator := validation.NewAggregator(writer, tally, nil, cfg.VoteValidationMaxAttempts, clock)
	dispatcher := validation.NewBusDispatcher(bus, breaker, workers, aggregator)
	aggregator.SetDispatcher(dispatcher)
	reconGate := validation.NewReconciliationGate(aggregator, writer, 10*time.Millisecond)
	reconGate.OnWait = metricsRegistry.ObserveReconciliationWait
	log.Println("📡 validator bus ready")

	// --- Phase 9: deliberation engine ------------------------------------
	engine := deliberation.NewEngine(writer, clock)

	// --- Phase 10: observer read API --------------------------------------
	reader := &observer.Reader{Store: store, Halt: halt, Verifier: verifier, Clock: clock}
	proofService := &observer.ProofService{Source: anchorSource}
	subStore := wireSubscriptionStore(cfg, health)
	obsHandlers := observer.NewHandlers(reader, proofService, subStore, nil)
	obsDispatcher := observer.NewDispatcher(subStore, nil)
	log.Println("📦 observer read API ready")

	// --- HTTP surfaces -----------------------------------------------------
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.handleHealth)
	mux.HandleFunc("/health/detailed", health.handleHealthDetailed)
	mux.HandleFunc("/api/v1/observer/events", obsHandlers.HandleStreamEvents)
	mux.HandleFunc("/api/v1/observer/head", obsHandlers.HandleGetHead)
	mux.HandleFunc("/api/v1/observer/proofs/", obsHandlers.HandleGetProof)
	mux.HandleFunc("/api/v1/observer/reconcile", obsHandlers.HandleReconcileGap)
	mux.HandleFunc("/api/v1/observer/subscriptions", obsHandlers.HandleSubscribe)
	mux.HandleFunc("/api/v1/observer/subscriptions/", obsHandlers.HandleUnsubscribe)

	motionAPI := &motionHandlers{
		engine:     engine,
		aggregator: aggregator,
		dispatcher: dispatcher,
		reconGate:  reconGate,
		tally:      tally,
		breaker:    breaker,
		clock:      clock,
		timeout:    cfg.ReconciliationTimeout,
	}
	motionAPI.register(mux)

	httpServer := &http.Server{Addr: cfg.ObserverListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler(promReg))
	metricsServer := &http.Server{Addr: cfg.MetricsListenAddr, Handler: metricsMux}

	ctx, cancel := context.WithCancel(context.Background())

	for id, w := range workers {
		w := w
		id := id
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("⚠️  validator worker %s stopped: %v", id, err)
			}
		}()
	}

	poller := metrics.NewPoller(metricsRegistry, pool, counters, 15*time.Second, nil,
		bus.PendingValidation, bus.ValidationRequest, bus.ValidationResult, bus.Validated, bus.DeadLetter)
	go poller.Run(ctx)

	go runAnchorCycle(ctx, anchorBuilder, health, 5*time.Minute)
	go subscriptionFanout(ctx, store, obsDispatcher, 500*time.Millisecond)
	if breachRegistry != nil && auditor != nil {
		go runAuditEscalation(ctx, breachRegistry, auditor, time.Hour)
	}
	if snapshotScheduler != nil {
		go runCostSnapshots(ctx, snapshotScheduler, 24*time.Hour)
	}

	go func() {
		log.Printf("📡 observer API listening on %s", cfg.ObserverListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("🛑 observer server error: %v", err)
		}
	}()
	go func() {
		log.Printf("📡 metrics listening on %s", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("🛑 metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 shutdown signal received, draining")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  observer server shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  metrics server shutdown: %v", err)
	}

	log.Println("✅ Conclave Execution Core stopped")
}

// openEventKV opens the durable primary event-store channel plus an
// independent secondary channel for the dual-channel halt (§4.3), falling
// back to in-memory KVs (and a degraded health mark) if the on-disk store
// cannot be opened, mirroring main.go's DatabaseRequired-gated fallback.
func openEventKV(dataDir string, health *componentHealth) (eventstore.KV, eventstore.KV) {
	primary, err := dbm.NewGoLevelDB("conclave-events", dataDir)
	if err != nil {
		log.Printf("⚠️  open event store at %s: %v (falling back to in-memory, NOT durable)", dataDir, err)
		health.setEventStore("degraded")
		return eventstore.NewMemoryKV(), eventstore.NewMemoryKV()
	}
	secondary, err := dbm.NewGoLevelDB("conclave-halt", dataDir)
	if err != nil {
		log.Printf("⚠️  open halt channel at %s: %v (falling back to in-memory, NOT durable)", dataDir, err)
		health.setEventStore("degraded")
		return eventstore.NewCometBFTKV(primary), eventstore.NewMemoryKV()
	}
	return eventstore.NewCometBFTKV(primary), eventstore.NewCometBFTKV(secondary)
}

// wireAudit brings up the Postgres-backed breach/violation/snapshot
// subsystem when DATABASE_URL is configured; otherwise every return is nil
// and the periodic escalation goroutines are simply not started, the way
// main.go treats its whole batch subsystem as optional when dbClient is nil.
func wireAudit(cfg *config.Config, writer *eventstore.Writer, counters audit.Counters, clock func() time.Time, health *componentHealth) (*audit.BreachRegistry, *audit.Auditor, *audit.SnapshotScheduler, *audit.Client) {
	if cfg.DatabaseURL == "" {
		log.Println("⚠️  DATABASE_URL not set: breach/violation/cost-snapshot tracking disabled")
		return nil, nil, nil, nil
	}

	client, err := audit.NewClient(cfg.DatabaseURL, audit.WithLogger(log.New(log.Writer(), "[Audit] ", log.LstdFlags)))
	if err != nil {
		log.Printf("⚠️  audit database connect failed: %v (continuing without audit tracking)", err)
		health.setDatabase("error")
		return nil, nil, nil, nil
	}
	health.setDatabase("ok")

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.MigrateUp(migrateCtx); err != nil {
		log.Printf("⚠️  audit migrations failed: %v (continuing with existing schema)", err)
	}

	breachRepo := audit.NewPostgresBreachRepository(client)
	violationRepo := audit.NewPostgresViolationRepository(client)
	snapshotRepo := audit.NewPostgresSnapshotRepository(client)

	breachRegistry := &audit.BreachRegistry{Events: writer, Repo: breachRepo, IDGen: uuid.NewString, Clock: clock}
	auditor := &audit.Auditor{Events: writer, Repo: violationRepo, Breaches: breachRegistry, IDGen: uuid.NewString, Clock: clock}
	snapshotScheduler := &audit.SnapshotScheduler{Counters: counters, Repo: snapshotRepo, Clock: clock}

	log.Println("🗄️  audit database connected, breach/violation/cost-snapshot tracking enabled")
	return breachRegistry, auditor, snapshotScheduler, client
}

// wireSubscriptionStore builds the observer push-notification registry,
// backed by Firestore when enabled, in-memory otherwise.
func wireSubscriptionStore(cfg *config.Config, health *componentHealth) observer.SubscriptionStore {
	if !cfg.FirestoreEnabled {
		return observer.NewMemorySubscriptionStore()
	}
	client, err := firestore.NewClient(context.Background(), &firestore.ClientConfig{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentialsFile,
		Enabled:         true,
	})
	if err != nil {
		log.Printf("⚠️  firestore client init failed: %v (falling back to in-memory subscriptions)", err)
		health.setFirestore("error")
		return observer.NewMemorySubscriptionStore()
	}
	health.setFirestore("ok")
	return observer.NewFirestoreSubscriptionStore(client, nil)
}

// runAnchorCycle periodically closes a new anchor snapshot. ErrNoNewEvents
// is the expected steady state between cycles with no chain growth and is
// not logged as a failure.
func runAnchorCycle(ctx context.Context, builder *anchor.Builder, health *componentHealth, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := builder.CloseSnapshot(ctx)
			switch err {
			case nil:
				health.setAnchor("ok", nil)
			case anchor.ErrNoNewEvents:
				// nothing to anchor this cycle
			default:
				log.Printf("⚠️  anchor cycle failed: %v", err)
				health.setAnchor("degraded", err)
			}
		}
	}
}

// subscriptionFanout walks newly-committed events and fans each out to
// matching webhook subscriptions. It tracks its own read cursor in memory;
// a restart simply resumes from the current chain tip rather than
// redelivering history, consistent with push notifications being
// best-effort (§4.12, §5).
func subscriptionFanout(ctx context.Context, store *eventstore.Store, dispatcher *observer.Dispatcher, every time.Duration) {
	var lastSeq int64
	if head, err := store.Head(); err == nil && head != nil {
		lastSeq = head.Sequence
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, err := store.Head()
			if err != nil || head == nil {
				continue
			}
			for seq := lastSeq + 1; seq <= head.Sequence; seq++ {
				ev, err := store.GetEvent(seq)
				if err != nil {
					break
				}
				if err := dispatcher.Dispatch(ctx, ev); err != nil {
					log.Printf("⚠️  subscription fan-out for sequence %d: %v", seq, err)
				}
				lastSeq = seq
			}
		}
	}
}

// runAuditEscalation periodically escalates overdue breaches and
// unresolved violations (§4.13, §4.14's automatic 7-day clocks).
func runAuditEscalation(ctx context.Context, breaches *audit.BreachRegistry, auditor *audit.Auditor, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := breaches.EscalateOverdue(ctx); err != nil {
				log.Printf("⚠️  breach escalation: %v", err)
			} else if n > 0 {
				log.Printf("⚠️  escalated %d overdue breach(es) to the cessation agenda", n)
			}
			if n, err := auditor.EscalateOverdue(ctx); err != nil {
				log.Printf("⚠️  violation escalation: %v", err)
			} else if n > 0 {
				log.Printf("⚠️  escalated %d unremediated violation(s) into a breach", n)
			}
		}
	}
}

// runCostSnapshots takes a cost snapshot at each cycle boundary. cycleID is
// derived from the boundary timestamp; a deployment driving real conclave
// cycles would instead pass the cycle's own identifier.
func runCostSnapshots(ctx context.Context, scheduler *audit.SnapshotScheduler, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycleID := fmt.Sprintf("cycle-%d", time.Now().Unix())
			if _, err := scheduler.TakeSnapshot(ctx, cycleID); err != nil {
				log.Printf("⚠️  cost snapshot: %v", err)
			}
		}
	}
}
