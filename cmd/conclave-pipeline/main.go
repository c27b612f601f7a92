// Copyright 2025 Certen Protocol
//
// conclave-pipeline runs one mandate through the executive pipeline (§4.8
// Stages 1-3: RFP, Duke proposals, selection) and, on a winning proposal,
// Stage 4 decomposition, printing the full trace as JSON. The teacher has
// no standalone CLI precedent (it is server-only), so flag parsing and
// exit codes follow the plain stdlib `flag` conventions implicit in the
// rest of this module rather than a third-party CLI framework.

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"

	"github.com/archon72/conclave/internal/config"
	"github.com/archon72/conclave/pkg/checkpoint"
	"github.com/archon72/conclave/pkg/decomposition"
	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/executive"
	"github.com/archon72/conclave/pkg/llmport"
	"github.com/archon72/conclave/pkg/registry"
	"github.com/archon72/conclave/pkg/signing"
	"github.com/archon72/conclave/pkg/witness"
)

const pipelineSystemOwner = "executive-pipeline"
const pipelineWitnessID = "pipeline-witness-01"

type runResult struct {
	MandateID     string                               `json:"mandate_id"`
	Pipeline      *executive.PipelineResult            `json:"pipeline"`
	Decomposition []*decomposition.DecompositionResult `json:"decomposition,omitempty"`
}

func main() {
	mandateID := flag.String("mandate-id", "", "mandate id to run (generated if empty)")
	dataDir := flag.String("data-dir", "", "directory for durable checkpoint storage (in-memory if empty)")
	registryDir := flag.String("registry-dir", "", "directory of operator-override registry fixtures (embedded defaults if empty)")
	clearCheckpoints := flag.Bool("clear-checkpoints", false, "invalidate all checkpoints for every stage before running")
	skipDecomposition := flag.Bool("skip-decomposition", false, "stop after Stage 3 selection, do not run Stage 4")
	flag.Parse()

	if *mandateID == "" {
		*mandateID = "mandate-" + uuid.NewString()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🛑 load configuration: %v", err)
	}

	reg, err := loadRegistry(*registryDir)
	if err != nil {
		log.Fatalf("🛑 load registry: %v", err)
	}

	kv := openCheckpointKV(*dataDir)
	clock := time.Now
	store := checkpoint.NewStore(kv, clock)
	counters := checkpoint.NewCounterTracker()
	backoff := checkpoint.BackoffConfig{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay, MaxRetries: cfg.RetryMaxAttempts}

	if *clearCheckpoints {
		for _, stage := range []string{"stage1:rfp", "stage2:proposals", "stage3:selection", "decomposition:tactic"} {
			if err := store.Clear(stage); err != nil {
				log.Printf("⚠️  clear checkpoints for %s: %v", stage, err)
			}
		}
		log.Println("🧹 checkpoints cleared for all stages")
	}

	port := llmport.NewSimulatedPort(nil)
	pipelineSigning := newPipelineSigning(clock)

	ctx := context.Background()
	pipeline := executive.NewPipeline(reg, store, counters, port, backoff)

	log.Printf("🏛️  running executive pipeline for mandate %s", *mandateID)
	result, err := pipeline.Run(ctx, *mandateID)
	if err != nil {
		log.Fatalf("🛑 pipeline run: %v", err)
	}

	out := &runResult{MandateID: *mandateID, Pipeline: result}

	if !*skipDecomposition && len(result.Rounds) > 0 {
		last := result.Rounds[len(result.Rounds)-1]
		if last.Outcome == executive.OutcomeWinnerSelected && last.WinnerDukeID != "" {
			tactics, err := tacticsForWinner(result.Proposals, last.WinnerDukeID, reg)
			if err != nil {
				log.Printf("⚠️  decomposition skipped: %v", err)
			} else {
				for _, tac := range tactics {
					pipelineSigning.registerOwner(tac.ID)
				}
				writer := pipelineSigning.newWriter()
				decomposer := decomposition.NewDecomposer(store, port, backoff, writer)
				log.Printf("🧩 decomposing %d tactic(s) from Duke %s", len(tactics), last.WinnerDukeID)
				decResults, err := decomposer.DecomposeAll(ctx, tactics, reg)
				if err != nil {
					log.Printf("⚠️  decomposition run: %v", err)
				}
				out.Decomposition = decResults
			}
		} else {
			log.Printf("ℹ️  no winning proposal (outcome=%s), skipping decomposition", last.Outcome)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("🛑 encode result: %v", err)
	}
}

func loadRegistry(dir string) (*registry.Registry, error) {
	if dir == "" {
		return registry.Load()
	}
	return registry.LoadFromDir(dir)
}

// openCheckpointKV opens durable on-disk storage under dataDir when given,
// falling back to an in-memory KV for ad hoc runs (the common case for a
// one-shot CLI invocation rather than a long-running service).
func openCheckpointKV(dataDir string) eventstore.KV {
	if dataDir == "" {
		return eventstore.NewMemoryKV()
	}
	db, err := dbm.NewGoLevelDB("conclave-pipeline-checkpoints", dataDir)
	if err != nil {
		log.Printf("⚠️  open checkpoint store at %s: %v (falling back to in-memory, NOT durable)", dataDir, err)
		return eventstore.NewMemoryKV()
	}
	return eventstore.NewCometBFTKV(db)
}

// pipelineSigning holds the one ed25519 keypair this CLI signs every event
// with, and the registry that maps owner IDs to it. decomposition.Decomposer
// appends events under the tactic's own ID as owner (the same dynamic-owner
// pattern pkg/activation and pkg/settlement already use for cluster IDs), so
// those owners cannot all be known up front — registerOwner lets callers add
// one the moment an ID is discovered, before anything tries to sign as it.
type pipelineSigning struct {
	registry *signing.Registry
	pub      ed25519.PublicKey
	priv     ed25519.PrivateKey
	clock    func() time.Time
}

// newPipelineSigning builds a single-witness signing setup purely so
// decomposition's ProvenanceWeakMapping/AmbiguousTactic events have somewhere
// to land; this CLI is not the constitutional system of record (cmd/conclave
// is), so there is no halt manager or multi-witness quorum here, only enough
// machinery to satisfy decomposition.EventAppender.
func newPipelineSigning(clock func() time.Time) *pipelineSigning {
	reg := signing.NewRegistry()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		log.Fatalf("🛑 generate pipeline signing key: %v", err)
	}
	ps := &pipelineSigning{registry: reg, pub: pub, priv: priv, clock: clock}
	for _, owner := range []string{pipelineSystemOwner, pipelineWitnessID} {
		ps.registerOwner(owner)
	}
	return ps
}

// registerOwner adds owner as a valid signing identity from now on, reusing
// the pipeline's single keypair. Idempotent re-registration (the same tactic
// ID appearing twice) is harmless: signing.Registry.Add just appends another
// active window.
func (ps *pipelineSigning) registerOwner(owner string) {
	if err := ps.registry.Add(signing.KeyRecord{
		OwnerID: owner, KeyID: "pipeline-bootstrap", PublicKey: ps.pub, PrivateKey: ps.priv, ActiveFrom: ps.clock(),
	}); err != nil {
		log.Fatalf("🛑 register pipeline key for %s: %v", owner, err)
	}
}

func (ps *pipelineSigning) newWriter() *eventstore.Writer {
	pool := witness.NewPool(1)
	pool.Register(pipelineWitnessID)
	selector := witness.NewSelector(pool, witness.NewRegistrySigner(ps.registry, ps.clock))

	signingPort := signing.NewEd25519Signer(ps.registry, true)
	store := eventstore.NewStore(eventstore.NewMemoryKV())
	halt := eventstore.NewHaltManager(eventstore.NewMemoryKV(), eventstore.NewMemoryKV())
	return eventstore.NewWriter(store, halt, signingPort, selector, ps.clock, eventstore.WriterConfig{WitnessFloor: 1})
}

// tacticsForWinner collects every Tactic from the winning Duke's proposal,
// resolving each one's decomposition domain from the Duke's registry entry
// (a Duke proposes within one fixed domain, §4.8 Stage 2).
func tacticsForWinner(proposals []executive.DukeProposal, winnerDukeID string, reg *registry.Registry) ([]decomposition.TacticInput, error) {
	var domain string
	found := false
	for _, d := range reg.Dukes {
		if d.ID == winnerDukeID {
			domain = d.Domain
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("winning duke %s not found in registry", winnerDukeID)
	}

	for _, p := range proposals {
		if p.DukeID != winnerDukeID {
			continue
		}
		tactics := make([]decomposition.TacticInput, 0, len(p.Tactics))
		for _, t := range p.Tactics {
			tactics = append(tactics, decomposition.TacticInput{ID: t.ID, DeliverableID: t.DeliverableID, Domain: domain})
		}
		return tactics, nil
	}
	return nil, fmt.Errorf("winning duke %s has no proposal in this run", winnerDukeID)
}
