// Command nightshade-sim runs N authorities of a single Nightshade
// consensus instance as goroutines sharing an in-process gossip
// network, and optionally serves the run's status over HTTP.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nsprotocol/nightshade/params"
	"github.com/nsprotocol/nightshade/pkg/api"
	nscrypto "github.com/nsprotocol/nightshade/pkg/crypto"
	"github.com/nsprotocol/nightshade/pkg/gossip"
	"github.com/nsprotocol/nightshade/pkg/nightshade"
	"github.com/nsprotocol/nightshade/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	zl, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nightshade-sim: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()
	sugar := zl.Sugar()

	n := cfg.NumAuthorities
	sugar.Infow("simulation_starting", "n", n, "block_index", cfg.BlockIndex, "message_quota", cfg.MessageQuota)

	classicalSigners := make([]*nscrypto.Signer, n)
	blsSigners := make([]*nscrypto.BLSSigner, n)
	addrs := make([]common.Address, n)
	blsPubKeys := make([]*nscrypto.BLSPubKey, n)

	for i := 0; i < n; i++ {
		cs, err := nscrypto.GenerateKey()
		if err != nil {
			sugar.Fatalw("classical_key_generation_failed", "authority", i, "err", err)
		}
		classicalSigners[i] = cs
		addrs[i] = cs.Address()
		blsSigners[i] = nscrypto.NewBLSSignerFromSeed(blsSeedFor(i))
		blsPubKeys[i] = blsSigners[i].Pubkey()
	}

	// Every authority endorses the same externally-supplied proposal: in
	// this simulator that proposal is always authored by authority 0.
	// Consensus here decides whether to commit it, not who produced it.
	proposal := nightshade.BlockProposal{Author: 0, Hash: nightshade.Hash{0x01}}

	inbox := gossip.NewInbox(n)
	commitments := gossip.NewCommitments()

	engines := make([]*nightshade.Engine, n)
	tasks := make([]*gossip.Task, n)

	for i := 0; i < n; i++ {
		eng, err := nightshade.NewEngine(nightshade.AuthorityId(i), n, proposal, addrs, blsPubKeys, classicalSigners[i], blsSigners[i], sugar)
		if err != nil {
			sugar.Fatalw("engine_init_failed", "authority", i, "err", err)
		}
		engines[i] = eng

		task, err := gossip.NewTask(nightshade.AuthorityId(i), cfg.BlockIndex, eng, classicalSigners[i], addrs, inbox, commitments, cfg.MessageQuota, sugar)
		if err != nil {
			sugar.Fatalw("task_init_failed", "authority", i, "err", err)
		}
		tasks[i] = task
	}

	var server *api.Server
	if cfg.HTTPAddr != "" {
		monitor := &api.Monitor{BlockIndex: cfg.BlockIndex, Engines: engines, Commitments: commitments}
		server = api.NewServer(monitor, sugar)
		go func() {
			if err := server.Start(cfg.HTTPAddr); err != nil {
				sugar.Errorw("api_server_stopped", "err", err)
			}
		}()

		// Wire each task's commit/adversary callbacks to the status
		// server so watchers over WebSocket see events as they happen,
		// not only in the post-run summary below.
		for _, task := range tasks {
			task.OnCommit = func(owner, author nightshade.AuthorityId, hash [32]byte) {
				server.BroadcastCommit(owner, author, hash, time.Now().UnixMilli())
			}
			task.OnAdversary = func(reporter, flagged nightshade.AuthorityId) {
				server.BroadcastAdversary(reporter, flagged, time.Now().UnixMilli())
			}
		}
	}

	results := make(chan runResult, n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			err := tasks[idx].Run()
			results <- runResult{authority: idx, err: err}
		}(i)
	}

	fatal := false
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			fatal = true
			sugar.Errorw("authority_task_failed", "authority", r.authority, "err", r.err)
		}
	}

	// Commit and adversary events were already streamed live via the
	// OnCommit/OnAdversary callbacks above; this is just the summary.
	snap := commitments.Snapshot()
	for owner, rec := range snap {
		sugar.Infow("authority_committed", "owner", owner, "author", rec.Author, "hash", fmt.Sprintf("%x", rec.Hash))
	}

	sugar.Infow("simulation_finished", "committed_count", len(snap), "total", n)

	if fatal {
		os.Exit(1)
	}
}

type runResult struct {
	authority int
	err       error
}

// blsSeedFor derives a distinct deterministic BLS key seed per
// authority index; production deployments would load real key
// material instead.
func blsSeedFor(i int) []byte {
	return []byte{byte(i), byte(i >> 8), 0x4e, 0x53}
}

func buildLogger(cfg params.Config) (*zap.Logger, error) {
	if cfg.LogPath != "" {
		return util.NewLoggerWithFile(cfg.LogPath)
	}
	return util.NewLogger()
}
