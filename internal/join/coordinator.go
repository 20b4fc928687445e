package join

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	crierrors "github.com/critdb/crit/internal/errors"
	"github.com/critdb/crit/internal/locking"
	"github.com/critdb/crit/internal/metrics"
	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/server"
	"github.com/critdb/crit/internal/transport"
)

// Config parameterizes one call to Join.
type Config struct {
	LockKey string
	Locker  locking.Locker
	Dir     *Directory
	Logger  *zap.Logger
	Met     *metrics.Metrics
	// Checkpoint, present only so tests can observe progress, is invoked
	// after each protocol step completes. Never used by production callers.
	Checkpoint func(step string)
}

func (c Config) checkpoint(step string) {
	if c.Checkpoint != nil {
		c.Checkpoint(step)
	}
}

// Join merges local's and remote's segments into one cluster-wide segment:
// it locks the cluster, gathers and validates both segments' membership,
// pauses every member, dumps and reconciles their contents, mints fresh
// aliases and a new join reference, installs the merged state everywhere,
// and unpauses on every exit path.
func Join(ctx context.Context, cfg Config, local, remote *server.Server) error {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(zap.String("local", string(local.Address())), zap.String("remote", string(remote.Address())))

	start := time.Now()
	if cfg.Met != nil {
		cfg.Met.RecordJoinAttempt(local.TableName())
	}

	err := runJoin(ctx, cfg, logger, local, remote)

	elapsed := time.Since(start).Seconds()
	if cfg.Met != nil {
		if err != nil {
			cfg.Met.RecordJoinFailure(local.TableName(), reasonTag(err), elapsed)
		} else {
			cfg.Met.RecordJoinSuccess(local.TableName(), elapsed)
		}
	}
	return err
}

func reasonTag(err error) string {
	if ce, ok := err.(*crierrors.CritError); ok {
		return ce.Code.String()
	}
	return "unknown"
}

func runJoin(ctx context.Context, cfg Config, logger *zap.Logger, local, remote *server.Server) error {
	// Step 1: sanity.
	if local.Address() == remote.Address() {
		return crierrors.SamePID(string(local.Address()))
	}
	for _, p := range local.OtherPids() {
		if p == remote.Address() {
			return crierrors.AlreadyJoined(string(local.Address()), string(remote.Address()))
		}
	}

	// Step 2: acquire the cluster-wide lock. A first failed attempt is
	// retried once; every attempt after that re-enters the acquisition loop
	// without a retry budget, looping until ctx is done, only logging each
	// further attempt.
	lease, err := acquireWithReentry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(relCtx); err != nil {
			logger.Warn("failed to release join lock", zap.Error(err))
		}
	}()

	// Step 3: gather peer lists.
	locPids := append([]transport.Address{local.Address()}, local.OtherPids()...)
	remPids := append([]transport.Address{remote.Address()}, remote.OtherPids()...)
	if overlap(locPids, remPids) {
		return crierrors.OverlappingSegments()
	}

	locMembers, err := cfg.Dir.resolveAll(locPids)
	if err != nil {
		return crierrors.JoinStepFailed("gather_peers", err)
	}
	remMembers, err := cfg.Dir.resolveAll(remPids)
	if err != nil {
		return crierrors.JoinStepFailed("gather_peers", err)
	}
	cfg.checkpoint("gather_peers")

	// Step 4: fully-connected check.
	if err := checkFullyConnected(locMembers, locPids); err != nil {
		return err
	}
	if err := checkFullyConnected(remMembers, remPids); err != nil {
		return err
	}
	cfg.checkpoint("fully_connected")

	allMembers := append(append([]*server.Server{}, locMembers...), remMembers...)

	// Step 5: pause all. Track which members actually got paused so step 12
	// only unpauses those, even on a partial failure.
	pausedTokens := make(map[*server.Server]server.PauseToken)
	pauseCtx, cancelPause := context.WithCancel(context.Background())
	defer cancelPause()
	for _, m := range allMembers {
		pausedTokens[m] = m.Pause(pauseCtx)
	}
	defer unpauseAll(logger, pausedTokens)
	cfg.checkpoint("pause_all")

	// Step 6: synchronize.
	local.Sync()
	remote.Sync()
	cfg.checkpoint("sync")

	// Step 7: dumps (local-optimized path: RemoteDump is Dump for a
	// co-resident server, so there's nothing extra to do here beyond
	// calling the right method name).
	localDump := local.RemoteDump()
	remoteDump := remote.RemoteDump()
	cfg.checkpoint("dumps")

	// Step 8: re-check fully connected using the gathered dumps' implied
	// membership — in this in-process model membership is read live from
	// each server rather than inferred from dump contents, so this
	// re-validates the same invariant step 4 checked.
	if err := checkFullyConnected(locMembers, locPids); err != nil {
		return err
	}
	if err := checkFullyConnected(remMembers, remPids); err != nil {
		return err
	}
	cfg.checkpoint("recheck_fully_connected")

	// Step 9: resolve conflicts. The union walk always runs — disjoint keys
	// must end up on both sides regardless of table kind or whether a
	// handler is configured (bags can never have one, per
	// crierrors.BagWithConflictHandler in server.New); only the per-key
	// conflict branch is gated on local.ConflictHandler(), and with no
	// handler it falls back to the documented swap default.
	resolvedLocal, resolvedRemote := ApplyResolverForSorted(localDump, remoteDump, local.KeyPosition(), local.ConflictHandler())
	cfg.checkpoint("resolve_conflicts")

	// Step 10: mint a new join reference.
	joinRef := server.JoinRef(fmt.Sprintf("%s-%s-%d", local.Address(), remote.Address(), time.Now().UnixNano()))
	cfg.checkpoint("mint_join_ref")

	// Step 11: install. Every member needs the aliases its new peers will
	// present (minted via MakeAliasesFor) before send_dump/apply_dump, so
	// the aliasesForPeers map handed to each member is populated from its
	// peers' own minted aliases.
	if err := install(allMembers, locMembers, remMembers, joinRef, resolvedLocal, resolvedRemote, logger); err != nil {
		logger.Warn("join install step had partial failures", zap.Error(err))
	}
	cfg.checkpoint("install")

	return nil
}

// acquireWithReentry acquires cfg.Locker's lease for cfg.LockKey, retrying
// once immediately on the first failure and then looping indefinitely
// (bounded only by ctx) on every subsequent failure, logging each attempt.
func acquireWithReentry(ctx context.Context, cfg Config, logger *zap.Logger) (locking.Lease, error) {
	lease, err := cfg.Locker.Acquire(ctx, cfg.LockKey)
	if err == nil {
		return lease, nil
	}
	logger.Warn("join lock acquisition failed, retrying once", zap.String("key", cfg.LockKey), zap.Error(err))

	lease, err = cfg.Locker.Acquire(ctx, cfg.LockKey)
	if err == nil {
		return lease, nil
	}

	attempt := 2
	for {
		select {
		case <-ctx.Done():
			return nil, crierrors.LockUnavailable(cfg.LockKey, ctx.Err())
		default:
		}
		attempt++
		logger.Warn("join lock still unavailable, re-entering wait", zap.String("key", cfg.LockKey), zap.Int("attempt", attempt), zap.Error(err))
		lease, err = cfg.Locker.Acquire(ctx, cfg.LockKey)
		if err == nil {
			return lease, nil
		}
	}
}

func overlap(a, b []transport.Address) bool {
	seen := make(map[transport.Address]struct{}, len(a))
	for _, x := range a {
		seen[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := seen[y]; ok {
			return true
		}
	}
	return false
}

func (d *Directory) resolveAll(addrs []transport.Address) ([]*server.Server, error) {
	out := make([]*server.Server, 0, len(addrs))
	for _, a := range addrs {
		s, ok := d.Lookup(a)
		if !ok {
			return nil, fmt.Errorf("no directory entry for %s", a)
		}
		out = append(out, s)
	}
	return out, nil
}

// checkFullyConnected verifies every member of members agrees on peer set
// want (as {self} ∪ other_pids) and shares a common join reference.
func checkFullyConnected(members []*server.Server, want []transport.Address) error {
	wantSet := make(map[transport.Address]struct{}, len(want))
	for _, a := range want {
		wantSet[a] = struct{}{}
	}
	var commonRef server.JoinRef
	for i, m := range members {
		got := append([]transport.Address{m.Address()}, m.OtherPids()...)
		gotSet := make(map[transport.Address]struct{}, len(got))
		for _, a := range got {
			gotSet[a] = struct{}{}
		}
		if len(gotSet) != len(wantSet) {
			return crierrors.NotFullyConnected(string(m.Address()), "peer set size mismatch")
		}
		for a := range wantSet {
			if _, ok := gotSet[a]; !ok {
				return crierrors.NotFullyConnected(string(m.Address()), fmt.Sprintf("missing peer %s", a))
			}
		}
		if i == 0 {
			commonRef = m.JoinRef()
		} else if m.JoinRef() != commonRef {
			return crierrors.MismatchedJoinRef(string(m.Address()))
		}
	}
	return nil
}

func unpauseAll(logger *zap.Logger, tokens map[*server.Server]server.PauseToken) {
	var g errgroup.Group
	for m, tok := range tokens {
		m, tok := m, tok
		g.Go(func() error {
			if err := m.Unpause(tok); err != nil {
				logger.Warn("unpause failed", zap.String("member", string(m.Address())), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// install mints per-member aliases, stages each member's new dump via
// send_dump, and immediately applies it, fanning out across every member of
// both sides in parallel via errgroup — mirroring the corpus's
// writeToReplicas/readFromReplicas parallel fan-out idiom.
func install(allMembers, locMembers, remMembers []*server.Server, joinRef server.JoinRef, resolvedLocal, resolvedRemote []record.Record, logger *zap.Logger) error {
	newPeersOf := make(map[transport.Address][]transport.Address, len(allMembers))
	for _, m := range locMembers {
		newPeersOf[m.Address()] = addressesOf(remMembers)
	}
	for _, m := range remMembers {
		newPeersOf[m.Address()] = addressesOf(locMembers)
	}

	// minted[M][P] is the alias M requires P to present when P addresses M,
	// as returned by M.MakeAliasesFor(newPeersOf[M]).
	minted := make(map[transport.Address]map[transport.Address]server.Alias, len(allMembers))
	var mintMu sync.Mutex
	var mintGroup errgroup.Group
	for _, m := range allMembers {
		m := m
		mintGroup.Go(func() error {
			aliases, err := m.MakeAliasesFor(newPeersOf[m.Address()])
			if err != nil {
				return crierrors.JoinStepFailed("make_aliases_for", err).With("member", string(m.Address()))
			}
			mintMu.Lock()
			minted[m.Address()] = aliases
			mintMu.Unlock()
			return nil
		})
	}
	if err := mintGroup.Wait(); err != nil {
		return err
	}

	// Each member's installed peer set is every other member of the merged
	// segment; only the other side's members get freshly minted aliases.
	mergedPeersOf := func(m *server.Server) []transport.Address {
		out := make([]transport.Address, 0, len(allMembers)-1)
		for _, a := range addressesOf(allMembers) {
			if a != m.Address() {
				out = append(out, a)
			}
		}
		return out
	}

	var installGroup errgroup.Group
	for _, m := range locMembers {
		m := m
		installGroup.Go(func() error {
			return sendAndApply(m, mergedPeersOf(m), joinRef, resolvedRemote, minted, logger)
		})
	}
	for _, m := range remMembers {
		m := m
		installGroup.Go(func() error {
			return sendAndApply(m, mergedPeersOf(m), joinRef, resolvedLocal, minted, logger)
		})
	}
	return installGroup.Wait()
}

// sendAndApply stages and installs m's new dump. send_dump/apply_dump
// failures are logged and swallowed rather than returned, so one member's
// reachability failure never aborts the others' installation; only a
// MakeAliasesFor failure upstream (a protocol precondition violation) is
// allowed to abort the whole join.
func sendAndApply(m *server.Server, newPeers []transport.Address, joinRef server.JoinRef, dump []record.Record, minted map[transport.Address]map[transport.Address]server.Alias, logger *zap.Logger) error {
	aliasesForPeers := make(map[transport.Address]server.Alias, len(newPeers))
	for _, peer := range newPeers {
		if peerAliases, ok := minted[peer]; ok {
			if a, ok := peerAliases[m.Address()]; ok {
				aliasesForPeers[peer] = a
			}
		}
	}

	ref, err := m.SendDump(newPeers, joinRef, dump, aliasesForPeers)
	if err != nil {
		logger.Warn("send_dump failed, install best-effort", zap.String("member", string(m.Address())), zap.Error(err))
		return nil
	}
	if err := m.ApplyDump(ref); err != nil {
		logger.Warn("apply_dump failed", zap.String("member", string(m.Address())), zap.Error(err))
	}
	return nil
}

func addressesOf(members []*server.Server) []transport.Address {
	out := make([]transport.Address, len(members))
	for i, m := range members {
		out[i] = m.Address()
	}
	return out
}
