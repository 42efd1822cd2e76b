package service

import (
	"context"
	"sync"
	"time"

	"reconciler/internal/contact/ports"
	dErrors "reconciler/pkg/domain-errors"
)

// numTxShards spreads lock keys over independent mutexes so transactions on
// disjoint identity groups rarely contend.
const numTxShards = 128

// defaultTxTimeout is the maximum duration of a transaction whose context has
// no deadline.
const defaultTxTimeout = 5 * time.Second

// ShardedTx runs transactions against an in-memory store. Every lock key maps
// to one of numTxShards mutexes; a transaction locks its shards in ascending
// order, runs against a staged view and commits only when fn succeeds.
type ShardedTx struct {
	shards  [numTxShards]sync.Mutex
	stager  ports.Stager
	timeout time.Duration
}

// NewShardedTx creates a runner over stager. A zero timeout selects the
// default.
func NewShardedTx(stager ports.Stager, timeout time.Duration) *ShardedTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &ShardedTx{stager: stager, timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shards := t.selectShards(keys)
	for _, shard := range shards {
		t.shards[shard].Lock()
	}
	defer func() {
		for i := len(shards) - 1; i >= 0; i-- {
			t.shards[shards[i]].Unlock()
		}
	}()

	// Check again after acquiring the locks
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := t.stager.Stage()
	if err := fn(ctx, staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	return staged.Commit()
}

// selectShards returns the distinct shards of keys in ascending order, or
// shard 0 when there are no keys.
func (t *ShardedTx) selectShards(keys []string) []int {
	var seen [numTxShards]bool
	for _, k := range keys {
		seen[hashKey(k)%numTxShards] = true
	}
	shards := make([]int, 0, len(keys))
	for i, ok := range seen {
		if ok {
			shards = append(shards, i)
		}
	}
	if len(shards) == 0 {
		shards = append(shards, 0)
	}
	return shards
}

// hashKey is 32-bit FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
