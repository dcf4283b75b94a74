package goals

import (
	"context"
	"strconv"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/l3aro/go-cegar/pkg/cache"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
)

// DefaultMemoSize is the number of transfer results a MemoTransfer keeps.
const DefaultMemoSize = 4096

// MemoTransfer memoizes a transfer relation across runs. Results are keyed
// by the state key, the precision key and the edge, so two sub-analyses that
// walk the same prefix under the same precision compute it once. States or
// precisions without a key bypass the memo.
//
// Only successful results are stored; errors are recomputed every time.
type MemoTransfer struct {
	inner cpa.TransferRelation
	memo  *cache.LRU[[]cpa.AbstractState]
}

// NewMemoTransfer wraps inner with an LRU of the given size
// (DefaultMemoSize when size <= 0).
func NewMemoTransfer(inner cpa.TransferRelation, size int) *MemoTransfer {
	if size <= 0 {
		size = DefaultMemoSize
	}
	return &MemoTransfer{
		inner: inner,
		memo:  cache.New(cache.Options[[]cpa.AbstractState]{MaxSize: size}),
	}
}

type memoKey struct {
	State     string
	Precision string
	Edge      int
}

func (m *MemoTransfer) key(s cpa.AbstractState, p cpa.Precision, e cfa.Edge) (string, bool) {
	sk, ok := cpa.KeyOf(s)
	if !ok {
		return "", false
	}
	pk, ok := cpa.KeyOf(p)
	if !ok {
		return "", false
	}
	h, err := hashstructure.Hash(memoKey{State: sk, Precision: pk, Edge: e.ID}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(h, 16), true
}

func (m *MemoTransfer) Successors(ctx context.Context, s cpa.AbstractState, p cpa.Precision, e cfa.Edge) ([]cpa.AbstractState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, ok := m.key(s, p, e)
	if !ok {
		return m.inner.Successors(ctx, s, p, e)
	}
	if succ, hit := m.memo.Get(k); hit {
		return append([]cpa.AbstractState(nil), succ...), nil
	}
	succ, err := m.inner.Successors(ctx, s, p, e)
	if err != nil {
		return nil, err
	}
	m.memo.Set(k, append([]cpa.AbstractState(nil), succ...))
	return succ, nil
}

// Stats returns the memo's hit and miss counters.
func (m *MemoTransfer) Stats() cache.Stats { return m.memo.Stats() }

// Reset drops every memoized result.
func (m *MemoTransfer) Reset() { m.memo.Clear() }
