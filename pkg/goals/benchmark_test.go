package goals

import (
	"context"
	"testing"

	"github.com/l3aro/go-cegar/internal/cpatest"
)

func BenchmarkMemoTransferHit(b *testing.B) {
	p := shared()
	_, tr := cpatest.Analysis(p, "sep")
	m := NewMemoTransfer(tr, 1024)
	ctx := context.Background()
	e, _ := p.Edge(0)
	s := cpatest.State{Loc: 0, Vals: cpatest.All}
	if _, err := m.Successors(ctx, s, cpatest.Precision{}, e); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Successors(ctx, s, cpatest.Precision{}, e); err != nil {
			b.Fatal(err)
		}
	}
}

// Cycling through more states than the memo holds misses on every call.
func BenchmarkMemoTransferEvicting(b *testing.B) {
	p := shared()
	_, tr := cpatest.Analysis(p, "sep")
	m := NewMemoTransfer(tr, 4)
	ctx := context.Background()
	e, _ := p.Edge(0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := cpatest.State{Loc: 0, Vals: uint8(i) & cpatest.All}
		if _, err := m.Successors(ctx, s, cpatest.Precision{}, e); err != nil {
			b.Fatal(err)
		}
	}
}
