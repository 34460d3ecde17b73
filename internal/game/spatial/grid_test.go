package spatial

import (
	"sort"
	"testing"
)

func TestGridQueryRadius(t *testing.T) {
	g := NewGrid(1000, 1000, 100)

	g.Insert("near", 500, 500)
	g.Insert("same-cell", 510, 520)
	g.Insert("far", 900, 900)

	got := append([]string(nil), g.QueryRadius(505, 505, 50)...)
	sort.Strings(got)
	want := []string{"near", "same-cell"}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidates = %v, want %v", got, want)
		}
	}
}

func TestGridQuerySpansCells(t *testing.T) {
	g := NewGrid(1000, 1000, 100)

	// Neighbors across a cell boundary must both be candidates.
	g.Insert("a", 99, 50)
	g.Insert("b", 101, 50)

	got := g.QueryRadius(100, 50, 10)
	if len(got) != 2 {
		t.Errorf("candidates = %v, want both sides of the boundary", got)
	}
}

func TestGridClampsOutOfBounds(t *testing.T) {
	g := NewGrid(1000, 1000, 100)

	g.Insert("outside", -50, 2000)
	got := g.QueryRadius(-10, 1500, 600)
	if len(got) != 1 || got[0] != "outside" {
		t.Errorf("candidates = %v", got)
	}
}

func TestGridClearKeepsCapacity(t *testing.T) {
	g := NewGrid(1000, 1000, 100)
	g.Insert("a", 10, 10)
	g.Clear()

	if got := g.QueryRadius(10, 10, 50); len(got) != 0 {
		t.Errorf("candidates after clear = %v", got)
	}

	g.Insert("b", 10, 10)
	if got := g.QueryRadius(10, 10, 50); len(got) != 1 || got[0] != "b" {
		t.Errorf("candidates after reuse = %v", got)
	}
}

func TestGridTinyWorld(t *testing.T) {
	g := NewGrid(10, 10, 100) // world smaller than one cell
	cols, rows, _ := g.Dimensions()
	if cols != 1 || rows != 1 {
		t.Errorf("dimensions = %dx%d, want 1x1", cols, rows)
	}
	g.Insert("a", 5, 5)
	if got := g.QueryRadius(5, 5, 1); len(got) != 1 {
		t.Errorf("candidates = %v", got)
	}
}

func BenchmarkGridQuery(b *testing.B) {
	g := NewGrid(15000, 15000, 500)
	for i := 0; i < 200; i++ {
		g.Insert("e", float64(i*71%15000), float64(i*137%15000))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.QueryRadius(7500, 7500, 600)
	}
}
