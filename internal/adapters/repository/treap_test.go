package repository

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

// bruteRank is the reference: 1 + number of distinct totals above points.
func bruteRank(points map[string]int64, id string) int {
	higher := make(map[int64]struct{})
	for _, p := range points {
		if p > points[id] {
			higher[p] = struct{}{}
		}
	}
	return len(higher) + 1
}

func TestRankIndex_TieBreaking(t *testing.T) {
	r := newRankIndex()
	r.set("carol", 50)
	r.set("alice", 80)
	r.set("bob", 80)
	r.set("dave", 10)

	got := r.top(10)
	want := []string{"alice", "bob", "carol", "dave"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	for id, rank := range map[string]int{"alice": 1, "bob": 1, "carol": 2, "dave": 3} {
		if got, _ := r.rank(id); got != rank {
			t.Errorf("rank(%s): expected %d, got %d", id, rank, got)
		}
	}
	if _, ok := r.rank("nobody"); ok {
		t.Error("expected unknown user to be unranked")
	}
}

func TestRankIndex_Updates(t *testing.T) {
	r := newRankIndex()
	r.set("a", 10)
	r.set("b", 10)
	r.set("a", 30)
	r.set("b", 30)
	r.set("b", 30) // no-op

	if r.count() != 2 {
		t.Fatalf("expected 2 users, got %d", r.count())
	}
	if len(r.perLvl) != 1 {
		t.Fatalf("expected one distinct level, got %v", r.perLvl)
	}
	if got, _ := r.rank("b"); got != 1 {
		t.Errorf("expected rank 1, got %d", got)
	}
	r.set("a", -5)
	if got, _ := r.rank("a"); got != 2 {
		t.Errorf("expected negative total to rank second, got %d", got)
	}
}

func TestRankIndex_RankCorrectnessUnderStress(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := newRankIndex()
	points := make(map[string]int64)

	for i := 0; i < 5000; i++ {
		id := fmt.Sprintf("user-%d", rng.Intn(300))
		p := int64(rng.Intn(60) - 10)
		r.set(id, p)
		points[id] = p
	}

	ids := make([]string, 0, len(points))
	for id := range points {
		ids = append(ids, id)
		got, _ := r.rank(id)
		if want := bruteRank(points, id); got != want {
			t.Fatalf("rank(%s): expected %d, got %d", id, want, got)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return less(points[ids[i]], ids[i], points[ids[j]], ids[j]) })
	top := r.top(25)
	for i := range top {
		if top[i] != ids[i] {
			t.Fatalf("top[%d]: expected %s, got %s", i, ids[i], top[i])
		}
	}
	if nsize(r.entries) != len(points) {
		t.Fatalf("expected treap size %d, got %d", len(points), nsize(r.entries))
	}
}
