package repository

import "math/rand/v2"

// Treap ordered by points DESC, then userID ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the leaderboard
// from best to worst.

type node struct {
	id     string
	points int64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aPoints, aID) should appear before (bPoints, bID).
func less(aPoints int64, aID string, bPoints int64, bID string) bool {
	if aPoints != bPoints {
		return aPoints > bPoints
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, points int64) *node {
	if n == nil {
		return &node{id: id, points: points, prio: rand.Uint64(), size: 1}
	}
	if less(points, id, n.points, n.id) {
		n.left = insert(n.left, id, points)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, points)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, points int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case points == n.points && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, points)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, points)
		}
	case less(points, id, n.points, n.id):
		n.left = deleteNode(n.left, id, points)
	default:
		n.right = deleteNode(n.right, id, points)
	}
	fix(n)
	return n
}

// countBefore returns how many keys rank strictly before (points, id).
func countBefore(n *node, points int64, id string) int {
	count := 0
	for n != nil {
		if less(n.points, n.id, points, id) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit ids in rank order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// rankIndex ranks users by points with consecutive ranks for ties.
// entries holds one node per user; levels holds one node per distinct
// point value so a user's rank is the number of higher levels plus one.
type rankIndex struct {
	entries *node
	levels  *node
	points  map[string]int64
	perLvl  map[int64]int
}

func newRankIndex() *rankIndex {
	return &rankIndex{points: make(map[string]int64), perLvl: make(map[int64]int)}
}

func (r *rankIndex) set(id string, points int64) {
	if old, ok := r.points[id]; ok {
		if old == points {
			return
		}
		r.entries = deleteNode(r.entries, id, old)
		r.perLvl[old]--
		if r.perLvl[old] == 0 {
			delete(r.perLvl, old)
			r.levels = deleteNode(r.levels, "", old)
		}
	}
	r.points[id] = points
	r.entries = insert(r.entries, id, points)
	if r.perLvl[points] == 0 {
		r.levels = insert(r.levels, "", points)
	}
	r.perLvl[points]++
}

func (r *rankIndex) rank(id string) (int, bool) {
	p, ok := r.points[id]
	if !ok {
		return 0, false
	}
	return countBefore(r.levels, p, "") + 1, true
}

func (r *rankIndex) top(n int) []string {
	out := make([]string, 0, min(n, len(r.points)))
	collectTopN(r.entries, n, &out)
	return out
}

func (r *rankIndex) count() int { return len(r.points) }
