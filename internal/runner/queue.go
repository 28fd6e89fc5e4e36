package runner

// runQueue holds tests waiting to run. Priority entries are kept in front,
// in insertion order; seeded entries land at a pseudo-random position after
// them; everything else is appended.
type runQueue struct {
	entries  []*test
	priority int

	seed    string
	newPRNG PRNGFactory
	rng     PRNG
}

func (q *runQueue) len() int { return len(q.entries) }

func (q *runQueue) add(t *test, priority bool) {
	switch {
	case priority:
		q.insert(q.priority, t)
		q.priority++
	case q.seed != "":
		if q.rng == nil {
			q.rng = q.newPRNG(q.seed)
		}
		off := int(q.rng.Next() * float64(len(q.entries)-q.priority+1))
		q.insert(q.priority+off, t)
	default:
		q.entries = append(q.entries, t)
	}
}

func (q *runQueue) insert(i int, t *test) {
	i = min(max(i, 0), len(q.entries))
	q.entries = append(q.entries, nil)
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = t
}

func (q *runQueue) shift() *test {
	if len(q.entries) == 0 {
		return nil
	}
	t := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	if q.priority > 0 {
		q.priority--
	}
	return t
}

// clear drops every entry and returns them.
func (q *runQueue) clear() []*test {
	out := q.entries
	q.entries = nil
	q.priority = 0
	return out
}
