package scheduler

import (
	"fmt"
	"time"
)

// Plan is the derived execution plan of a validated graph: an ordered
// sequence of batches. Every task's dependencies live in a strictly earlier
// batch, and tasks within a batch are mutually independent, so a batch may
// be dispatched concurrently once all earlier batches have finished.
//
// Order within a batch is arbitrary; only set membership is meaningful.
type Plan struct {
	Batches [][]string
}

// TaskCount returns the total number of tasks across all batches.
func (p *Plan) TaskCount() int {
	n := 0
	for _, batch := range p.Batches {
		n += len(batch)
	}
	return n
}

// BatchOf returns the batch index containing taskID, or -1.
func (p *Plan) BatchOf(taskID string) int {
	for i, batch := range p.Batches {
		for _, id := range batch {
			if id == taskID {
				return i
			}
		}
	}
	return -1
}

// Plan computes (or returns the cached) execution plan for a validated graph.
//
// Batches come from level assignment: a task with no dependencies is at
// level 0, otherwise its level is 1 + the maximum level of its dependencies.
// Tasks sharing a level form one batch, batches are ordered by ascending
// level. The cache is dropped whenever the graph is mutated, and planning
// the same sealed graph twice yields identical batch sets.
func (g *Graph) Plan() (*Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.sealed {
		return nil, ErrGraphNotValidated
	}
	if g.plan != nil {
		return g.plan, nil
	}

	levels := make(map[string]int, len(g.tasks))

	var levelOf func(id string) int
	levelOf = func(id string) int {
		if lvl, ok := levels[id]; ok {
			return lvl
		}
		task := g.tasks[id]
		lvl := 0
		for _, depID := range task.DependsOn {
			if d := levelOf(depID) + 1; d > lvl {
				lvl = d
			}
		}
		levels[id] = lvl
		return lvl
	}

	maxLevel := 0
	for _, taskID := range g.order {
		if lvl := levelOf(taskID); lvl > maxLevel {
			maxLevel = lvl
		}
	}

	batches := make([][]string, maxLevel+1)
	for _, taskID := range g.order {
		lvl := levels[taskID]
		batches[lvl] = append(batches[lvl], taskID)
	}

	g.plan = &Plan{Batches: batches}
	return g.plan, nil
}

// CriticalPath is the longest dependency chain in the graph, bounding the
// minimum possible completion time. Diagnostic only; it never alters
// scheduling order.
type CriticalPath struct {
	TaskIDs  []string
	Duration time.Duration // Sum of estimates along the path; zero when none were supplied
}

// Length returns the number of tasks on the path.
func (c *CriticalPath) Length() int {
	return len(c.TaskIDs)
}

// CriticalPath computes the longest path from any root to any terminal task.
// When at least one task carries a duration estimate the path is weighted by
// estimates (tasks without one weigh nothing); otherwise it is the longest
// path by task count. Requires a validated graph.
func (g *Graph) CriticalPath() (*CriticalPath, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(order) == 0 {
		return &CriticalPath{}, nil
	}

	weighted := false
	for _, task := range g.tasks {
		if task.Estimate > 0 {
			weighted = true
			break
		}
	}

	weight := func(id string) int64 {
		if weighted {
			return int64(g.tasks[id].Estimate)
		}
		return 1
	}

	// Longest-path DP over the topological order: every task's dependencies
	// precede it, so best[dep] is final by the time we reach the task.
	best := make(map[string]int64, len(order))
	prev := make(map[string]string, len(order))

	var endID string
	var endScore int64 = -1

	for _, id := range order {
		score := weight(id)
		var from string
		for _, depID := range g.tasks[id].DependsOn {
			cand := best[depID] + weight(id)
			// Weight ties (common when estimates are sparse and a chain runs
			// through zero-estimate tasks) go to the lowest dependency ID, so
			// the reported path is stable across dependency orderings.
			switch {
			case cand > score:
				score = cand
				from = depID
			case cand == score && (from == "" || depID < from):
				from = depID
			}
		}
		best[id] = score
		if from != "" {
			prev[id] = from
		}
		if score > endScore || (score == endScore && id < endID) {
			endScore = score
			endID = id
		}
	}

	var path []string
	for id := endID; id != ""; {
		path = append([]string{id}, path...)
		id = prev[id]
	}

	cp := &CriticalPath{TaskIDs: path}
	if weighted {
		cp.Duration = time.Duration(endScore)
	}
	return cp, nil
}

// Describe renders the plan as human-readable lines, one per batch.
func (p *Plan) Describe() []string {
	lines := make([]string, 0, len(p.Batches))
	for i, batch := range p.Batches {
		lines = append(lines, fmt.Sprintf("batch %d: %v", i, batch))
	}
	return lines
}
