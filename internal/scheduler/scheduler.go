// Package scheduler computes parallel execution batches for a phase:
// dependency levels by DFS, cycle tolerance, and chunking by the
// concurrency limit.
package scheduler

import (
	"fmt"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

// ParallelGroup is a set of subtasks at one dependency level that may
// run concurrently.
type ParallelGroup struct {
	GroupID    string
	Tasks      []schema.Subtask
	WaitForAll bool
}

// Config bounds group sizes and sets the group barrier hint.
type Config struct {
	MaxConcurrentAgents int
	WaitForAll          bool
}

// Schedule orders a phase's subtasks into parallel groups. Levels ascend
// strictly; input order is preserved within a level; no group exceeds
// MaxConcurrentAgents tasks. Dependency ids that do not resolve within
// the phase are ignored; a dependency cycle never fails the schedule,
// the cycle-closing task lands on level 0 with a warning.
func Schedule(phase *schema.Phase, cfg Config) []ParallelGroup {
	maxAgents := cfg.MaxConcurrentAgents
	if maxAgents < 1 {
		maxAgents = 1
	}

	levels := levelTasks(phase)

	maxLevel := 0
	for _, lvl := range levels {
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}

	var groups []ParallelGroup
	for level := 0; level <= maxLevel; level++ {
		// Input order within a level is the phase's subtask order.
		var tasks []schema.Subtask
		for _, t := range phase.Subtasks {
			if levels[t.ID] == level {
				tasks = append(tasks, t)
			}
		}
		for chunk := 0; chunk*maxAgents < len(tasks); chunk++ {
			end := (chunk + 1) * maxAgents
			if end > len(tasks) {
				end = len(tasks)
			}
			groups = append(groups, ParallelGroup{
				GroupID:    fmt.Sprintf("%s-L%d-G%d", phase.ID, level, chunk),
				Tasks:      tasks[chunk*maxAgents : end],
				WaitForAll: cfg.WaitForAll,
			})
		}
	}
	logging.Scheduler("phase %s: %d tasks in %d groups (max %d per group)",
		phase.ID, len(phase.Subtasks), len(groups), maxAgents)
	return groups
}

// levelTasks assigns every subtask its dependency level: 0 with no
// in-phase dependencies, otherwise 1 + the maximum level among them.
func levelTasks(phase *schema.Phase) map[string]int {
	byID := make(map[string]*schema.Subtask, len(phase.Subtasks))
	for i := range phase.Subtasks {
		byID[phase.Subtasks[i].ID] = &phase.Subtasks[i]
	}

	levels := make(map[string]int, len(phase.Subtasks))
	visiting := make(map[string]bool)

	var visit func(id string) int
	visit = func(id string) int {
		if lvl, done := levels[id]; done {
			return lvl
		}
		if visiting[id] {
			// Cycle: the closing task takes level 0 rather than
			// failing the whole phase.
			logging.SchedulerWarn("dependency cycle at task %s in phase %s, assigning level 0", id, phase.ID)
			levels[id] = 0
			return 0
		}
		visiting[id] = true
		defer delete(visiting, id)

		task := byID[id]
		level := 0
		for _, dep := range task.Dependencies {
			if _, inPhase := byID[dep]; !inPhase {
				continue
			}
			if depLevel := visit(dep); depLevel+1 > level {
				level = depLevel + 1
			}
		}
		// Cycle detection may already have pinned this task to level 0;
		// the pin wins.
		if _, done := levels[id]; !done {
			levels[id] = level
		}
		return levels[id]
	}

	for i := range phase.Subtasks {
		visit(phase.Subtasks[i].ID)
	}
	return levels
}

// CanExecute reports whether every dependency of the task appears in
// the completed set.
func CanExecute(task *schema.Subtask, completedTaskIDs map[string]bool) bool {
	for _, dep := range task.Dependencies {
		if !completedTaskIDs[dep] {
			return false
		}
	}
	return true
}
