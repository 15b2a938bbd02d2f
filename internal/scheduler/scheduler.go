package scheduler

import "sort"

// Schedule builds a DAG from tasks, checks for cycles and unknown
// dependencies, and returns the resulting execution schedule. Empty
// input produces an empty schedule; a single task with no dependencies
// produces a single one-task phase.
func Schedule(tasks []Task) (ExecutionSchedule, error) {
	dag, err := ResolveDependencies(tasks)
	if err != nil {
		return ExecutionSchedule{}, err
	}
	if err := DetectCycles(dag); err != nil {
		return ExecutionSchedule{}, err
	}
	phases, err := buildPhases(dag)
	if err != nil {
		return ExecutionSchedule{}, err
	}
	return ExecutionSchedule{Phases: phases}, nil
}

// buildPhases repeatedly extracts every task whose dependencies are all
// already scheduled in an earlier phase. Within a phase, tasks are
// ordered by ascending priority, ties broken by original submission
// order.
func buildPhases(d *DAG) ([]ExecutionPhase, error) {
	completed := make(map[string]bool, len(d.order))
	remaining := make(map[string]bool, len(d.order))
	for _, id := range d.order {
		remaining[id] = true
	}

	submissionIndex := make(map[string]int, len(d.order))
	for i, id := range d.order {
		submissionIndex[id] = i
	}

	var phases []ExecutionPhase
	for len(remaining) > 0 {
		var readyIDs []string
		for id := range remaining {
			ready := true
			for _, dep := range d.dependencies[id] {
				if !completed[dep] {
					ready = false
					break
				}
			}
			if ready {
				readyIDs = append(readyIDs, id)
			}
		}

		// Cycle detection already ran; this can't legitimately happen.
		if len(readyIDs) == 0 {
			return nil, &CycleError{Path: remainingIDs(remaining)}
		}

		sort.SliceStable(readyIDs, func(i, j int) bool {
			ti, tj := d.tasks[readyIDs[i]], d.tasks[readyIDs[j]]
			if ti.Priority != tj.Priority {
				return ti.Priority < tj.Priority
			}
			return submissionIndex[readyIDs[i]] < submissionIndex[readyIDs[j]]
		})

		phaseTasks := make([]Task, len(readyIDs))
		for i, id := range readyIDs {
			phaseTasks[i] = d.tasks[id]
		}
		phases = append(phases, ExecutionPhase{Tasks: phaseTasks})

		for _, id := range readyIDs {
			completed[id] = true
			delete(remaining, id)
		}
	}
	return phases, nil
}

func remainingIDs(remaining map[string]bool) []string {
	ids := make([]string, 0, len(remaining))
	for id := range remaining {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
