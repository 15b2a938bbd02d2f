package scheduler

// DAG is the resolved dependency graph for a task batch: every task's
// dependency ids are guaranteed to reference another task in the same
// batch.
type DAG struct {
	tasks        map[string]Task
	dependencies map[string][]string
	order        []string // submission order, for stable tie-breaks
}

// ResolveDependencies builds a DAG from tasks, rejecting any dependency
// id that does not name another task in the same batch.
func ResolveDependencies(tasks []Task) (*DAG, error) {
	d := &DAG{
		tasks:        make(map[string]Task, len(tasks)),
		dependencies: make(map[string][]string, len(tasks)),
		order:        make([]string, 0, len(tasks)),
	}
	for _, t := range tasks {
		d.tasks[t.ID] = t
		d.dependencies[t.ID] = t.Dependencies
		d.order = append(d.order, t.ID)
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := d.tasks[dep]; !ok {
				return nil, &UnknownDependencyError{TaskID: t.ID, DependencyID: dep}
			}
		}
	}
	return d, nil
}

// DetectCycles walks the DAG depth-first, tracking both the set of fully
// visited nodes and the set currently on the recursion stack. A back-edge
// into the on-stack set is a cycle, reported with the full edge path.
func DetectCycles(d *DAG) error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	for _, id := range d.order {
		if !visited[id] {
			if err := dfsDetectCycle(d, id, visited, onStack, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func dfsDetectCycle(d *DAG, id string, visited, onStack map[string]bool, path []string) error {
	visited[id] = true
	onStack[id] = true
	path = append(path, id)

	for _, dep := range d.dependencies[id] {
		if onStack[dep] {
			return &CycleError{Path: append(append([]string{}, path...), dep)}
		}
		if !visited[dep] {
			if err := dfsDetectCycle(d, dep, visited, onStack, path); err != nil {
				return err
			}
		}
	}

	onStack[id] = false
	return nil
}

// Dependencies returns the ids the given task depends on, or nil for an
// unknown id.
func (d *DAG) Dependencies(id string) []string {
	deps := d.dependencies[id]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Dependents returns the ids of every task that depends on id, in
// submission order.
func (d *DAG) Dependents(id string) []string {
	var out []string
	for _, candidate := range d.order {
		for _, dep := range d.dependencies[candidate] {
			if dep == id {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// RootTasks returns the ids of every task with no dependencies, in
// submission order.
func (d *DAG) RootTasks() []string {
	var out []string
	for _, id := range d.order {
		if len(d.dependencies[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Task returns the task for id, if present.
func (d *DAG) Task(id string) (Task, bool) {
	t, ok := d.tasks[id]
	return t, ok
}
