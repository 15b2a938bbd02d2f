package scheduler

import "fmt"

// UnknownDependencyError reports a task naming a dependency id that was
// never submitted in the same batch.
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DependencyID)
}

// CycleError reports a circular dependency. From DetectCycles, Path is
// the dependency path walked from the search's start task; its last
// entry closes the cycle and also appears earlier in the path.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	s := "circular dependency detected: "
	for i, id := range e.Path {
		if i > 0 {
			s += " -> "
		}
		s += id
	}
	return s
}
