package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rice/internal/scheduler"
)

// batchTask is the wire shape of one task in a batch file. Unknown
// fields are rejected.
type batchTask struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Priority     int      `json:"priority"`
	Dependencies []string `json:"dependencies"`
	TaskType     string   `json:"task_type"`
	Target       struct {
		Files []string `json:"files"`
		Scope string   `json:"scope"`
	} `json:"target"`
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <batch.json>",
	Short: "Partition a task batch into parallelizable execution phases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := readBatch(args[0])
		if err != nil {
			return exitf(exitInvalidInput, "read task batch: %v", err)
		}

		plan, err := scheduler.Schedule(tasks)
		if err != nil {
			var cycle *scheduler.CycleError
			if errors.As(err, &cycle) {
				return exitf(exitCycle, "schedule: %v", err)
			}
			return exitf(exitInvalidInput, "schedule: %v", err)
		}

		logger.Debug("scheduled batch", zap.Int("tasks", len(tasks)), zap.Int("phases", len(plan.Phases)))
		return printPlan(cmd, plan)
	},
}

func readBatch(path string) ([]scheduler.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var raw []batchTask
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	tasks := make([]scheduler.Task, 0, len(raw))
	for _, bt := range raw {
		if bt.ID == "" {
			return nil, fmt.Errorf("task with empty id")
		}
		scope := scheduler.TargetScope(bt.Target.Scope)
		switch scope {
		case scheduler.ScopeFile, scheduler.ScopeProject, scheduler.ScopeSelection, "":
		default:
			return nil, fmt.Errorf("task %s: unknown target scope %q", bt.ID, bt.Target.Scope)
		}
		tasks = append(tasks, scheduler.Task{
			ID:           bt.ID,
			Name:         bt.Name,
			Priority:     bt.Priority,
			Dependencies: bt.Dependencies,
			TaskType:     bt.TaskType,
			Target:       scheduler.Target{Files: bt.Target.Files, Scope: scope},
		})
	}
	return tasks, nil
}

func printPlan(cmd *cobra.Command, plan scheduler.ExecutionSchedule) error {
	type phaseOut struct {
		Phase int      `json:"phase"`
		Tasks []string `json:"tasks"`
	}
	out := make([]phaseOut, 0, len(plan.Phases))
	for i, phase := range plan.Phases {
		ids := make([]string, 0, len(phase.Tasks))
		for _, task := range phase.Tasks {
			ids = append(ids, task.ID)
		}
		out = append(out, phaseOut{Phase: i + 1, Tasks: ids})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
