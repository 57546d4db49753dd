package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskExecutionDue = "outreach.execution.due"

// ExecutionDuePayload identifies one claimed enrollment execution. The worker
// reloads the row before acting, so a stale payload is harmless.
type ExecutionDuePayload struct {
	SequenceID string `json:"sequenceId"`
	LeadID     string `json:"leadId"`
	StepNumber int    `json:"stepNumber"`
}

func NewExecutionDueTask(payload ExecutionDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExecutionDue, data), nil
}

func ParseExecutionDuePayload(task *asynq.Task) (ExecutionDuePayload, error) {
	var payload ExecutionDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ExecutionDuePayload{}, err
	}
	return payload, nil
}
