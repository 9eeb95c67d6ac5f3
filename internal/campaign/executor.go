package campaign

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Executor is the campaign-execution collaborator. Message rendering and
// transport live entirely behind this interface; the engine only decides
// when to call it.
type Executor interface {
	Execute(ctx context.Context, campaignType Type, recipients []Recipient, personalizations map[string]interface{}) (*Execution, error)
}

// ExecutionRecorder receives completed executions. Implemented by the
// analytics aggregator.
type ExecutionRecorder interface {
	RecordExecution(exec *Execution, cost float64)
}

// LogExecutor is the default executor used when no mail transport is wired
// in. It stamps an execution record, logs it, and hands it to the recorder
// so analytics stay meaningful in development and tests.
type LogExecutor struct {
	recorder ExecutionRecorder
	costPer  float64

	mu         sync.Mutex
	executions []*Execution
}

// NewLogExecutor creates a LogExecutor. recorder may be nil.
func NewLogExecutor(recorder ExecutionRecorder, costPerMessage float64) *LogExecutor {
	return &LogExecutor{recorder: recorder, costPer: costPerMessage}
}

// Execute records a synthetic execution for the given recipients.
func (le *LogExecutor) Execute(ctx context.Context, campaignType Type, recipients []Recipient, personalizations map[string]interface{}) (*Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exec := &Execution{
		ID:           uuid.New(),
		CampaignType: campaignType,
		Recipients:   recipients,
		SentAt:       time.Now(),
		Status:       ExecutionSent,
		Metrics:      Metrics{Sent: len(recipients)},
	}

	le.mu.Lock()
	le.executions = append(le.executions, exec)
	le.mu.Unlock()

	log.Printf("[LogExecutor] %s campaign fired: %d recipients (execution %s)",
		campaignType, len(recipients), exec.ID)

	if le.recorder != nil {
		le.recorder.RecordExecution(exec, le.costPer*float64(len(recipients)))
	}
	return exec, nil
}

// Executions returns all executions recorded so far.
func (le *LogExecutor) Executions() []*Execution {
	le.mu.Lock()
	defer le.mu.Unlock()
	out := make([]*Execution, len(le.executions))
	copy(out, le.executions)
	return out
}
