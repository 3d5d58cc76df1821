package messaging

import (
	"context"
	"time"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/metrics"
)

// Step names one write or read of a multi-document operation.
type Step string

const (
	StepCreateConversation Step = "create_conversation"
	StepCreateThread       Step = "create_thread"
	StepLoadConversation   Step = "load_conversation"
	StepResolveSender      Step = "resolve_sender"
	StepAppendMessage      Step = "append_message"
	StepUpdatePreview      Step = "update_preview"
	StepReadParticipants   Step = "read_participants"
	StepThreadFanout       Step = "thread_fanout"
	StepMarkRead           Step = "mark_read"
)

// StepOutcome classifies how a step ended.
type StepOutcome int

const (
	StepOK StepOutcome = iota
	// StepRetryable is a transient store failure.
	StepRetryable
	// StepFatal is a failure that retrying will not fix.
	StepFatal
)

func (o StepOutcome) String() string {
	switch o {
	case StepOK:
		return "ok"
	case StepRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

func outcomeOf(err error) StepOutcome {
	switch {
	case err == nil:
		return StepOK
	case docstore.IsTransient(err):
		return StepRetryable
	default:
		return StepFatal
	}
}

// StepResult records one executed step. Target is the conversation or the
// participant the step wrote for.
type StepResult struct {
	Step     Step
	Target   string
	Outcome  StepOutcome
	Attempts int
	Err      error
}

// saga runs the steps of one coordinator operation.
type saga struct {
	c              *Coordinator
	op             string
	conversationID string
}

func (c *Coordinator) newSaga(op, conversationID string) *saga {
	return &saga{c: c, op: op, conversationID: conversationID}
}

// run executes fn, retrying retryable failures up to retries extra times,
// and reports the result to metrics, the observer and the log.
func (s *saga) run(ctx context.Context, step Step, target string, retries int, fn func(ctx context.Context) error) StepResult {
	res := StepResult{Step: step, Target: target}
	for {
		res.Attempts++
		stepCtx, cancel := context.WithTimeout(ctx, s.c.stepTimeout)
		err := fn(stepCtx)
		cancel()
		res.Err = err
		res.Outcome = outcomeOf(err)
		if res.Outcome != StepRetryable || res.Attempts > retries {
			break
		}
		select {
		case <-time.After(time.Duration(res.Attempts) * s.c.retryBackoff):
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.Outcome = StepFatal
			s.report(res)
			return res
		}
	}
	s.report(res)
	return res
}

func (s *saga) report(res StepResult) {
	metrics.SagaSteps.WithLabelValues(string(res.Step), res.Outcome.String()).Inc()
	if s.c.observer != nil {
		s.c.observer(res)
	}
	if res.Outcome == StepOK {
		s.c.log.Debugw("saga step done", "op", s.op, "step", res.Step, "conversation", s.conversationID, "target", res.Target)
		return
	}
	s.c.log.Warnw("saga step failed",
		"op", s.op,
		"step", res.Step,
		"conversation", s.conversationID,
		"target", res.Target,
		"outcome", res.Outcome.String(),
		"attempts", res.Attempts,
		"error", res.Err,
	)
}
