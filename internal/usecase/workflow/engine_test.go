package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
	"switchboard/internal/usecase/eventbus"
)

// funcStep is a configurable step for engine tests.
type funcStep struct {
	name      string
	order     int
	canHandle func(*domain.Request) bool
	execute   func(context.Context, *domain.Request, *domain.WorkflowContext) (*domain.StepResult, error)
}

func (s *funcStep) Name() string { return s.name }
func (s *funcStep) Order() int   { return s.order }
func (s *funcStep) CanHandle(req *domain.Request) bool {
	if s.canHandle == nil {
		return true
	}
	return s.canHandle(req)
}
func (s *funcStep) Execute(ctx context.Context, req *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
	if s.execute == nil {
		return &domain.StepResult{StepName: s.name, Success: true}, nil
	}
	return s.execute(ctx, req, wc)
}

func okStep(name string, order int) *funcStep {
	return &funcStep{name: name, order: order}
}

func testRequest() *domain.Request {
	return &domain.Request{ID: "req-1", Prompt: "analyze this", Content: "package main"}
}

func TestExecuteNilRequest(t *testing.T) {
	e := NewEngine(nil, nil)
	_, err := e.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNilRequest))
}

func TestRegisterStepValidation(t *testing.T) {
	e := NewEngine(nil, nil)

	err := e.RegisterStep(nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	err = e.RegisterStep(okStep("", 1))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestRegisterStepDuplicateRejected(t *testing.T) {
	e := NewEngine(nil, nil)
	require.NoError(t, e.RegisterStep(okStep("trace", 1)))

	err := e.RegisterStep(okStep("trace", 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateStep))
	assert.Len(t, e.Steps(), 1)
}

func TestExecuteNoApplicableSteps(t *testing.T) {
	e := NewEngine(nil, nil)
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "never", order: 1,
		canHandle: func(*domain.Request) bool { return false },
	}))

	result, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "No applicable workflow steps found")
	assert.Empty(t, result.Steps)
}

func TestExecuteRunsInAscendingOrder(t *testing.T) {
	e := NewEngine(nil, nil)
	var order []string
	record := func(name string) *funcStep {
		return &funcStep{
			name: name,
			execute: func(_ context.Context, _ *domain.Request, _ *domain.WorkflowContext) (*domain.StepResult, error) {
				order = append(order, name)
				return &domain.StepResult{StepName: name, Success: true}, nil
			},
		}
	}

	// Register out of numeric order: 3, 1, 2.
	s3, s1, s2 := record("third"), record("first"), record("second")
	s3.order, s1.order, s2.order = 3, 1, 2
	require.NoError(t, e.RegisterStep(s3))
	require.NoError(t, e.RegisterStep(s1))
	require.NoError(t, e.RegisterStep(s2))

	result, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestExecuteEqualOrderKeepsRegistrationOrder(t *testing.T) {
	e := NewEngine(nil, nil)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, e.RegisterStep(&funcStep{
			name: name, order: 5,
			execute: func(_ context.Context, _ *domain.Request, _ *domain.WorkflowContext) (*domain.StepResult, error) {
				order = append(order, name)
				return &domain.StepResult{Success: true}, nil
			},
		}))
	}

	_, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestExecuteNonFatalFailureContinues(t *testing.T) {
	e := NewEngine(nil, nil)
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "failing", order: 1,
		execute: func(_ context.Context, _ *domain.Request, _ *domain.WorkflowContext) (*domain.StepResult, error) {
			return &domain.StepResult{StepName: "failing", Success: false, Message: "bad input"}, nil
		},
	}))
	require.NoError(t, e.RegisterStep(okStep("after", 2)))

	result, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.False(t, result.Halted)
	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].Success)
	assert.True(t, result.Steps[1].Success)
	assert.False(t, result.Cancelled)
}

func TestExecuteFatalFailureHalts(t *testing.T) {
	e := NewEngine(nil, nil)
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "guard", order: 1,
		execute: func(_ context.Context, _ *domain.Request, _ *domain.WorkflowContext) (*domain.StepResult, error) {
			return &domain.StepResult{StepName: "guard", Success: false, Fatal: true, Message: "limit exceeded"}, nil
		},
	}))
	require.NoError(t, e.RegisterStep(okStep("after", 2)))

	result, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.Halted)
	assert.False(t, result.Cancelled)
	require.Len(t, result.Steps, 1)
	assert.Contains(t, result.Message, "fatally")
}

func TestExecuteStepErrorRecorded(t *testing.T) {
	e := NewEngine(nil, nil)
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "erroring", order: 1,
		execute: func(_ context.Context, _ *domain.Request, _ *domain.WorkflowContext) (*domain.StepResult, error) {
			return nil, errors.New("step blew up")
		},
	}))
	require.NoError(t, e.RegisterStep(okStep("after", 2)))

	result, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "step blew up", result.Steps[0].Err)
}

func TestExecuteCancellationHaltsBeforeNextStep(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Int32
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "canceller", order: 1,
		execute: func(_ context.Context, _ *domain.Request, _ *domain.WorkflowContext) (*domain.StepResult, error) {
			ran.Add(1)
			cancel() // cancel mid-run; the next step must not start
			return &domain.StepResult{Success: true}, nil
		},
	}))
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "unreached", order: 2,
		execute: func(_ context.Context, _ *domain.Request, _ *domain.WorkflowContext) (*domain.StepResult, error) {
			ran.Add(1)
			return &domain.StepResult{Success: true}, nil
		},
	}))

	result, err := e.Execute(ctx, testRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), ran.Load())
	assert.True(t, result.Cancelled)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "cancelled")
	assert.Len(t, result.Steps, 1)
}

func TestExecuteSharedContextVisibleToLaterSteps(t *testing.T) {
	e := NewEngine(nil, nil)
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "writer", order: 1,
		execute: func(_ context.Context, _ *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
			wc.Set("language", "go")
			return &domain.StepResult{Success: true}, nil
		},
	}))

	var seen string
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "reader", order: 2,
		execute: func(_ context.Context, _ *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
			seen, _ = wc.Get("language")
			return &domain.StepResult{Success: true}, nil
		},
	}))

	result, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "go", seen)
}

func TestExecutePublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.New(slog.Default())
	e := NewEngine(bus, nil)
	require.NoError(t, e.RegisterStep(okStep("only", 1)))

	var started, completed atomic.Int32
	bus.Subscribe(domain.EventWorkflowStarted, func(_ context.Context, ev domain.Event) {
		if ev.RequestID == "req-1" {
			started.Add(1)
		}
	})
	bus.Subscribe(domain.EventWorkflowCompleted, func(_ context.Context, ev domain.Event) {
		if ev.RequestID == "req-1" {
			completed.Add(1)
		}
	})

	_, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	bus.Close()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), completed.Load())
}

func TestExecuteConcurrentRunsIsolated(t *testing.T) {
	e := NewEngine(nil, nil)
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "stamp", order: 1,
		execute: func(_ context.Context, req *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
			wc.Set("id", req.ID)
			return &domain.StepResult{Success: true}, nil
		},
	}))
	require.NoError(t, e.RegisterStep(&funcStep{
		name: "verify", order: 2,
		execute: func(_ context.Context, req *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
			if id, _ := wc.Get("id"); id != req.ID {
				return &domain.StepResult{Success: false, Message: "context leaked across runs"}, nil
			}
			return &domain.StepResult{Success: true}, nil
		},
	}))

	done := make(chan *domain.WorkflowResult, 20)
	for i := 0; i < 20; i++ {
		go func(n int) {
			req := &domain.Request{ID: fmt.Sprintf("req-%d", n), Prompt: "x"}
			result, err := e.Execute(context.Background(), req)
			if err != nil {
				t.Error(err)
			}
			done <- result
		}(i)
	}
	for i := 0; i < 20; i++ {
		result := <-done
		assert.True(t, result.Success)
	}
}
