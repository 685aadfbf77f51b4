package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrDisabled     = fmt.Errorf("disabled")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the dispatch engine.
var (
	// ErrNilRequest is the precondition error for a nil request. It is one of
	// the two errors allowed to escape ProcessRequest alongside ErrNoAgents.
	ErrNilRequest = fmt.Errorf("request is nil")
	// ErrNoAgents means routing was asked to decide with an empty agent set.
	// There is nothing to fall back to, so this is a hard stop.
	ErrNoAgents = fmt.Errorf("no agents available")
	// ErrClassifierUnavailable marks a classifier that cannot run at all,
	// as opposed to one returning a genuine low-confidence classification.
	ErrClassifierUnavailable = fmt.Errorf("classifier unavailable")
	// ErrDuplicateStep rejects a second workflow step with an existing name.
	ErrDuplicateStep = fmt.Errorf("duplicate workflow step")

	ErrAgentFailure = fmt.Errorf("agent invocation failed")
	ErrAgentBusy    = fmt.Errorf("agent busy")
	ErrJournal      = fmt.Errorf("journal operation failed")
	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Engine.Evaluate")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "routing", "workflow"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem so that
// ErrorCodeOf can map the combination of sentinel + subsystem to a specific
// ErrorCode.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed
// on retry. Agent-busy and timeout class failures qualify; everything else
// fails the invocation outright.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrAgentBusy) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes grouped by subsystem. Every sentinel error maps to exactly one code.
const (
	CodeUnknown               ErrorCode = "UNKNOWN"
	CodeNilRequest            ErrorCode = "NIL_REQUEST"
	CodeNoAgents              ErrorCode = "NO_AGENTS"
	CodeClassifierUnavailable ErrorCode = "CLASSIFIER_UNAVAILABLE"
	CodeAgentFailure          ErrorCode = "AGENT_FAILURE"
	CodeAgentBusy             ErrorCode = "AGENT_BUSY"
	CodeJournal               ErrorCode = "JOURNAL"
	CodeConfigLoad            ErrorCode = "CONFIG_LOAD"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate     ErrorCode = "AGENT_DUPLICATE"
	CodeRuleNotFound       ErrorCode = "RULE_NOT_FOUND"
	CodeRuleInvalid        ErrorCode = "RULE_INVALID"
	CodeStepDuplicate      ErrorCode = "WORKFLOW_STEP_DUPLICATE"
	CodeStepInvalid        ErrorCode = "WORKFLOW_STEP_INVALID"
	CodeWorkflowGuardLimit ErrorCode = "WORKFLOW_GUARD_LIMIT"

	// Category error codes — fallback codes when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeDisabled     ErrorCode = "DISABLED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	// Category sentinels (fallback codes).
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrDisabled:     CodeDisabled,
	ErrInvalidInput: CodeInvalidInput,

	// Engine sentinels.
	ErrNilRequest:            CodeNilRequest,
	ErrNoAgents:              CodeNoAgents,
	ErrClassifierUnavailable: CodeClassifierUnavailable,
	ErrDuplicateStep:         CodeStepDuplicate,
	ErrAgentFailure:          CodeAgentFailure,
	ErrAgentBusy:             CodeAgentBusy,
	ErrJournal:               CodeJournal,
	ErrConfigLoad:            CodeConfigLoad,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":   CodeAgentNotFound,
		"routing": CodeRuleNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrInvalidInput: {
		"routing":  CodeRuleInvalid,
		"workflow": CodeStepInvalid,
	},
	ErrLimitReached: {
		"workflow": CodeWorkflowGuardLimit,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	// Unwrap DomainError to check its inner sentinel and subsystem.
	var de *DomainError
	if errors.As(err, &de) {
		if de.SubSystem != "" {
			if subsysMap, ok := subSystemCodeMap[de.Err]; ok {
				if code, ok := subsysMap[de.SubSystem]; ok {
					return code
				}
			}
		}
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
