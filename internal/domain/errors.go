package domain

import "errors"

// Validation errors for the declarative knowledge base. Malformed rule or
// mapping files abort startup; they are never surfaced per-request.
var (
	ErrRuleMissingID         = errors.New("clinical rule is missing rule_id")
	ErrRuleMissingTechnique  = errors.New("clinical rule is missing technique")
	ErrRuleInvalidPriority   = errors.New("clinical rule priority must be non-negative")
	ErrUnknownGuardrailCheck = errors.New("unknown guardrail check kind")
	ErrUnsupportedLanguage   = errors.New("unsupported report language")
	ErrPatientIDRequired     = errors.New("patient id is required")
	ErrTechniqueIDRequired   = errors.New("technique id is required")
	ErrNotFound              = errors.New("not found")
)
