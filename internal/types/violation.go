package types

import "strings"

// Severity of a violation. Only errors fail a verification.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code is a stable violation code that callers may depend on.
type Code string

const (
	CodeRequestPathOrMethodUnknown     Code = "request.path-or-method.unknown"
	CodeRequestAcceptIncompatible      Code = "request.accept.incompatible"
	CodeRequestAcceptUnknown           Code = "request.accept.unknown"
	CodeRequestAuthorizationMissing    Code = "request.authorization.missing"
	CodeRequestBodyIncompatible        Code = "request.body.incompatible"
	CodeRequestBodyUnknown             Code = "request.body.unknown"
	CodeRequestContentTypeIncompatible Code = "request.content-type.incompatible"
	CodeRequestContentTypeMissing      Code = "request.content-type.missing"
	CodeRequestContentTypeUnknown      Code = "request.content-type.unknown"
	CodeRequestHeaderIncompatible      Code = "request.header.incompatible"
	CodeRequestHeaderUnknown           Code = "request.header.unknown"
	CodeRequestQueryIncompatible       Code = "request.query.incompatible"
	CodeRequestQueryUnknown            Code = "request.query.unknown"

	CodeResponseBodyIncompatible        Code = "response.body.incompatible"
	CodeResponseBodyUnknown             Code = "response.body.unknown"
	CodeResponseContentTypeIncompatible Code = "response.content-type.incompatible"
	CodeResponseContentTypeUnknown      Code = "response.content-type.unknown"
	CodeResponseHeaderIncompatible      Code = "response.header.incompatible"
	CodeResponseHeaderUnknown           Code = "response.header.unknown"
	CodeResponseStatusDefault           Code = "response.status.default"
	CodeResponseStatusUnknown           Code = "response.status.unknown"
)

var codeSeverity = map[Code]Severity{
	CodeRequestPathOrMethodUnknown:      SeverityError,
	CodeRequestAcceptIncompatible:       SeverityError,
	CodeRequestAcceptUnknown:            SeverityWarning,
	CodeRequestAuthorizationMissing:     SeverityError,
	CodeRequestBodyIncompatible:         SeverityError,
	CodeRequestBodyUnknown:              SeverityWarning,
	CodeRequestContentTypeIncompatible:  SeverityError,
	CodeRequestContentTypeMissing:       SeverityWarning,
	CodeRequestContentTypeUnknown:       SeverityWarning,
	CodeRequestHeaderIncompatible:       SeverityError,
	CodeRequestHeaderUnknown:            SeverityWarning,
	CodeRequestQueryIncompatible:        SeverityError,
	CodeRequestQueryUnknown:             SeverityWarning,
	CodeResponseBodyIncompatible:        SeverityError,
	CodeResponseBodyUnknown:             SeverityWarning,
	CodeResponseContentTypeIncompatible: SeverityError,
	CodeResponseContentTypeUnknown:      SeverityWarning,
	CodeResponseHeaderIncompatible:      SeverityError,
	CodeResponseHeaderUnknown:           SeverityWarning,
	CodeResponseStatusDefault:           SeverityWarning,
	CodeResponseStatusUnknown:           SeverityError,
}

// Codes returns every code in taxonomy order.
func Codes() []Code {
	return []Code{
		CodeRequestPathOrMethodUnknown,
		CodeRequestAcceptIncompatible,
		CodeRequestAcceptUnknown,
		CodeRequestAuthorizationMissing,
		CodeRequestBodyIncompatible,
		CodeRequestBodyUnknown,
		CodeRequestContentTypeIncompatible,
		CodeRequestContentTypeMissing,
		CodeRequestContentTypeUnknown,
		CodeRequestHeaderIncompatible,
		CodeRequestHeaderUnknown,
		CodeRequestQueryIncompatible,
		CodeRequestQueryUnknown,
		CodeResponseBodyIncompatible,
		CodeResponseBodyUnknown,
		CodeResponseContentTypeIncompatible,
		CodeResponseContentTypeUnknown,
		CodeResponseHeaderIncompatible,
		CodeResponseHeaderUnknown,
		CodeResponseStatusDefault,
		CodeResponseStatusUnknown,
	}
}

// Severity returns the fixed severity of the code.
func (c Code) Severity() Severity {
	if s, ok := codeSeverity[c]; ok {
		return s
	}
	return SeverityError
}

// IsRequest reports whether the code belongs to the request half.
func (c Code) IsRequest() bool {
	return strings.HasPrefix(string(c), "request.")
}

// Violation kinds
const (
	KindMissing      = "missing"
	KindIncompatible = "incompatible"
	KindUnknown      = "unknown"
)

// Violation is one finding of a verification run
type Violation struct {
	Code     Code     `json:"code"`
	Severity Severity `json:"severity"`
	// Kind is missing, incompatible or unknown.
	Kind                   string `json:"kind"`
	Message                string `json:"message"`
	InteractionIndex       int    `json:"interactionIndex"`
	InteractionDescription string `json:"interactionDescription"`
	InteractionLocation    string `json:"interactionLocation"`
	SpecLocation           string `json:"specLocation"`
	Value                  any    `json:"value,omitempty"`
	Constraint             string `json:"constraint,omitempty"`
}

// NewViolation creates a violation with the severity of its code. The kind
// defaults to the last segment of the code.
func NewViolation(code Code, message string) Violation {
	kind := string(code)
	if i := strings.LastIndex(kind, "."); i >= 0 {
		kind = kind[i+1:]
	}
	return Violation{
		Code:     code,
		Severity: code.Severity(),
		Kind:     kind,
		Message:  message,
	}
}

// InteractionResult holds the violations of one interaction in discovery order.
type InteractionResult struct {
	Index       int
	Description string
	Violations  []Violation
}

// Summary counts the findings of a run
type Summary struct {
	Interactions       int          `json:"interactions"`
	FailedInteractions int          `json:"failedInteractions"`
	Errors             int          `json:"errors"`
	Warnings           int          `json:"warnings"`
	ByCode             map[Code]int `json:"byCode,omitempty"`
}

// Suggestion is a remediation hint attached to a failing interaction.
type Suggestion struct {
	InteractionIndex int    `json:"interactionIndex"`
	Text             string `json:"text"`
}

// VerificationResult is the outcome of a verification run
type VerificationResult struct {
	RunID       string       `json:"runId"`
	Consumer    string       `json:"consumer,omitempty"`
	Provider    string       `json:"provider,omitempty"`
	Success     bool         `json:"success"`
	Violations  []Violation  `json:"violations"`
	Summary     Summary      `json:"summary"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}
