package checker

import (
	"errors"
	"fmt"
	"strconv"

	"pact-verifier/internal/resolver"
	"pact-verifier/internal/schema"
	"pact-verifier/internal/types"
)

// Options configures a Checker.
type Options struct {
	// AdditionalProperties decides how undeclared object keys are treated when
	// a schema does not say. It must be set.
	AdditionalProperties schema.Policy
}

// Checker verifies interactions against one specification. It holds no
// mutable state and may be used from several goroutines.
type Checker struct {
	spec            *types.Specification
	requestMatcher  *schema.Matcher
	responseMatcher *schema.Matcher
}

// New creates a Checker for spec.
func New(spec *types.Specification, opts Options) (*Checker, error) {
	m, err := schema.NewMatcher(schema.Options{
		AdditionalProperties: opts.AdditionalProperties,
		Definitions:          spec.Definitions,
	})
	if err != nil {
		return nil, err
	}
	return &Checker{
		spec:            spec,
		requestMatcher:  m.WithDirection(schema.DirectionRequest),
		responseMatcher: m.WithDirection(schema.DirectionResponse),
	}, nil
}

type state int

const (
	stateStart state = iota
	statePathResolved
	stateRequestValidated
	stateResponseValidated
	stateDone
)

// check carries the findings for one interaction.
type check struct {
	*Checker
	interaction *types.Interaction
	match       *resolver.Match
	response    *types.ResponseDefinition
	violations  []types.Violation
}

// Check verifies one interaction. Findings are returned as violations in
// discovery order, request before response. An error is returned only when
// the specification itself turns out to be unusable.
func (c *Checker) Check(interaction *types.Interaction) ([]types.Violation, error) {
	ch := &check{Checker: c, interaction: interaction}

	st := stateStart
	for st != stateDone {
		var err error
		switch st {
		case stateStart:
			st, err = ch.resolve()
		case statePathResolved:
			st = ch.checkRequest()
		case stateRequestValidated:
			st = ch.checkResponse()
		case stateResponseValidated:
			st = stateDone
		}
		if err != nil {
			return nil, err
		}
	}
	return ch.violations, nil
}

func (ch *check) resolve() (state, error) {
	req := ch.interaction.Request
	match, err := resolver.Resolve(ch.spec, req.Method, req.Path)
	if errors.Is(err, resolver.ErrUnknownPathOrMethod) {
		v := types.NewViolation(types.CodeRequestPathOrMethodUnknown,
			fmt.Sprintf("no endpoint matches %s %s", req.Method, req.Path))
		v.Value = req.Path
		ch.add(v, "request.path", "paths")
		return stateDone, nil
	}
	if err != nil {
		return stateDone, err
	}
	ch.match = match

	if !ch.checkPathParams() {
		return stateDone, nil
	}
	return statePathResolved, nil
}

// checkPathParams validates the bound path segments. A value that does not
// fit its parameter means no endpoint accepts the path.
func (ch *check) checkPathParams() bool {
	e := ch.match.Endpoint
	for _, p := range e.Params(types.InPath) {
		raw, ok := ch.match.Params[p.Name]
		if !ok || p.Schema == nil {
			continue
		}
		issues := ch.requestMatcher.Validate(schema.Coerce([]string{raw}, p.Schema, ch.spec.Definitions), p.Schema, "")
		if len(issues) == 0 {
			continue
		}
		is := issues[0]
		v := types.NewViolation(types.CodeRequestPathOrMethodUnknown,
			fmt.Sprintf("no endpoint matches %s %s: path parameter '%s' %s",
				ch.interaction.Request.Method, ch.interaction.Request.Path, p.Name, is.Message))
		v.Value = raw
		v.Constraint = is.Constraint
		ch.add(v, "request.path", locationOr(is.SchemaLocation, p.Location))
		return false
	}
	return true
}

func (ch *check) checkRequest() state {
	ch.checkRequestContentType()
	ch.checkAccept()
	ch.checkRequestHeaders()
	ch.checkQuery()
	ch.checkAuthorization()
	ch.checkRequestBody()
	return stateRequestValidated
}

// lookupResponse finds the response definition for the expected status:
// exact code, then range ("2XX"), then default.
func (ch *check) lookupResponse() (*types.ResponseDefinition, bool) {
	e := ch.match.Endpoint
	status := ch.interaction.Response.Status
	if r, ok := e.Responses[strconv.Itoa(status)]; ok {
		return r, false
	}
	if r, ok := e.Responses[strconv.Itoa(status/100)+"XX"]; ok {
		return r, false
	}
	if r, ok := e.Responses["DEFAULT"]; ok {
		return r, true
	}
	return nil, false
}

func (ch *check) checkResponse() state {
	e := ch.match.Endpoint
	status := ch.interaction.Response.Status

	def, isDefault := ch.lookupResponse()
	if def == nil {
		v := types.NewViolation(types.CodeResponseStatusUnknown,
			fmt.Sprintf("status %d is not declared for %s %s", status, e.Method, e.Template))
		v.Value = status
		ch.add(v, "response.status", e.Location+".responses")
		return stateDone
	}
	if isDefault {
		v := types.NewViolation(types.CodeResponseStatusDefault,
			fmt.Sprintf("status %d only matches the default response of %s %s", status, e.Method, e.Template))
		v.Value = status
		ch.add(v, "response.status", def.Location)
	}
	ch.response = def

	ch.checkResponseContentType()
	ch.checkResponseHeaders()
	ch.checkResponseBody()
	return stateResponseValidated
}

// add completes a violation with the interaction context. field is relative
// to the interaction location.
func (ch *check) add(v types.Violation, field, specLocation string) {
	v.InteractionIndex = ch.interaction.Index
	v.InteractionDescription = ch.interaction.Description
	v.InteractionLocation = schema.JoinLocation(ch.interaction.Location(), field)
	v.SpecLocation = specLocation
	ch.violations = append(ch.violations, v)
}

// addIssues turns matcher issues into violations of the given code. Value
// locations in the issues are already absolute.
func (ch *check) addIssues(code types.Code, prefix string, issues []schema.Issue, fallback string) {
	for _, is := range issues {
		v := types.NewViolation(code, prefix+is.Message)
		v.Kind = issueKind(is.Kind)
		v.Value = is.Value
		v.Constraint = is.Constraint
		v.InteractionIndex = ch.interaction.Index
		v.InteractionDescription = ch.interaction.Description
		v.InteractionLocation = is.ValueLocation
		v.SpecLocation = locationOr(is.SchemaLocation, fallback)
		ch.violations = append(ch.violations, v)
	}
}

func issueKind(k schema.IssueKind) string {
	switch k {
	case schema.IssueMissing:
		return types.KindMissing
	case schema.IssueUnknown:
		return types.KindUnknown
	default:
		return types.KindIncompatible
	}
}

func locationOr(loc, fallback string) string {
	if loc == "" {
		return fallback
	}
	return loc
}
