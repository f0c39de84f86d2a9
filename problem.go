package riptide

import (
	"fmt"
	"strings"
)

// Problem is an RFC 7807 problem detail, served as application/problem+json.
// It implements error so that Propagate[*Problem]() fails a call with it.
type Problem struct {
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Status   int    `json:"status,omitempty" yaml:"status,omitempty"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Instance string `json:"instance,omitempty" yaml:"instance,omitempty"`
}

func (p *Problem) Error() string {
	var b strings.Builder
	if p.Title != "" {
		b.WriteString(p.Title)
	} else {
		b.WriteString("problem")
	}
	if p.Status != 0 {
		fmt.Fprintf(&b, " (%d)", p.Status)
	}
	if p.Detail != "" {
		b.WriteString(": ")
		b.WriteString(p.Detail)
	}
	return b.String()
}

// OnProblem is the shared binding for problem responses on ByContentType trees.
func OnProblem() Binding[MediaType] {
	return On(ApplicationProblemJSON).Call(Propagate[*Problem]())
}

// ProblemRoute handles failure responses: problem bodies fail the call with
// a *Problem, anything else fails it with an *UnexpectedResponseError.
var ProblemRoute = Dispatch(ByContentType(),
	OnProblem(),
	AnyContentType().Call(Fail()),
)
