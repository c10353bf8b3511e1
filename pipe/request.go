package pipe

import (
	"fmt"

	"github.com/zsiec/siflow/flow"
)

// RequestKind identifies what a request asks for.
type RequestKind int

// Request kinds.
const (
	// RequestFlowFormat asks downstream to amend a proposed flow definition.
	RequestFlowFormat RequestKind = iota
	// RequestBlockPool asks for a block pool suited to the flow.
	RequestBlockPool
)

func (k RequestKind) String() string {
	switch k {
	case RequestFlowFormat:
		return "flow_format"
	case RequestBlockPool:
		return "block_pool"
	default:
		return fmt.Sprintf("request(%d)", int(k))
	}
}

// Request is a question travelling downstream until a pipe, or a probe,
// answers it through Provide.
type Request struct {
	Kind    RequestKind
	FlowDef *flow.Def
	provide func(v any) error
}

// NewRequest creates a request whose answer is handed to provide.
func NewRequest(kind RequestKind, def *flow.Def, provide func(v any) error) *Request {
	return &Request{Kind: kind, FlowDef: def, provide: provide}
}

// Provide answers the request.
func (r *Request) Provide(v any) error {
	if r.provide == nil {
		return ErrUnhandled
	}
	return r.provide(v)
}
