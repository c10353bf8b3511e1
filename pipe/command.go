package pipe

import (
	"github.com/zsiec/siflow/flow"
)

// Command is a control command. The set of commands is closed; pipe
// specific extensions travel inside a LocalCmd.
type Command interface {
	command()
}

// RegisterRequestCmd registers a request with the pipe, which answers it or
// forwards it downstream.
type RegisterRequestCmd struct{ Request *Request }

// UnregisterRequestCmd withdraws a previously registered request.
type UnregisterRequestCmd struct{ Request *Request }

// GetOutputCmd retrieves the output pipe into Output.
type GetOutputCmd struct{ Output Pipe }

// SetOutputCmd sets the output pipe. A nil Output unlinks the pipe.
type SetOutputCmd struct{ Output Pipe }

// GetFlowDefCmd retrieves the current output flow definition into FlowDef.
type GetFlowDefCmd struct{ FlowDef *flow.Def }

// SetFlowDefCmd sets the input flow definition. The receiving pipe must
// duplicate FlowDef if it keeps it.
type SetFlowDefCmd struct{ FlowDef *flow.Def }

// SplitIterateCmd walks the sub-flows of a split pipe. FlowDef holds the
// previous element on entry (nil to start) and the next element on return
// (nil when exhausted).
type SplitIterateCmd struct{ FlowDef *flow.Def }

// LocalCmd carries a command specific to one pipe type, identified by the
// manager signature.
type LocalCmd struct {
	Signature uint32
	Command   any
}

func (*RegisterRequestCmd) command()   {}
func (*UnregisterRequestCmd) command() {}
func (*GetOutputCmd) command()         {}
func (*SetOutputCmd) command()         {}
func (*GetFlowDefCmd) command()        {}
func (*SetFlowDefCmd) command()        {}
func (*SplitIterateCmd) command()      {}
func (*LocalCmd) command()             {}

// RegisterRequest registers r with p.
func RegisterRequest(p Pipe, r *Request) error {
	return p.Control(&RegisterRequestCmd{Request: r})
}

// UnregisterRequest withdraws r from p.
func UnregisterRequest(p Pipe, r *Request) error {
	return p.Control(&UnregisterRequestCmd{Request: r})
}

// GetOutput returns the output of p.
func GetOutput(p Pipe) (Pipe, error) {
	cmd := &GetOutputCmd{}
	err := p.Control(cmd)
	return cmd.Output, err
}

// SetOutput links p to output.
func SetOutput(p, output Pipe) error {
	return p.Control(&SetOutputCmd{Output: output})
}

// GetFlowDef returns the output flow definition of p.
func GetFlowDef(p Pipe) (*flow.Def, error) {
	cmd := &GetFlowDefCmd{}
	err := p.Control(cmd)
	return cmd.FlowDef, err
}

// SetFlowDef sets the input flow definition of p.
func SetFlowDef(p Pipe, def *flow.Def) error {
	return p.Control(&SetFlowDefCmd{FlowDef: def})
}

// SplitIterate returns the sub-flow following prev, or the first one when
// prev is nil. It returns nil once the list is exhausted.
func SplitIterate(p Pipe, prev *flow.Def) (*flow.Def, error) {
	cmd := &SplitIterateCmd{FlowDef: prev}
	err := p.Control(cmd)
	return cmd.FlowDef, err
}

// SplitFlowDefs walks every sub-flow of p from the start.
func SplitFlowDefs(p Pipe) ([]*flow.Def, error) {
	var out []*flow.Def
	var def *flow.Def
	for {
		next, err := SplitIterate(p, def)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return out, nil
		}
		out = append(out, next)
		def = next
	}
}

// Local sends a pipe specific command, checking the manager signature.
func Local(p Pipe, signature uint32, cmd any) error {
	return p.Control(&LocalCmd{Signature: signature, Command: cmd})
}
