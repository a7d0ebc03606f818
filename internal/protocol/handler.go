package protocol

// HandlerOptions configures frame dispatch
type HandlerOptions struct {
	Solution SolutionOptions
	// ForwardOtherClasses forwards frames outside the NAV class unchanged.
	// When false they are dropped.
	ForwardOtherClasses bool
}

// Result describes what the relay must do with one extracted frame.
type Result struct {
	// Message is the decoded record; nil when the frame was not decoded
	Message Message
	// Forward is set when the original frame must be retransmitted
	Forward bool
	// DecodeErr is set when a known message failed to decode
	DecodeErr error
	// Solution is the synthesized NAV-SOL, set only after a NAV-VELECEF
	Solution *NavSol
	// SolutionErr explains why a NAV-VELECEF did not yield a solution
	// (ErrInsufficientData, ErrEpochMismatch)
	SolutionErr error
}

// Handler decodes frames into the navigation state it owns and decides
// which frames are forwarded and when a NAV-SOL is synthesized.
type Handler struct {
	state *NavState
	opts  HandlerOptions
}

// NewHandler creates a handler with an empty navigation state
func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		state: NewNavState(),
		opts:  opts,
	}
}

// State returns the navigation state updated by Handle
func (h *Handler) State() *NavState {
	return h.state
}

// Handle processes one checksum-valid frame.
//
// Known NAV records are decoded and stored; they are forwarded only when
// they decode. Other NAV messages are forwarded without decoding. Frames of
// other classes are forwarded only with ForwardOtherClasses.
func (h *Handler) Handle(f *Frame) Result {
	if !IsKnown(f.Class, f.ID) {
		return Result{Forward: f.Class == ClassNAV || h.opts.ForwardOtherClasses}
	}

	msg, err := f.ParseMessage()
	if err != nil {
		return Result{DecodeErr: err}
	}

	h.state.Update(msg)
	res := Result{Message: msg, Forward: true}

	if f.ID == MsgIDNavVelECEF {
		res.Solution, res.SolutionErr = BuildNavSol(h.state, h.opts.Solution)
	}

	return res
}
