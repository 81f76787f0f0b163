// Package reconcile keeps the three mutually dependent export-copy
// quantities (percent, width, height) consistent with a document's
// original dimensions whenever one of them is edited. It is a pure
// algorithm with no UI dependency; the interactive editor drives it.
package reconcile

// State of a session.
type State int

const (
	// Idle means no reconciliation is running; edits are accepted.
	Idle State = iota
	// Reconciling means dependent fields are being recomputed; edits
	// arriving in this state are suppressed instead of cascading.
	Reconciling
)

// Field identifies one of the three dependent quantities.
type Field int

const (
	FieldPercent Field = iota
	FieldWidth
	FieldHeight
)

func (f Field) String() string {
	switch f {
	case FieldPercent:
		return "percent"
	case FieldWidth:
		return "width"
	case FieldHeight:
		return "height"
	}
	return "unknown"
}

// Session owns one editing session's percent/width/height state plus its
// reconciliation guard. Each session has its own guard, so concurrent
// sessions cannot interfere through shared state.
type Session struct {
	origWidth  int
	origHeight int

	percent float64
	width   int
	height  int

	state  State
	notify func(Field)
}

// NewSession creates a session for a document with the given original
// dimensions, starting at 100 percent / original size.
func NewSession(origWidth, origHeight int) *Session {
	return &Session{
		origWidth:  origWidth,
		origHeight: origHeight,
		percent:    100.0,
		width:      origWidth,
		height:     origHeight,
	}
}

// OnChange registers a callback invoked once per field the session
// recomputes. The callback runs with the session in Reconciling state, so
// setter calls it makes are suppressed rather than cascading.
func (s *Session) OnChange(fn func(Field)) { s.notify = fn }

// Percent returns the current scale percent.
func (s *Session) Percent() float64 { return s.percent }

// Width returns the current copy width in pixels.
func (s *Session) Width() int { return s.width }

// Height returns the current copy height in pixels.
func (s *Session) Height() int { return s.height }

// State returns the session's guard state.
func (s *Session) State() State { return s.state }

// Values returns percent, width and height together.
func (s *Session) Values() (percent float64, width, height int) {
	return s.percent, s.width, s.height
}

// SetPercent applies a percent edit, deriving width and height from it.
// Returns false if the edit was suppressed (zero/negative input or a
// reconciliation already in progress).
func (s *Session) SetPercent(p float64) bool {
	if s.state == Reconciling || p <= 0 {
		return false
	}
	s.state = Reconciling
	defer func() { s.state = Idle }()

	s.percent = p
	s.width = int(float64(s.origWidth) * p / 100.0)
	s.height = int(float64(s.origHeight) * p / 100.0)
	s.fire(FieldWidth)
	s.fire(FieldHeight)
	return true
}

// SetWidth applies a width edit. The percent is derived from the width and
// the height is then re-derived from that percent, never from the width
// directly, so rounding drift cannot compound.
func (s *Session) SetWidth(w int) bool {
	if s.state == Reconciling || w <= 0 {
		return false
	}
	s.state = Reconciling
	defer func() { s.state = Idle }()

	p := w * 100 / s.origWidth
	s.width = w
	s.percent = float64(p)
	s.height = s.origHeight * p / 100
	s.fire(FieldPercent)
	s.fire(FieldHeight)
	return true
}

// SetHeight applies a height edit, mirroring SetWidth.
func (s *Session) SetHeight(h int) bool {
	if s.state == Reconciling || h <= 0 {
		return false
	}
	s.state = Reconciling
	defer func() { s.state = Idle }()

	p := h * 100 / s.origHeight
	s.height = h
	s.percent = float64(p)
	s.width = s.origWidth * p / 100
	s.fire(FieldPercent)
	s.fire(FieldWidth)
	return true
}

func (s *Session) fire(f Field) {
	if s.notify != nil {
		s.notify(f)
	}
}
