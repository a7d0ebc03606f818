package protocol

// NavState holds the most recently decoded record of each NAV message type.
//
// Slots are overwritten unconditionally: the newest successfully decoded
// record wins regardless of its iTOW. A NavState is owned by a single stream
// and is not safe for concurrent use.
type NavState struct {
	pvt     *NavPVT
	posECEF *NavPosECEF
	velECEF *NavVelECEF
	timeUTC *NavTimeUTC
}

// NewNavState returns an empty navigation state
func NewNavState() *NavState {
	return &NavState{}
}

// Update stores msg in the slot matching its type. It reports false for
// messages that have no slot (unknown messages, nil records).
func (s *NavState) Update(msg Message) bool {
	switch m := msg.(type) {
	case *NavPVT:
		if m == nil {
			return false
		}
		s.pvt = m
	case *NavPosECEF:
		if m == nil {
			return false
		}
		s.posECEF = m
	case *NavVelECEF:
		if m == nil {
			return false
		}
		s.velECEF = m
	case *NavTimeUTC:
		if m == nil {
			return false
		}
		s.timeUTC = m
	default:
		return false
	}
	return true
}

// PVT returns the latest NAV-PVT record, or nil
func (s *NavState) PVT() *NavPVT { return s.pvt }

// PosECEF returns the latest NAV-POSECEF record, or nil
func (s *NavState) PosECEF() *NavPosECEF { return s.posECEF }

// VelECEF returns the latest NAV-VELECEF record, or nil
func (s *NavState) VelECEF() *NavVelECEF { return s.velECEF }

// TimeUTC returns the latest NAV-TIMEUTC record, or nil
func (s *NavState) TimeUTC() *NavTimeUTC { return s.timeUTC }

// Reset clears every slot
func (s *NavState) Reset() {
	*s = NavState{}
}
