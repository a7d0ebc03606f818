package protocol

import (
	"errors"
	"testing"
)

func frameOf(t *testing.T, class, id byte, payload []byte) *Frame {
	t.Helper()
	ex := TryExtract(mustEncode(class, id, payload))
	if ex.Status != FrameReady {
		t.Fatalf("TryExtract() status = %s", ex.Status)
	}
	return ex.Frame
}

func TestHandlerForwarding(t *testing.T) {
	tests := []struct {
		name        string
		opts        HandlerOptions
		class, id   byte
		payload     []byte
		wantForward bool
		wantDecoded bool
		wantErr     bool
	}{
		{
			name:        "decoded position",
			class:       ClassNAV,
			id:          MsgIDNavPosECEF,
			payload:     buildECEFPayload(1, 2, 3, 4, 5),
			wantForward: true,
			wantDecoded: true,
		},
		{
			name:        "decoded time",
			class:       ClassNAV,
			id:          MsgIDNavTimeUTC,
			payload:     buildTimeUTCPayload(1, 0, 2024, 1, 1, 0, 0, 0, 7),
			wantForward: true,
			wantDecoded: true,
		},
		{
			name:    "truncated known message is dropped",
			class:   ClassNAV,
			id:      MsgIDNavPVT,
			payload: make([]byte, 10),
			wantErr: true,
		},
		{
			name:        "other NAV message is forwarded raw",
			class:       ClassNAV,
			id:          0x35,
			payload:     []byte{1, 2, 3},
			wantForward: true,
		},
		{
			name:    "other class is dropped by default",
			class:   0x0A,
			id:      0x04,
			payload: []byte{1},
		},
		{
			name:        "other class forwarded when enabled",
			opts:        HandlerOptions{ForwardOtherClasses: true},
			class:       0x0A,
			id:          0x04,
			payload:     []byte{1},
			wantForward: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.opts)
			res := h.Handle(frameOf(t, tt.class, tt.id, tt.payload))
			if res.Forward != tt.wantForward {
				t.Errorf("Forward = %v, want %v", res.Forward, tt.wantForward)
			}
			if (res.Message != nil) != tt.wantDecoded {
				t.Errorf("Message = %v, wantDecoded %v", res.Message, tt.wantDecoded)
			}
			if (res.DecodeErr != nil) != tt.wantErr {
				t.Errorf("DecodeErr = %v, wantErr %v", res.DecodeErr, tt.wantErr)
			}
			if res.Solution != nil {
				t.Error("no solution expected")
			}
		})
	}
}

func TestHandlerSynthesizesOnVelocity(t *testing.T) {
	h := NewHandler(HandlerOptions{Solution: DefaultSolutionOptions()})
	pvt := defaultPVT()

	res := h.Handle(frameOf(t, ClassNAV, MsgIDNavVelECEF, buildECEFPayload(pvt.iTOW, 1, 2, 3, 4)))
	if res.Solution != nil || !errors.Is(res.SolutionErr, ErrInsufficientData) {
		t.Fatalf("velocity before pvt: solution=%v err=%v", res.Solution, res.SolutionErr)
	}
	if !res.Forward {
		t.Error("velocity should still be forwarded")
	}

	res = h.Handle(frameOf(t, ClassNAV, MsgIDNavPVT, buildPVTPayload(pvt)))
	if res.Solution != nil || res.SolutionErr != nil {
		t.Errorf("pvt must not trigger synthesis: %+v", res)
	}

	res = h.Handle(frameOf(t, ClassNAV, MsgIDNavPosECEF, buildECEFPayload(pvt.iTOW, 100, 200, 300, 40)))
	if res.Solution != nil {
		t.Error("position must not trigger synthesis")
	}

	res = h.Handle(frameOf(t, ClassNAV, MsgIDNavVelECEF, buildECEFPayload(pvt.iTOW, 5, 6, 7, 8)))
	if res.SolutionErr != nil {
		t.Fatalf("SolutionErr = %v", res.SolutionErr)
	}
	sol := res.Solution
	if sol == nil {
		t.Fatal("expected a solution")
	}
	if sol.ITOW != pvt.iTOW || sol.EcefX != 100 || sol.EcefVZ != 7 || sol.SAcc != 8 || sol.PAcc != 40 {
		t.Errorf("solution = %s", sol)
	}
	if h.State().VelECEF().EcefVX != 5 {
		t.Error("state was not updated before synthesis")
	}
}

func TestHandlerBadPayloadKeepsState(t *testing.T) {
	h := NewHandler(HandlerOptions{Solution: DefaultSolutionOptions()})
	h.Handle(frameOf(t, ClassNAV, MsgIDNavPVT, buildPVTPayload(defaultPVT())))

	res := h.Handle(frameOf(t, ClassNAV, MsgIDNavPVT, make([]byte, 50)))
	if !errors.Is(res.DecodeErr, ErrPayloadTooShort) {
		t.Fatalf("DecodeErr = %v, want ErrPayloadTooShort", res.DecodeErr)
	}
	if h.State().PVT() == nil || h.State().PVT().ITOW != defaultPVT().iTOW {
		t.Error("a failed decode must not clear the stored record")
	}
}
