package relay

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"syscall"
	"testing"
	"testing/iotest"

	"github.com/muurk/ubxrelay/internal/protocol"
	"github.com/muurk/ubxrelay/internal/transport"
)

const testTOW = 417000000

func pvtPayload(iTOW uint32) []byte {
	p := make([]byte, protocol.NavPVTSize)
	le := binary.LittleEndian
	le.PutUint32(p[0:4], iTOW)
	le.PutUint16(p[4:6], 2024)
	p[6], p[7], p[8], p[9], p[10] = 6, 1, 19, 50, 0
	p[11] = protocol.PVTValidDate | protocol.PVTValidTime
	nano := int32(-2500)
	le.PutUint32(p[16:20], uint32(nano))
	p[20] = protocol.Fix3D
	p[21] = protocol.PVTFlagGNSSFixOK | protocol.PVTFlagDiffSoln
	p[23] = 17
	le.PutUint16(p[76:78], 118)
	return p
}

func ecefPayload(iTOW uint32, x, y, z int32, acc uint32) []byte {
	p := make([]byte, 20)
	le := binary.LittleEndian
	le.PutUint32(p[0:4], iTOW)
	le.PutUint32(p[4:8], uint32(x))
	le.PutUint32(p[8:12], uint32(y))
	le.PutUint32(p[12:16], uint32(z))
	le.PutUint32(p[16:20], acc)
	return p
}

func encode(t *testing.T, class, id byte, payload []byte) []byte {
	t.Helper()
	frame, err := protocol.Encode(class, id, payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return frame
}

// splitFrames extracts every frame from a relay output stream
func splitFrames(t *testing.T, out []byte) []*protocol.Frame {
	t.Helper()
	var frames []*protocol.Frame
	for len(out) > 0 {
		ex := protocol.TryExtract(out)
		if ex.Status != protocol.FrameReady {
			t.Fatalf("output is not a clean frame sequence: %s at % x", ex.Status, out)
		}
		frames = append(frames, ex.Frame)
		out = out[ex.Consumed:]
	}
	return frames
}

// recordingSink keeps every displayed record
type recordingSink struct {
	msgs []protocol.Message
}

func (r *recordingSink) Display(msg protocol.Message) { r.msgs = append(r.msgs, msg) }

type discardRecorder struct {
	data []byte
}

func (d *discardRecorder) Discarded(b []byte) { d.data = append(d.data, b...) }

func scenario(t *testing.T) (pos, pvt, vel []byte) {
	pos = encode(t, protocol.ClassNAV, protocol.MsgIDNavPosECEF, ecefPayload(testTOW, -269404512, -429364189, 385787834, 210))
	pvt = encode(t, protocol.ClassNAV, protocol.MsgIDNavPVT, pvtPayload(testTOW))
	vel = encode(t, protocol.ClassNAV, protocol.MsgIDNavVelECEF, ecefPayload(testTOW, -12, 7, -3, 45))
	return pos, pvt, vel
}

func TestDriverEndToEnd(t *testing.T) {
	pos, pvt, vel := scenario(t)
	input := bytes.Join([][]byte{pos, pvt, vel}, nil)

	var out bytes.Buffer
	records := &recordingSink{}
	d := New(bytes.NewReader(input), &out, DefaultOptions(), WithRecordSink(records))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	frames := splitFrames(t, out.Bytes())
	if len(frames) != 4 {
		t.Fatalf("got %d output frames, want 4", len(frames))
	}

	for i, want := range [][]byte{pos, pvt, vel} {
		if !bytes.Equal(frames[i].Bytes(), want) {
			t.Errorf("frame %d not forwarded byte-identical", i)
		}
	}

	sol := frames[3]
	if sol.Class != protocol.ClassNAV || sol.ID != protocol.MsgIDNavSol || len(sol.Payload) != protocol.NavSolSize {
		t.Fatalf("last frame = %s, want NAV-SOL", sol)
	}
	decoded, err := protocol.ParseNavSol(sol.Payload)
	if err != nil {
		t.Fatalf("ParseNavSol() error = %v", err)
	}
	if decoded.EcefX != -269404512 || decoded.EcefY != -429364189 || decoded.EcefZ != 385787834 || decoded.PAcc != 210 {
		t.Errorf("position = (%d, %d, %d) pAcc=%d", decoded.EcefX, decoded.EcefY, decoded.EcefZ, decoded.PAcc)
	}
	if decoded.EcefVX != -12 || decoded.EcefVY != 7 || decoded.EcefVZ != -3 || decoded.SAcc != 45 {
		t.Errorf("velocity = (%d, %d, %d) sAcc=%d", decoded.EcefVX, decoded.EcefVY, decoded.EcefVZ, decoded.SAcc)
	}
	if decoded.Flags != 0x0F || decoded.Week != protocol.DefaultWeek || decoded.NumSV != 17 {
		t.Errorf("flags=0x%02x week=%d numSV=%d", decoded.Flags, decoded.Week, decoded.NumSV)
	}

	if len(records.msgs) != 4 {
		t.Fatalf("record sink got %d records, want 4", len(records.msgs))
	}
	if _, ok := records.msgs[3].(*protocol.NavSol); !ok {
		t.Errorf("last record = %T, want *protocol.NavSol", records.msgs[3])
	}

	st := d.Stats()
	if st.FramesExtracted != 3 || st.FramesForwarded != 3 || st.SolutionsBuilt != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.BytesRead != uint64(len(input)) || st.BytesWritten != uint64(out.Len()) {
		t.Errorf("byte counters = %d/%d, want %d/%d", st.BytesRead, st.BytesWritten, len(input), out.Len())
	}
	if d.State().PosECEF() == nil || d.State().PVT() == nil || d.State().VelECEF() == nil {
		t.Error("navigation state not populated")
	}
}

func TestDriverOneByteReads(t *testing.T) {
	pos, pvt, vel := scenario(t)
	input := bytes.Join([][]byte{pos, pvt, vel}, nil)

	var whole, trickled bytes.Buffer
	if err := New(bytes.NewReader(input), &whole, DefaultOptions()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := New(iotest.OneByteReader(bytes.NewReader(input)), &trickled, DefaultOptions()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(whole.Bytes(), trickled.Bytes()) {
		t.Error("output depends on read boundaries")
	}
}

func TestDriverVelocityWithoutPVT(t *testing.T) {
	_, _, vel := scenario(t)
	var out bytes.Buffer
	d := New(bytes.NewReader(vel), &out, DefaultOptions())
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	frames := splitFrames(t, out.Bytes())
	if len(frames) != 1 || frames[0].ID != protocol.MsgIDNavVelECEF {
		t.Fatalf("got %d frames, want only the forwarded NAV-VELECEF", len(frames))
	}
	if st := d.Stats(); st.SolutionsSkipped != 1 || st.SolutionsBuilt != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDriverZeroPositionWithoutPosECEF(t *testing.T) {
	_, pvt, vel := scenario(t)
	var out bytes.Buffer
	if err := New(bytes.NewReader(append(pvt, vel...)), &out, DefaultOptions()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	frames := splitFrames(t, out.Bytes())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	sol, _ := protocol.ParseNavSol(frames[2].Payload)
	if sol.EcefX != 0 || sol.EcefY != 0 || sol.EcefZ != 0 || sol.PAcc != 0 {
		t.Errorf("position = %s, want zero", sol)
	}
}

func TestDriverConfiguredWeek(t *testing.T) {
	pos, pvt, vel := scenario(t)
	input := bytes.Join([][]byte{{0x00, 0x11, 0x22}, pos, pvt, vel}, nil)

	tests := []struct {
		name string
		week int16
	}{
		{"default", protocol.DefaultWeek},
		{"zero", 0},
		{"override", 2300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Handler.Solution.Week = tt.week
			var out bytes.Buffer
			if err := New(bytes.NewReader(input), &out, opts).Run(context.Background()); err != nil {
				t.Fatal(err)
			}

			frames := splitFrames(t, out.Bytes())
			if len(frames) != 4 {
				t.Fatalf("got %d frames, want 4", len(frames))
			}
			sol, err := protocol.ParseNavSol(frames[3].Payload)
			if err != nil {
				t.Fatalf("ParseNavSol() error = %v", err)
			}
			if sol.Week != tt.week {
				t.Errorf("week = %d, want %d", sol.Week, tt.week)
			}
		})
	}
}

func TestDriverResynchronizes(t *testing.T) {
	pos, pvt, vel := scenario(t)

	corrupt := append([]byte(nil), pos...)
	corrupt[12] ^= 0x40

	noise := []byte("$GPTXT,01,01,02,ANTSTATUS=OK*3B\r\n")
	input := bytes.Join([][]byte{noise, corrupt, pvt, vel}, nil)

	var out bytes.Buffer
	garbage := &discardRecorder{}
	d := New(bytes.NewReader(input), &out, DefaultOptions(), WithDiscardObserver(garbage))
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	frames := splitFrames(t, out.Bytes())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want PVT, VELECEF and NAV-SOL", len(frames))
	}
	if frames[0].ID != protocol.MsgIDNavPVT {
		t.Errorf("first frame = %s", frames[0])
	}

	st := d.Stats()
	if st.ChecksumMismatches != 1 {
		t.Errorf("checksum mismatches = %d, want 1", st.ChecksumMismatches)
	}
	if st.BytesDiscarded != uint64(len(noise)+len(corrupt)) {
		t.Errorf("bytes discarded = %d, want %d", st.BytesDiscarded, len(noise)+len(corrupt))
	}
	if !bytes.HasPrefix(garbage.data, noise) {
		t.Errorf("discard observer saw %q", garbage.data)
	}
}

func TestDriverForwarding(t *testing.T) {
	unknownNav := encode(t, protocol.ClassNAV, 0x35, []byte{1, 2, 3, 4})
	monVer := encode(t, 0x0A, 0x04, []byte("ROM CORE 3.01"))
	truncatedPVT := encode(t, protocol.ClassNAV, protocol.MsgIDNavPVT, make([]byte, 40))
	input := bytes.Join([][]byte{unknownNav, monVer, truncatedPVT}, nil)

	t.Run("default", func(t *testing.T) {
		var out bytes.Buffer
		d := New(bytes.NewReader(input), &out, DefaultOptions())
		if err := d.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out.Bytes(), unknownNav) {
			t.Errorf("output = % x, want only the unknown NAV frame", out.Bytes())
		}
		st := d.Stats()
		if st.FramesDropped != 2 || st.DecodeErrors != 1 {
			t.Errorf("stats = %+v", st)
		}
	})

	t.Run("other classes enabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Handler.ForwardOtherClasses = true
		var out bytes.Buffer
		if err := New(bytes.NewReader(input), &out, opts).Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		want := append(append([]byte(nil), unknownNav...), monVer...)
		if !bytes.Equal(out.Bytes(), want) {
			t.Errorf("output = % x, want % x", out.Bytes(), want)
		}
	})
}

// scriptedReader returns each step once, then io.EOF
type scriptedReader struct {
	steps []readStep
}

type readStep struct {
	data []byte
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return copy(p, s.data), s.err
}

func TestDriverReadErrors(t *testing.T) {
	pos, _, _ := scenario(t)

	t.Run("timeouts are retried", func(t *testing.T) {
		src := &scriptedReader{steps: []readStep{
			{data: pos[:5]},
			{},
			{err: &transport.TransportError{Type: transport.ErrTypeTimeout, Op: "read"}},
			{data: pos[5:]},
		}}
		var out bytes.Buffer
		if err := New(src, &out, DefaultOptions()).Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !bytes.Equal(out.Bytes(), pos) {
			t.Error("frame split across a timeout was not relayed")
		}
	})

	t.Run("fatal errors propagate", func(t *testing.T) {
		cause := transport.Classify("read", "/dev/ttyACM0", syscall.EIO)
		src := &scriptedReader{steps: []readStep{{data: pos, err: cause}}}
		var out bytes.Buffer
		err := New(src, &out, DefaultOptions()).Run(context.Background())
		if !errors.Is(err, syscall.EIO) {
			t.Fatalf("Run() error = %v, want EIO", err)
		}
		if !bytes.Equal(out.Bytes(), pos) {
			t.Error("bytes returned with the error were not processed")
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, syscall.EPIPE }

func TestDriverWriteErrorPropagates(t *testing.T) {
	pos, _, _ := scenario(t)
	err := New(bytes.NewReader(pos), failingWriter{}, DefaultOptions()).Run(context.Background())
	if !errors.Is(err, syscall.EPIPE) {
		t.Errorf("Run() error = %v, want EPIPE", err)
	}
}

// endlessReader never returns EOF
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) { return 0, nil }

func TestDriverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(endlessReader{}, io.Discard, DefaultOptions()).Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestDriverFeedBuffersPartialFrames(t *testing.T) {
	pos, pvt, _ := scenario(t)
	var out bytes.Buffer
	d := New(nil, &out, DefaultOptions())

	if err := d.Feed(append(append([]byte(nil), pos...), pvt[:10]...)); err != nil {
		t.Fatal(err)
	}
	if d.Buffered() != 10 {
		t.Errorf("Buffered() = %d, want 10", d.Buffered())
	}
	if err := d.Feed(pvt[10:]); err != nil {
		t.Fatal(err)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", d.Buffered())
	}
	if len(splitFrames(t, out.Bytes())) != 2 {
		t.Error("expected both frames")
	}
}

func TestDriverEpochGuard(t *testing.T) {
	pos, pvt, _ := scenario(t)
	late := encode(t, protocol.ClassNAV, protocol.MsgIDNavVelECEF, ecefPayload(testTOW+1000, 1, 1, 1, 1))

	opts := DefaultOptions()
	opts.Handler.Solution.RequireSameEpoch = true
	var out bytes.Buffer
	d := New(bytes.NewReader(bytes.Join([][]byte{pos, pvt, late}, nil)), &out, opts)
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(splitFrames(t, out.Bytes())); got != 3 {
		t.Errorf("got %d frames, want 3 (no NAV-SOL)", got)
	}
}
