package main

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/ubxrelay/internal/config"
	"github.com/muurk/ubxrelay/internal/protocol"
	"github.com/muurk/ubxrelay/internal/transport"
)

func frame(t *testing.T, id byte, payload []byte) []byte {
	t.Helper()
	f, err := protocol.Encode(protocol.ClassNAV, id, payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return f
}

// capture returns one epoch: NAV-PVT, NAV-POSECEF, NAV-VELECEF
func capture(t *testing.T) []byte {
	t.Helper()
	le := binary.LittleEndian

	pvt := make([]byte, protocol.NavPVTSize)
	le.PutUint32(pvt[0:4], 1000)
	le.PutUint16(pvt[4:6], 2024)
	pvt[6], pvt[7] = 6, 1
	pvt[11] = protocol.PVTValidDate | protocol.PVTValidTime
	pvt[20] = protocol.Fix3D
	pvt[21] = protocol.PVTFlagGNSSFixOK
	pvt[23] = 9

	pos := make([]byte, 20)
	le.PutUint32(pos[0:4], 1000)
	le.PutUint32(pos[4:8], 398714321)

	vel := make([]byte, 20)
	le.PutUint32(vel[0:4], 1000)
	le.PutUint32(vel[12:16], 250)

	var out []byte
	out = append(out, frame(t, protocol.MsgIDNavPVT, pvt)...)
	out = append(out, frame(t, protocol.MsgIDNavPosECEF, pos)...)
	out = append(out, frame(t, protocol.MsgIDNavVelECEF, vel)...)
	return out
}

type records struct {
	names []string
}

func (r *records) Display(msg protocol.Message) {
	name, _, _ := strings.Cut(msg.String(), "{")
	r.names = append(r.names, name)
}

func TestPipelineRelaysCapture(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "capture.ubx")
	out := filepath.Join(dir, "relayed.ubx")
	if err := os.WriteFile(in, capture(t), 0o644); err != nil {
		t.Fatal(err)
	}

	c := config.Default()
	c.Input.File = in
	c.Output = config.OutputConfig{Kind: config.OutputFile, Path: out}
	c.Display.RecordsDir = dir
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	rec := &records{}
	p, err := openPipeline(c, rec)
	if err != nil {
		t.Fatalf("openPipeline() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	st := p.driver.Stats()
	p.Close()

	if st.FramesForwarded != 3 || st.SolutionsBuilt != 1 {
		t.Errorf("stats = %+v, want 3 forwarded and 1 solution", st)
	}
	if len(rec.names) != 4 || rec.names[3] != "NAV-SOL" {
		t.Errorf("records = %v, want 4 ending in NAV-SOL", rec.names)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var ids []byte
	for len(data) > 0 {
		ex := protocol.TryExtract(data)
		if ex.Status != protocol.FrameReady {
			t.Fatalf("relayed file is not a clean frame sequence: %s", ex.Status)
		}
		ids = append(ids, ex.Frame.ID)
		data = data[ex.Consumed:]
	}
	want := []byte{protocol.MsgIDNavPVT, protocol.MsgIDNavPosECEF, protocol.MsgIDNavVelECEF, protocol.MsgIDNavSol}
	if string(ids) != string(want) {
		t.Errorf("relayed ids = % x, want % x", ids, want)
	}

	jsonl, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if len(jsonl) != 1 {
		t.Errorf("record files = %v, want one", jsonl)
	}
}

func TestOpenPipelineMissingInput(t *testing.T) {
	c := config.Default()
	c.Input.File = filepath.Join(t.TempDir(), "missing.ubx")
	c.Output.Kind = config.OutputNone

	p, err := openPipeline(c, nil)
	if err == nil {
		p.Close()
		t.Fatal("openPipeline() expected error")
	}
	var se *stageError
	if !errors.As(err, &se) || se.stage != "input" {
		t.Errorf("error = %v, want input stage", err)
	}
	if tips := troubleshooting(err); len(tips) == 0 {
		t.Error("troubleshooting() returned no tips for a missing input")
	}
}

func TestTroubleshooting(t *testing.T) {
	notFound := &stageError{"input", &transport.TransportError{Type: transport.ErrTypeNotFound, Op: "open", Path: "/dev/ttyACM9"}}
	tips := troubleshooting(notFound)
	if len(tips) != 4 {
		t.Fatalf("tips = %q, want 4", tips)
	}
	for _, tip := range tips {
		if strings.HasPrefix(tip, "•") || tip == "Troubleshooting:" {
			t.Errorf("tip %q was not cleaned", tip)
		}
	}
	if !strings.Contains(tips[3], "--port") {
		t.Errorf("last tip = %q", tips[3])
	}

	tests := []struct {
		stage string
		want  string
	}{
		{"websocket", "--ws-addr"},
		{"mqtt", config.MQTTPasswordEnvVar},
		{"mdns", "--mdns=false"},
	}
	for _, tt := range tests {
		tips := troubleshooting(&stageError{tt.stage, errors.New("boom")})
		if !strings.Contains(strings.Join(tips, "\n"), tt.want) {
			t.Errorf("%s tips = %q, want mention of %q", tt.stage, tips, tt.want)
		}
	}

	if tips := troubleshooting(errors.New("other")); tips != nil {
		t.Errorf("tips = %q, want none", tips)
	}
}

func TestDriverOptions(t *testing.T) {
	c := config.Default()
	c.Solution = config.SolutionConfig{Week: 2300, DeriveWeek: true, RequireSameEpoch: true}
	c.Forward.OtherClasses = true

	opts := driverOptions(c)
	sol := opts.Handler.Solution
	if sol.Week != 2300 || !sol.DeriveWeek || !sol.RequireSameEpoch {
		t.Errorf("solution options = %+v", sol)
	}
	if !opts.Handler.ForwardOtherClasses {
		t.Error("ForwardOtherClasses = false")
	}
	if opts.ReadSize == 0 {
		t.Error("ReadSize not defaulted")
	}
}

func parseRelayFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addRelayFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	c := config.Default()
	return c, applyRelayFlags(cmd, c)
}

func TestApplyRelayFlags(t *testing.T) {
	t.Run("defaults untouched", func(t *testing.T) {
		c, err := parseRelayFlags(t)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if c.Input.Port != "/dev/ttyACM0" || c.Output.Kind != config.OutputSame || !c.Display.Console {
			t.Errorf("config changed without flags: %+v", c)
		}
	})

	t.Run("file replay disables same output", func(t *testing.T) {
		c, err := parseRelayFlags(t, "--file", "capture.ubx")
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if c.Input.File != "capture.ubx" || c.Output.Kind != config.OutputNone {
			t.Errorf("input = %+v, output = %+v", c.Input, c.Output)
		}
	})

	t.Run("metrics and mdns enable websocket", func(t *testing.T) {
		c, err := parseRelayFlags(t, "--metrics", "--mdns", "--ws-buffer", "16")
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if !c.WebSocket.Enabled || !c.Metrics.Enabled || !c.MDNS.Enabled || c.WebSocket.ClientBuffer != 16 {
			t.Errorf("websocket = %+v", c.WebSocket)
		}
	})

	t.Run("broker enables mqtt", func(t *testing.T) {
		c, err := parseRelayFlags(t, "--mqtt-broker", "tcp://localhost:1883", "-q")
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if !c.MQTT.Enabled || c.Display.Console {
			t.Errorf("mqtt = %+v, console = %v", c.MQTT, c.Display.Console)
		}
	})

	t.Run("solution flags", func(t *testing.T) {
		c, err := parseRelayFlags(t, "--week", "2200", "--derive-week", "--same-epoch", "--forward-all")
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		want := config.SolutionConfig{Week: 2200, DeriveWeek: true, RequireSameEpoch: true}
		if c.Solution != want || !c.Forward.OtherClasses {
			t.Errorf("solution = %+v, forward = %+v", c.Solution, c.Forward)
		}
	})

	rejected := [][]string{
		{"--file", "capture.ubx", "--output", "same"},
		{"--output", "serial"},
		{"--week", "40000"},
		{"--cert", "relay.crt"},
	}
	for _, args := range rejected {
		if _, err := parseRelayFlags(t, args...); err == nil {
			t.Errorf("flags %v accepted", args)
		}
	}
}

func TestFormatCounts(t *testing.T) {
	got := formatCounts(map[string]int{"RMC": 2, "GGA": 3})
	if got != "GGA=3 RMC=2" {
		t.Errorf("formatCounts() = %q", got)
	}
}
