package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muurk/ubxrelay/internal/protocol"
)

// Printer writes styled output. It doubles as the console RecordSink of
// `ubxrelay run`, printing one line per decoded record.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	p.Println("")
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(h *Header) {
	p.Println(h.SetWidth(p.width).Render())
}

// PrintResult prints a result box
func (p *Printer) PrintResult(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}

// Display implements relay.RecordSink
func (p *Printer) Display(msg protocol.Message) {
	p.Println(StyleRecord(FormatRecord(msg)))
}

// StyleRecord highlights the message name of a formatted record line
func StyleRecord(line string) string {
	name, rest, ok := strings.Cut(line, " ")
	if !ok {
		return RecordNameStyle.Render(line)
	}
	return RecordNameStyle.Render(name) + " " + RecordBodyStyle.Render(rest)
}
