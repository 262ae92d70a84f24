package watcher

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type kind int

const (
	kindInfo kind = iota
	kindGood
	kindWarn
	kindBad
	kindMuted
)

var (
	styleTime  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleLabel = map[kind]lipgloss.Style{
		kindInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		kindGood:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		kindWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		kindBad:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		kindMuted: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

// printer пишет по строке на событие: "15:04:05 label  text".
type printer struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
	now   func() time.Time
}

func newPrinter(w io.Writer, color bool) *printer {
	return &printer{w: w, color: color, now: time.Now}
}

func (p *printer) line(k kind, label, text string) {
	ts := p.now().Format("15:04:05")
	label = fmt.Sprintf("%-12s", label)
	if p.color {
		ts = styleTime.Render(ts)
		label = styleLabel[k].Render(label)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s %s\n", ts, label, text)
}

func (p *printer) say(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, text)
}
