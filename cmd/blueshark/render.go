package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

// printer writes replies to the terminal. On a TTY replies are rendered
// as markdown once settled; otherwise fragments are written as they arrive.
type printer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
}

func newPrinter(out io.Writer, plain bool) *printer {
	p := &printer{out: out}
	if plain {
		return p
	}
	f, ok := out.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return p
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		p.markdown = r
	}
	return p
}

// streaming reports whether fragments should be echoed live.
func (p *printer) streaming() bool {
	return p.markdown == nil
}

func (p *printer) fragment(s string) {
	fmt.Fprint(p.out, s)
}

func (p *printer) render(text string) string {
	if p.markdown == nil {
		return text
	}
	styled, err := p.markdown.Render(text)
	if err != nil {
		return text
	}
	return styled
}

// reply prints a settled model message. Streamed single-model replies were
// already echoed and only get a trailing newline.
func (p *printer) reply(m domain.Message, dual bool, streamed bool) {
	switch {
	case m.Failed:
		fmt.Fprintln(p.out, m.Content)
	case dual:
		fmt.Fprintln(p.out, "── Flash Shark ──")
		fmt.Fprintln(p.out, strings.TrimRight(p.render(m.Content), "\n"))
		fmt.Fprintln(p.out, "── Pro Shark ──")
		fmt.Fprintln(p.out, strings.TrimRight(p.render(m.SecondaryContent), "\n"))
	case streamed:
		fmt.Fprintln(p.out)
	default:
		fmt.Fprintln(p.out, strings.TrimRight(p.render(m.Content), "\n"))
	}
}

func (p *printer) message(m domain.Message) {
	who := "You"
	if m.Role == domain.RoleModel {
		who = "Blue Shark"
	}
	fmt.Fprintf(p.out, "[%s] %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), who)
	if m.Image != nil {
		fmt.Fprintf(p.out, "(image %s, %d bytes)\n", m.Image.MIMEType, len(m.Image.Data))
	}
	if m.Role == domain.RoleModel && m.SecondaryContent != "" {
		p.reply(m, true, false)
	} else {
		fmt.Fprintln(p.out, strings.TrimRight(p.render(m.Content), "\n"))
	}
	fmt.Fprintln(p.out)
}
