package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/messages"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const consoleTickDelta = 16

func newConsoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console [engine.wasm]",
		Short: "Interactive engine session: send chat and raw frames, tick, preview",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("console needs a terminal; use run for scripted sessions")
			}
			path, err := a.enginePath(args)
			if err != nil {
				return err
			}
			// Log lines would tear the full-screen view.
			a.setLogger(zap.NewNop())
			return a.console(cmd.Context(), path)
		},
	}
}

func (a *app) console(ctx context.Context, path string) error {
	b, err := a.openBridge(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close(context.WithoutCancel(ctx)) }()

	m := newConsoleModel(ctx, b, path)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	err = b.Inbound().Register(ctx, func(msg abi.Message) {
		p.Send(eventMsg(msg))
	})
	if err != nil {
		return err
	}

	_, err = p.Run()
	return err
}

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSay
	cmdRaw
	cmdTick
	cmdPreview
	cmdBarrier
	cmdRelease
	cmdResize
	cmdQuit
)

type consoleCommand struct {
	text   string
	frame  []byte
	kind   commandKind
	count  int
	width  uint32
	height uint32
}

// parseConsoleLine maps an input line to a command. Lines without a
// leading slash are chat.
func parseConsoleLine(line string) (consoleCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return consoleCommand{kind: cmdNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return consoleCommand{kind: cmdSay, text: line}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return consoleCommand{kind: cmdQuit}, nil
	case "/preview":
		return consoleCommand{kind: cmdPreview}, nil
	case "/barrier":
		return consoleCommand{kind: cmdBarrier}, nil
	case "/release":
		return consoleCommand{kind: cmdRelease}, nil
	case "/tick":
		n := 1
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v < 1 {
				return consoleCommand{}, fmt.Errorf("tick count %q", fields[1])
			}
			n = v
		}
		return consoleCommand{kind: cmdTick, count: n}, nil
	case "/raw":
		if len(fields) != 2 {
			return consoleCommand{}, fmt.Errorf("usage: /raw <hex body>")
		}
		body, err := hex.DecodeString(fields[1])
		if err != nil {
			return consoleCommand{}, fmt.Errorf("raw body: %w", err)
		}
		return consoleCommand{kind: cmdRaw, frame: body}, nil
	case "/resize":
		if len(fields) != 3 {
			return consoleCommand{}, fmt.Errorf("usage: /resize <width> <height>")
		}
		w, werr := strconv.ParseUint(fields[1], 10, 32)
		h, herr := strconv.ParseUint(fields[2], 10, 32)
		if werr != nil || herr != nil {
			return consoleCommand{}, fmt.Errorf("resize %s x %s", fields[1], fields[2])
		}
		return consoleCommand{kind: cmdResize, width: uint32(w), height: uint32(h)}, nil
	}
	return consoleCommand{}, fmt.Errorf("unknown command %s", fields[0])
}

type consoleModel struct {
	ctx      context.Context
	b        *bridge.Bridge
	filename string
	lines    []string
	input    textinput.Model
	view     viewport.Model
	ready    bool
}

type eventMsg abi.Message

type resultMsg struct {
	err  error
	line string
}

func newConsoleModel(ctx context.Context, b *bridge.Bridge, filename string) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "chat, or /tick n, /preview, /raw hex, /barrier, /release, /resize w h, /quit"
	ti.Prompt = "> "
	ti.Focus()
	return &consoleModel{ctx: ctx, b: b, filename: filename, input: ti}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			line := m.input.Value()
			m.input.SetValue("")
			c, err := parseConsoleLine(line)
			if err != nil {
				m.appendLine(errorStyle.Render(err.Error()))
				return m, nil
			}
			if c.kind == cmdQuit {
				return m, tea.Quit
			}
			return m, m.execute(c)
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 4
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = height
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case eventMsg:
		m.appendLine(eventStyle.Render("event " + describeEvent(abi.Message(msg))))

	case resultMsg:
		if msg.err != nil {
			m.appendLine(errorStyle.Render("error: " + msg.err.Error()))
		} else if msg.line != "" {
			m.appendLine(resultStyle.Render(msg.line))
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// execute runs c off the UI goroutine.
func (m *consoleModel) execute(c consoleCommand) tea.Cmd {
	if c.kind == cmdNone {
		return nil
	}
	ctx, b := m.ctx, m.b
	return func() tea.Msg {
		switch c.kind {
		case cmdSay:
			frame, err := messages.Encode(messages.Say{Text: c.text})
			if err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{err: b.Transmitter().SendFrame(ctx, frame), line: "sent say"}
		case cmdRaw:
			frame, err := messages.FrameRaw(c.frame)
			if err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{err: b.Transmitter().SendFrame(ctx, frame), line: fmt.Sprintf("sent %d bytes", len(frame))}
		case cmdTick:
			for i := 0; i < c.count; i++ {
				if err := b.Session().Advance(ctx, consoleTickDelta); err != nil {
					return resultMsg{err: err}
				}
			}
			return resultMsg{line: fmt.Sprintf("advanced %d ticks", c.count)}
		case cmdPreview:
			info, err := b.Preview().Generate(ctx)
			if err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{line: "preview " + hex.EncodeToString(info.Bytes())}
		case cmdBarrier:
			return resultMsg{err: b.Transmitter().Barrier(ctx), line: "barrier set"}
		case cmdRelease:
			return resultMsg{err: b.Transmitter().ReleaseBarrier(ctx), line: "barrier released"}
		case cmdResize:
			return resultMsg{err: b.Session().Resize(ctx, c.width, c.height), line: fmt.Sprintf("resized to %dx%d", c.width, c.height)}
		}
		return nil
	}
}

func (m *consoleModel) appendLine(s string) {
	m.lines = append(m.lines, s)
	m.refresh()
}

func (m *consoleModel) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m *consoleModel) View() string {
	if !m.ready {
		return "Starting engine session..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Engine Console"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send • esc quit"))
	return b.String()
}
