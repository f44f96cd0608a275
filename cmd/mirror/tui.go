// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/mirror/mirror"
)

// mirrorView is the document side the UI reads and edits. *mirror.Group
// implements it.
type mirrorView interface {
	Active() mirror.Document
	Push(doc mirror.Document) error
	Conversations() []mirror.Conversation
	OnChange(fn func(mirror.Change)) func()
}

// uiOptions configures runUI.
type uiOptions struct {
	// Title heads the screen, e.g. "hosting as cozy-pine-otter".
	Title string

	// Banner is shown while nobody is connected: the join link and its
	// QR code on a host.
	Banner string

	View mirrorView

	// Finished ends the UI when closed, with FinishedReason shown to
	// the user. Nil runs until ctx is done or the user quits.
	Finished       <-chan struct{}
	FinishedReason string

	// Screen selects the full-screen editor. Otherwise every input line
	// replaces the document and remote changes are printed as lines.
	Screen bool

	Input  io.Reader
	Output io.Writer
	Logger *slog.Logger
}

func runUI(ctx context.Context, options uiOptions) error {
	if options.Screen {
		return runScreen(ctx, options)
	}
	return runLines(ctx, options)
}

// theme is the color palette of the editor screen, in lipgloss ANSI
// 256-color codes.
type theme struct {
	Header lipgloss.Color
	Faint  lipgloss.Color
	Accent lipgloss.Color
	Border lipgloss.Color
	Alert  lipgloss.Color
}

var defaultTheme = theme{
	Header: lipgloss.Color("255"),
	Faint:  lipgloss.Color("243"),
	Accent: lipgloss.Color("78"),
	Border: lipgloss.Color("240"),
	Alert:  lipgloss.Color("203"),
}

// Rows the screen spends outside the editor: title, peers line, editor
// border top and bottom, status line.
const chromeHeight = 5

type changeMsg struct{ change mirror.Change }

type finishedMsg struct{ reason string }

// model is the bubbletea model of the editor screen.
type model struct {
	view   mirrorView
	title  string
	banner string
	logger *slog.Logger
	theme  theme

	editor  textarea.Model
	status  string
	failed  bool
	width   int
	height  int
	endNote string
}

func newModel(options uiOptions) model {
	editor := textarea.New()
	editor.Placeholder = "Type here. The other device sees every keystroke."
	editor.ShowLineNumbers = false
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.SetValue(options.View.Active().Content)
	editor.Focus()

	return model{
		view:   options.View,
		title:  options.Title,
		banner: options.Banner,
		logger: options.Logger,
		theme:  defaultTheme,
		editor: editor,
		status: "esc to quit",
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = message.Width, message.Height
		m.editor.SetWidth(max(message.Width-2, 10))
		m.editor.SetHeight(max(message.Height-chromeHeight-m.bannerHeight(), 3))
		return m, nil

	case tea.KeyMsg:
		switch message.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}
		before := m.editor.Value()
		var command tea.Cmd
		m.editor, command = m.editor.Update(message)
		if after := m.editor.Value(); after != before {
			m.push(after)
		}
		return m, command

	case changeMsg:
		m.apply(message.change)
		return m, nil

	case finishedMsg:
		m.endNote = message.reason
		return m, tea.Quit
	}

	var command tea.Cmd
	m.editor, command = m.editor.Update(message)
	return m, command
}

// push sends an edit. Fields other than content are kept from the
// document on screen.
func (m *model) push(content string) {
	doc := m.view.Active()
	doc.Content = content
	if err := m.view.Push(doc); err != nil {
		m.logger.Warn("sending edit failed", "error", err)
		m.status = "sending failed: " + err.Error()
		m.failed = true
		return
	}
	m.failed = false
}

func (m *model) apply(change mirror.Change) {
	peer := change.Conversation.Peer
	switch change.Kind {
	case mirror.ConversationJoined:
		m.status = peer + " connected"
	case mirror.ConversationUpdated:
		m.status = "edited by " + peer
	case mirror.ConversationLeft:
		m.status = peer + " disconnected"
	}
	m.failed = false

	if content := m.view.Active().Content; content != m.editor.Value() {
		m.editor.SetValue(content)
	}
	if m.height > 0 {
		m.editor.SetHeight(max(m.height-chromeHeight-m.bannerHeight(), 3))
	}
}

func (m model) showBanner() bool {
	return m.banner != "" && len(m.view.Conversations()) == 0
}

func (m model) bannerHeight() int {
	if !m.showBanner() {
		return 0
	}
	return strings.Count(m.banner, "\n") + 1
}

func (m model) peersLine() string {
	conversations := m.view.Conversations()
	if len(conversations) == 0 {
		return "waiting for a device to connect"
	}
	peers := make([]string, len(conversations))
	for i, conversation := range conversations {
		peers[i] = conversation.Peer
	}
	return "connected: " + strings.Join(peers, ", ")
}

func (m model) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Header).Render(m.title)
	peers := lipgloss.NewStyle().Foreground(m.theme.Accent).Render(m.peersLine())

	editor := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.Border).
		Render(m.editor.View())

	statusColor := m.theme.Faint
	if m.failed {
		statusColor = m.theme.Alert
	}
	status := lipgloss.NewStyle().Foreground(statusColor).Render(m.status)

	sections := []string{header, peers}
	if m.showBanner() {
		sections = append(sections, m.banner)
	}
	sections = append(sections, editor, status)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func runScreen(ctx context.Context, options uiOptions) error {
	program := tea.NewProgram(newModel(options),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(options.Input),
		tea.WithOutput(options.Output),
	)

	removeListener := options.View.OnChange(func(change mirror.Change) {
		program.Send(changeMsg{change: change})
	})
	defer removeListener()

	if options.Finished != nil {
		go func() {
			select {
			case <-options.Finished:
				program.Send(finishedMsg{reason: options.FinishedReason})
			case <-ctx.Done():
			}
		}()
	}

	final, err := program.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running terminal UI: %w", err)
	}
	if finished, ok := final.(model); ok && finished.endNote != "" {
		fmt.Fprintln(options.Output, finished.endNote)
	}
	return nil
}

// runLines is the UI when stdin or stdout is not a terminal.
func runLines(ctx context.Context, options uiOptions) error {
	var outputMu sync.Mutex
	printf := func(format string, args ...any) {
		outputMu.Lock()
		defer outputMu.Unlock()
		fmt.Fprintf(options.Output, format, args...)
	}

	printf("%s\n", options.Title)
	if options.Banner != "" {
		printf("%s\n", options.Banner)
	}

	removeListener := options.View.OnChange(func(change mirror.Change) {
		peer := change.Conversation.Peer
		switch change.Kind {
		case mirror.ConversationJoined:
			printf("* %s connected\n", peer)
		case mirror.ConversationUpdated:
			printf("%s> %s\n", peer, change.Conversation.Document.Content)
		case mirror.ConversationLeft:
			printf("* %s disconnected\n", peer)
		}
	})
	defer removeListener()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(options.Input)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-options.Finished:
			printf("%s\n", options.FinishedReason)
			return nil
		case line, ok := <-lines:
			if !ok {
				// Input ended; keep mirroring until told to stop.
				lines = nil
				continue
			}
			doc := options.View.Active()
			doc.Content = line
			if err := options.View.Push(doc); err != nil {
				options.Logger.Warn("sending edit failed", "error", err)
				printf("! sending failed: %v\n", err)
			}
		}
	}
}
