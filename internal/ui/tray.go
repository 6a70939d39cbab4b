// Package ui is the optional system tray front end of the agent.
package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-shorts/internal/events"
	"github.com/heimdex/heimdex-shorts/internal/logging"
)

//go:embed icon.png
var iconBytes []byte

// Runner is the job runner control surface.
type Runner interface {
	IsPaused() bool
	Pause()
	Resume()
}

type Tray struct {
	runner Runner
	events <-chan events.Event
	logger *slog.Logger

	statusItem  *systray.MenuItem
	rendersItem *systray.MenuItem
	pauseItem   *systray.MenuItem

	mu       sync.Mutex
	status   string
	finished int

	onOpenOutput func() error
	onQuit       func()
}

type TrayConfig struct {
	Runner Runner
	// Events feeds the status line; nil leaves it static.
	Events       <-chan events.Event
	Logger       *slog.Logger
	OnOpenOutput func() error
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		runner:       cfg.Runner,
		events:       cfg.Events,
		logger:       logging.WithComponent(logging.OrDiscard(cfg.Logger), "tray"),
		status:       "Idle",
		onOpenOutput: cfg.OnOpenOutput,
		onQuit:       cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Heimdex Shorts")
	systray.SetTooltip("Heimdex Shorts renderer")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current render status")
	t.statusItem.Disable()

	t.rendersItem = systray.AddMenuItem("Finished this session: 0", "Renders completed since start")
	t.rendersItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause the render queue")
	openItem := systray.AddMenuItem("Open Renders Folder", "Show rendered videos")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Heimdex Shorts")

	if t.events != nil {
		go t.watchEvents()
	}

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				if t.onOpenOutput != nil {
					if err := t.onOpenOutput(); err != nil {
						t.logger.Error("failed to open renders folder", "error", err)
					}
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) watchEvents() {
	for e := range t.events {
		t.apply(e)
	}
}

// apply folds one event into the tray state and refreshes the menu.
func (t *Tray) apply(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Type == events.TypeJobDone && e.Stage == "DONE" {
		t.finished++
		if t.rendersItem != nil {
			t.rendersItem.SetTitle(fmt.Sprintf("Finished this session: %d", t.finished))
		}
	}
	if label := statusLabel(e); label != "" {
		t.status = label
	}
	t.refreshStatus()
}

func (t *Tray) refreshStatus() {
	if t.statusItem == nil {
		return
	}
	if t.runner != nil && t.runner.IsPaused() {
		t.statusItem.SetTitle("Status: Paused")
		return
	}
	t.statusItem.SetTitle("Status: " + t.status)
}

// statusLabel is the tray wording for an event, or "" when the event does
// not change what the tray shows.
func statusLabel(e events.Event) string {
	switch e.Type {
	case events.TypeJobStage:
		if e.Stage == "" {
			return ""
		}
		return fmt.Sprintf("%s (%d%%)", titleCase(e.Stage), e.Progress)
	case events.TypeJobDone:
		return "Idle"
	case events.TypeJobFailed:
		msg := e.Error
		if r := []rune(msg); len(r) > 40 {
			msg = string(r[:40]) + "..."
		}
		if msg == "" {
			return "Failed"
		}
		return "Failed: " + msg
	}
	return ""
}

func titleCase(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
	}
	t.refreshStatus()
}

func (t *Tray) Quit() {
	systray.Quit()
}
