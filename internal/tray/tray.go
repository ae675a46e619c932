// Package tray shows the local recognition loop in the system tray.
package tray

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/signvista/internal/config"
)

var strategies = []config.Strategy{
	config.StrategyPriority,
	config.StrategyHighestConfidence,
	config.StrategyVoting,
}

// Tray is the menu bar icon of the camera mode.
type Tray struct {
	mu           sync.RWMutex
	enabled      bool
	strategy     config.Strategy
	dashboardURL string

	onToggle   func(enabled bool)
	onStrategy func(config.Strategy)
	onQuit     func()

	menuToggle   *systray.MenuItem
	menuLast     *systray.MenuItem
	menuStrategy map[config.Strategy]*systray.MenuItem
}

// New returns an enabled tray. dashboardURL is opened by the Open
// Dashboard item and may be empty.
func New(dashboardURL string, strategy config.Strategy) *Tray {
	return &Tray{enabled: true, strategy: strategy, dashboardURL: dashboardURL}
}

// OnToggle sets the callback for pausing and resuming recognition.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnStrategy sets the callback for picking a prediction strategy.
func (t *Tray) OnStrategy(fn func(config.Strategy)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStrategy = fn
}

// OnQuit sets the callback run before the tray exits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run blocks until Quit is chosen or [Tray.Quit] is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray from outside the menu loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("SignVista")
	systray.SetTooltip("SignVista sign recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(true), "Pause or resume recognition")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(lastTitle("", 0), "Last recognized sign")
	t.menuLast.Disable()

	strategyMenu := systray.AddMenuItem("Strategy", "How module predictions are combined")
	t.menuStrategy = make(map[config.Strategy]*systray.MenuItem, len(strategies))
	for _, s := range strategies {
		item := strategyMenu.AddSubMenuItemCheckbox(string(s), "", s == t.strategy)
		t.menuStrategy[s] = item
		go t.watchStrategy(s, item)
	}
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard", "Open the dashboard in a browser")
	if t.dashboardURL == "" {
		menuDashboard.Disable()
	}
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit SignVista")
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				if err := openBrowser(t.dashboardURL); err != nil {
					slog.Warn("tray: opening dashboard", "url", t.dashboardURL, "err", err)
				}
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) watchStrategy(s config.Strategy, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.selectStrategy(s)
	}
}

func (t *Tray) selectStrategy(s config.Strategy) {
	t.mu.Lock()
	t.strategy = s
	for name, item := range t.menuStrategy {
		if name == s {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	callback := t.onStrategy
	t.mu.Unlock()

	if callback != nil {
		callback(s)
	}
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// SetLastSign shows the most recent recognized sign.
func (t *Tray) SetLastSign(display string, confidence float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(display, confidence))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Strategy returns the strategy currently checked in the menu.
func (t *Tray) Strategy() config.Strategy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.strategy
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Recognizing"
	}
	return "○ Paused"
}

func lastTitle(display string, confidence float64) string {
	if display == "" {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s (%.0f%%)", display, confidence*100)
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

func openBrowser(url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	return exec.Command(name, args...).Start()
}
