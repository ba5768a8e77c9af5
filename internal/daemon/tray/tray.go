package tray

import (
	"context"
	_ "embed"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/rclonetray/rclonetray/internal/daemon/bookmark"
	"github.com/rclonetray/rclonetray/internal/daemon/server"
	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/logging"
)

const maxBookmarkSlots = 16

// refreshInterval redraws the menu when no job changes arrive, so the
// connection line and bookmarks added outside the tray show up.
const refreshInterval = 15 * time.Second

//go:embed icon.png
var iconData []byte

var (
	state   DaemonState
	onStart func()
	onExit  func()
	log     = logging.NewLogger("tray")

	statusItem  *systray.MenuItem
	noneItem    *systray.MenuItem
	restartItem *systray.MenuItem
	quitItem    *systray.MenuItem
	slots       [maxBookmarkSlots]*slot

	// Maps slot index → bookmark name for click handlers
	slotMu    sync.RWMutex
	slotNames [maxBookmarkSlots]string

	refreshCh = make(chan struct{}, 1)
)

type slot struct {
	root     *systray.MenuItem
	mount    *systray.MenuItem
	push     *systray.MenuItem
	pull     *systray.MenuItem
	autopush *systray.MenuItem
	serve    *systray.MenuItem
	serves   map[string]*systray.MenuItem
}

// Run starts the system tray. This blocks the calling goroutine (must be main).
// onStartFn is called when the tray is ready (launch the daemon here).
// onExitFn is called when the tray exits (cleanup here).
func Run(s DaemonState, onStartFn, onExitFn func()) {
	state = s
	onStart = onStartFn
	onExit = onExitFn
	systray.Run(onReady, onQuit)
}

// Quit signals the tray to exit.
func Quit() {
	systray.Quit()
}

// Watch redraws the menu on every signal from changes (a job registry
// subscription) until ctx is done.
func Watch(ctx context.Context, changes <-chan struct{}) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-ticker.C:
		case <-refreshCh:
		}
		refresh(ctx)
	}
}

// Refresh asks Watch to redraw the menu.
func Refresh() {
	select {
	case refreshCh <- struct{}{}:
	default:
	}
}

func onReady() {
	systray.SetTemplateIcon(iconData, iconData)
	systray.SetTooltip(formatTooltip(false, nil))

	header := systray.AddMenuItem("rclonetray", "")
	header.Disable()

	statusItem = systray.AddMenuItem("Starting rclone...", "")
	statusItem.Disable()

	systray.AddSeparator()

	// Pre-allocate bookmark slots (hidden by default)
	for i := 0; i < maxBookmarkSlots; i++ {
		slots[i] = newSlot(i)
	}

	noneItem = systray.AddMenuItem("No bookmarks", "")
	noneItem.Disable()

	systray.AddSeparator()
	restartItem = systray.AddMenuItem("Restart rclone", "Stop and start the rclone daemon")
	go func() {
		for range restartItem.ClickedCh {
			if state != nil {
				state.RestartRclone()
			}
		}
	}()
	quitItem = systray.AddMenuItem("Quit", "Unmount everything and quit")
	go func() {
		for range quitItem.ClickedCh {
			if state != nil {
				state.RequestShutdown()
			}
		}
	}()

	if onStart != nil {
		onStart()
	}
	Refresh()
}

func onQuit() {
	if onExit != nil {
		onExit()
	}
}

func newSlot(i int) *slot {
	root := systray.AddMenuItem("", "")
	s := &slot{
		root:     root,
		mount:    root.AddSubMenuItemCheckbox("Mount", "Mount the bookmark", false),
		push:     root.AddSubMenuItem("Upload", "Sync the local folder to the remote"),
		pull:     root.AddSubMenuItem("Download", "Sync the remote to the local folder"),
		autopush: root.AddSubMenuItemCheckbox("Automatic upload", "Upload on every change", false),
		serve:    root.AddSubMenuItem("Serve", ""),
		serves:   make(map[string]*systray.MenuItem, len(jobs.ServeProtocols)),
	}
	for _, protocol := range jobs.ServeProtocols {
		item := s.serve.AddSubMenuItemCheckbox(protocol, "Serve over "+protocol, false)
		s.serves[protocol] = item
		onClick(item, i, func(name string) *server.ActionRequest {
			action := server.ActionServe
			if item.Checked() {
				action = server.ActionServeStop
			}
			return &server.ActionRequest{Bookmark: name, Action: action, Protocol: protocol}
		})
	}
	onClick(s.mount, i, func(name string) *server.ActionRequest {
		return &server.ActionRequest{Bookmark: name, Action: toggle(s.mount, server.ActionUnmount, server.ActionMount)}
	})
	onClick(s.push, i, func(name string) *server.ActionRequest {
		return &server.ActionRequest{Bookmark: name, Action: server.ActionPush}
	})
	onClick(s.pull, i, func(name string) *server.ActionRequest {
		return &server.ActionRequest{Bookmark: name, Action: server.ActionPull}
	})
	onClick(s.autopush, i, func(name string) *server.ActionRequest {
		return &server.ActionRequest{Bookmark: name, Action: toggle(s.autopush, server.ActionAutopushOff, server.ActionAutopushOn)}
	})
	root.Hide()
	return s
}

func toggle(item *systray.MenuItem, on, off string) string {
	if item.Checked() {
		return on
	}
	return off
}

// onClick runs the request built for the bookmark in slot i on every click.
// Actions run off the click goroutine; syncs can take minutes.
func onClick(item *systray.MenuItem, i int, build func(name string) *server.ActionRequest) {
	go func() {
		for range item.ClickedCh {
			slotMu.RLock()
			name := slotNames[i]
			slotMu.RUnlock()
			if name == "" || state == nil {
				continue
			}
			req := build(name)
			go func() {
				// Errors reach the user through the host's OnActionError.
				if err := state.RunAction(context.Background(), req); err != nil {
					log.WithError(err).Debugf("%s %s failed", req.Action, req.Bookmark)
				}
				Refresh()
			}()
		}
	}()
}

func refresh(ctx context.Context) {
	if state == nil {
		return
	}
	connected := state.Connected()
	var states []bookmark.State
	if connected {
		var err error
		states, err = state.Snapshot(ctx)
		if err != nil {
			log.WithError(err).Debug("bookmark refresh failed")
		}
	}
	UpdateBookmarks(connected, states)
}

// UpdateBookmarks redraws the bookmark slots and tooltip.
func UpdateBookmarks(connected bool, states []bookmark.State) {
	if statusItem == nil {
		return
	}
	statusItem.SetTitle(formatStatus(connected, state.Port()))

	slotMu.Lock()
	for i := 0; i < maxBookmarkSlots; i++ {
		slotNames[i] = ""
	}
	for i, st := range states {
		if i >= maxBookmarkSlots {
			break
		}
		slotNames[i] = st.Name
	}
	slotMu.Unlock()

	for i := 0; i < maxBookmarkSlots; i++ {
		slots[i].root.Hide()
	}
	if len(states) == 0 {
		noneItem.Show()
	} else {
		noneItem.Hide()
		for i, st := range states {
			if i >= maxBookmarkSlots {
				break
			}
			slots[i].render(st)
		}
	}
	systray.SetTooltip(formatTooltip(connected, states))
}

func (s *slot) render(st bookmark.State) {
	s.root.SetTitle(formatBookmarkTitle(st))
	setChecked(s.mount, st.Mounted)
	setChecked(s.autopush, st.Autopush)

	hasLocal := st.LocalPath != ""
	syncing := st.Pushing || st.Pulling
	setEnabled(s.push, hasLocal && !syncing)
	setEnabled(s.pull, hasLocal && !syncing)
	setEnabled(s.autopush, hasLocal)

	serving := map[string]bool{}
	for _, sv := range st.Serves {
		serving[sv.Protocol] = true
	}
	for protocol, item := range s.serves {
		setChecked(item, serving[protocol])
	}
	s.root.Show()
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func setEnabled(item *systray.MenuItem, enabled bool) {
	if enabled {
		item.Enable()
	} else {
		item.Disable()
	}
}
