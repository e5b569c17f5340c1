package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"swiftlingo/src/capture"
	"swiftlingo/src/config"
	"swiftlingo/src/hotkey"
	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

// ResolveHotkeyBackend maps HOTKEY_BACKEND=auto onto the display server in
// use. Explicit settings pass through.
func ResolveHotkeyBackend(setting string, platform capture.Platform) string {
	setting = strings.ToLower(strings.TrimSpace(setting))
	if setting != "" && setting != config.BackendAuto {
		return setting
	}
	switch platform {
	case capture.PlatformX11:
		return hotkey.BackendX11
	case capture.PlatformWayland:
		return hotkey.BackendPortal
	}
	return hotkey.BackendHook
}

// Hotkeys owns the global shortcut listener and the IPC listener that
// external triggers (--trigger, compositor bindings) are delivered through.
type Hotkeys struct {
	IPC     *hotkey.IPC
	primary hotkey.Listener
	backend string
}

type listenerFactory func(backend string, debounce time.Duration) (hotkey.Listener, error)

func NewHotkeys(cfg *config.Config) (*Hotkeys, error) {
	return newHotkeys(cfg, capture.Detect(os.Getenv), hotkey.New)
}

func newHotkeys(cfg *config.Config, platform capture.Platform, factory listenerFactory) (*Hotkeys, error) {
	bindings := []struct {
		action hotkey.Action
		combo  string
	}{
		{hotkey.ActionTranslate, cfg.HotkeyTranslate},
		{hotkey.ActionTranslateReplace, cfg.HotkeyTranslateReplace},
	}
	combos := make([]hotkey.Combination, len(bindings))
	for i, b := range bindings {
		if strings.TrimSpace(b.combo) == "" {
			continue
		}
		c, err := hotkey.ParseCombination(b.combo)
		if err != nil {
			return nil, &translate.ConfigError{Kind: translate.ConfigInvalid, Detail: fmt.Sprintf("hotkey for %s: %v", b.action, err)}
		}
		combos[i] = c
	}

	h := &Hotkeys{IPC: hotkey.NewIPC(cfg.TriggerDebounce)}
	for _, b := range bindings {
		if _, err := h.IPC.Register(hotkey.Combination{}, b.action); err != nil {
			return nil, err
		}
	}

	h.backend = ResolveHotkeyBackend(cfg.HotkeyBackend, platform)
	if h.backend == hotkey.BackendIPC {
		logutil.L().Info("global hotkeys disabled, external triggers only")
		return h, nil
	}
	primary, err := factory(h.backend, cfg.TriggerDebounce)
	if err != nil {
		logutil.L().Warn("hotkey backend unavailable, external triggers only",
			logutil.String("backend", h.backend), logutil.Error(err))
		if h.backend == hotkey.BackendPortal {
			logutil.L().Info("bind a compositor shortcut to `swiftlingo --trigger translate` instead")
		}
		return h, nil
	}
	h.primary = primary

	for i, b := range bindings {
		if combos[i].IsZero() {
			continue
		}
		_, err := primary.Register(combos[i], b.action)
		switch {
		case err == nil:
		case errors.Is(err, hotkey.ErrBindingConflict):
			logutil.L().Error("hotkey already in use",
				logutil.String("action", string(b.action)),
				logutil.String("combo", combos[i].String()), logutil.Error(err))
		default:
			logutil.L().Error("hotkey registration failed",
				logutil.String("action", string(b.action)), logutil.Error(err))
		}
	}
	return h, nil
}

// Backend is the resolved global hotkey backend.
func (h *Hotkeys) Backend() string { return h.backend }

// Listeners returns every listener whose triggers feed the coordinator.
func (h *Hotkeys) Listeners() []hotkey.Listener {
	out := []hotkey.Listener{h.IPC}
	if h.primary != nil {
		out = append(out, h.primary)
	}
	return out
}

func (h *Hotkeys) Close() error {
	var errs []error
	if h.primary != nil {
		errs = append(errs, h.primary.Close())
	}
	errs = append(errs, h.IPC.Close())
	return errors.Join(errs...)
}
