// Package textinput implements the session controller for the text input
// protocol. The controller owns the single active client id, the editing
// model for the focused field, and the per-session configuration, and is
// the funnel through which all three edit sources flow: framework method
// calls, raw key presses, and IME callbacks.
package textinput

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"textinputd/internal/editing"
	"textinputd/internal/keymap"
)

// ErrNotImplemented is returned for unrecognized method names.
var ErrNotImplemented = errors.New("method not implemented")

// Notifier delivers outbound notifications to the UI framework.
type Notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

// KeyboardDelegate is the host hook for virtual-keyboard chrome. The
// windowing backend decides what, if anything, to display.
type KeyboardDelegate interface {
	UpdateVirtualKeyboardStatus(visible bool)
}

// IMEControl is the slice of the IME bridge the controller drives.
// Show and Hide block until the IME server responds.
type IMEControl interface {
	Show()
	Hide()
}

// Controller routes inbound method calls, key events, and IME callbacks to
// the editing model and pushes resulting state updates to the framework.
//
// A session begins with setClient and ends with clearClient; outside a
// session all key and IME events are dropped.
type Controller struct {
	mu       sync.Mutex
	log      *slog.Logger
	notifier Notifier
	keyboard KeyboardDelegate
	ime      IMEControl

	clientID    int
	inputAction string
	inputType   string
	model       *editing.Model
}

// NewController creates a controller with no active session.
func NewController(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{log: log}
}

// SetNotifier installs the outbound notification sink. Passing nil detaches
// the current sink; state updates are then dropped.
func (c *Controller) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// SetKeyboardDelegate installs the host's virtual-keyboard hook.
func (c *Controller) SetKeyboardDelegate(d KeyboardDelegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyboard = d
}

// SetIMEControl installs the IME show/hide surface.
func (c *Controller) SetIMEControl(ime IMEControl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ime = ime
}

// HandleMethodCall dispatches one inbound protocol method. A nil result
// with a nil error is the generic success acknowledgement. Errors are
// either *MethodError carrying a wire error code, or ErrNotImplemented.
func (c *Controller) HandleMethodCall(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodShow:
		return nil, c.handleShow()
	case MethodHide:
		return nil, c.handleHide()
	case MethodClearClient:
		return nil, c.handleClearClient()
	case MethodSetClient:
		return nil, c.handleSetClient(params)
	case MethodSetEditingState:
		return nil, c.handleSetEditingState(params)
	default:
		c.log.Debug("unhandled method", "method", method)
		return nil, ErrNotImplemented
	}
}

func (c *Controller) handleShow() error {
	c.mu.Lock()
	keyboard, ime := c.keyboard, c.ime
	c.mu.Unlock()

	if keyboard != nil {
		keyboard.UpdateVirtualKeyboardStatus(true)
	}
	if ime != nil {
		ime.Show()
	}
	return nil
}

func (c *Controller) handleHide() error {
	c.mu.Lock()
	keyboard, ime := c.keyboard, c.ime
	c.mu.Unlock()

	if keyboard != nil {
		keyboard.UpdateVirtualKeyboardStatus(false)
	}
	if ime != nil {
		ime.Hide()
	}
	return nil
}

func (c *Controller) handleClearClient() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = nil
	return nil
}

func (c *Controller) handleSetClient(params json.RawMessage) error {
	if isNull(params) {
		return badArguments("method invoked without args")
	}
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) < 2 {
		return badArguments("method invoked without args")
	}
	if isNull(args[0]) {
		return badArguments("could not set client, ID is null")
	}
	var clientID int
	if err := json.Unmarshal(args[0], &clientID); err != nil {
		return badArguments("could not set client, ID is not an integer")
	}
	if isNull(args[1]) {
		return badArguments("could not set client, missing arguments")
	}

	var config map[string]json.RawMessage
	if err := json.Unmarshal(args[1], &config); err != nil {
		return badArguments("could not set client, malformed configuration")
	}

	// Missing or wrong-typed fields deliberately reset to empty string so
	// no configuration leaks from a previous session.
	inputAction := stringField(config, "inputAction")
	inputType := ""
	var typeInfo map[string]json.RawMessage
	if raw, ok := config["inputType"]; ok && json.Unmarshal(raw, &typeInfo) == nil {
		inputType = stringField(typeInfo, "name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = clientID
	c.inputAction = inputAction
	c.inputType = inputType
	c.model = editing.NewModel()
	return nil
}

func (c *Controller) handleSetEditingState(params json.RawMessage) error {
	if isNull(params) {
		return badArguments("method invoked without args")
	}
	var args map[string]json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return badArguments("method invoked without args")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model == nil {
		return internalConsistency("set editing state has been invoked, but no client is set")
	}

	rawText, ok := args["text"]
	if !ok || isNull(rawText) {
		return badArguments("set editing state has been invoked, but without text")
	}
	var text string
	if err := json.Unmarshal(rawText, &text); err != nil {
		return badArguments("set editing state has been invoked, but without text")
	}

	base, baseOK := intField(args, "selectionBase")
	extent, extentOK := intField(args, "selectionExtent")
	if !baseOK || !extentOK {
		return internalConsistency("selection base/extent values invalid")
	}

	// The framework uses -1/-1 for an invalid selection; translate that to
	// 0/0 for the model. Other values are applied verbatim, unclamped.
	if base == -1 && extent == -1 {
		base, extent = 0, 0
	}
	c.model.SetText(text)
	c.model.SetSelection(editing.TextRange{Base: base, Extent: extent})
	return nil
}

// OnKeyPressed feeds one canonical key press, with its accompanying code
// point if the key is printable, into the active model. A no-op when no
// client is set.
func (c *Controller) OnKeyPressed(code keymap.Code, codePoint rune) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model == nil {
		return
	}

	changed := false
	switch code {
	case keymap.KeyLeft:
		changed = c.model.MoveCursorBack()
	case keymap.KeyRight:
		changed = c.model.MoveCursorForward()
	case keymap.KeyEnd:
		changed = c.model.MoveCursorToEnd()
	case keymap.KeyHome:
		changed = c.model.MoveCursorToBeginning()
	case keymap.KeyBackspace:
		changed = c.model.Backspace()
	case keymap.KeyDelete:
		changed = c.model.Delete()
	case keymap.KeyEnter:
		c.enterPressedLocked()
	default:
		if codePoint != 0 {
			c.model.AddCodePoint(codePoint)
			changed = true
		}
	}
	if changed {
		c.sendStateUpdateLocked()
	}
}

// enterPressedLocked inserts a newline for multiline fields and always
// fires the performAction notification, after any state update.
func (c *Controller) enterPressedLocked() {
	if c.inputType == MultilineInputType {
		c.model.AddCodePoint('\n')
		c.sendStateUpdateLocked()
	}
	if c.notifier == nil {
		return
	}
	params := []any{c.clientID, c.inputAction}
	if err := c.notifier.Notify(context.Background(), NotifyPerformAction, params); err != nil {
		c.log.Error("send perform action", "error", err)
	}
}

// sendStateUpdateLocked pushes the model's current text and selection to
// the framework.
func (c *Controller) sendStateUpdateLocked() {
	if c.notifier == nil || c.model == nil {
		return
	}
	selection := c.model.Selection()
	state := EditingState{
		ComposingBase:          -1,
		ComposingExtent:        -1,
		SelectionAffinity:      AffinityDownstream,
		SelectionBase:          selection.Base,
		SelectionExtent:        selection.Extent,
		SelectionIsDirectional: false,
		Text:                   c.model.Text(),
	}
	params := []any{c.clientID, state}
	if err := c.notifier.Notify(context.Background(), NotifyUpdateEditingState, params); err != nil {
		c.log.Error("send state update", "error", err)
	}
}

// HandleIMInitiatedHide ends any in-progress composition when the IME
// dismisses itself.
func (c *Controller) HandleIMInitiatedHide() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model == nil {
		return
	}
	if c.model.Composing() {
		c.model.EndComposing()
		c.sendStateUpdateLocked()
	}
}

// HandleCommitString applies committed IME text: as the final replacement
// of the composing span when composing, as a plain insert otherwise.
func (c *Controller) HandleCommitString(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model == nil {
		return
	}
	if c.model.Composing() {
		c.model.UpdateComposingText(text)
		c.model.EndComposing()
	} else {
		c.model.AddText(text)
	}
	c.sendStateUpdateLocked()
}

// HandleUpdatePreedit replaces the in-progress composition text, opening a
// composing bracket first if none is active.
func (c *Controller) HandleUpdatePreedit(text string, cursorPos int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model == nil {
		return
	}
	if !c.model.Composing() {
		c.model.BeginComposing()
	}
	c.model.UpdateComposingText(text)
	c.sendStateUpdateLocked()
}

// HandleKeyEvent translates a key event from the IME transport. Only press
// events drive the model.
func (c *Controller) HandleKeyEvent(eventType, key, modifiers int32, text string) {
	if eventType != keymap.EventKeyPress {
		return
	}
	if code, ok := keymap.Translate(keymap.QtKey(key)); ok {
		c.OnKeyPressed(code, 0)
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// stringField returns the string value at key, or "" when the field is
// missing or not a string.
func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// intField returns the integer at key and whether it was present and valid.
func intField(obj map[string]json.RawMessage, key string) (int, bool) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}
