// Package ime maintains the connection to the out-of-process input-method
// server over D-Bus.
//
// The bridge has two independent halves. The server half is an object
// proxy for the input method's synchronous control surface (activate,
// show, reset, hide). The context half is a signal subscription carrying
// the server's editing callbacks: committed text, preedit updates, key
// events, and IM-initiated hide. Either half failing to connect is logged
// and leaves that half disabled for the life of the process; there is no
// reconnection.
//
// Inbound signals are queued and only dispatched from Pump, so all model
// mutations happen on the host's event loop rather than on the D-Bus
// receive goroutine.
package ime

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// SessionHandler receives the editing callbacks decoded from the input
// method's context signals.
type SessionHandler interface {
	// HandleIMInitiatedHide is invoked when the input method dismisses
	// itself (for example the user closes the virtual keyboard).
	HandleIMInitiatedHide()

	// HandleCommitString delivers text the input method has committed.
	HandleCommitString(text string)

	// HandleUpdatePreedit delivers the current in-progress composition
	// text and the cursor position within it.
	HandleUpdatePreedit(text string, cursorPos int32)

	// HandleKeyEvent delivers a key the input method forwarded instead of
	// consuming, in the transport's own key namespace.
	HandleKeyEvent(eventType, key, modifiers int32, text string)
}

// Options configures the D-Bus endpoints of the input-method server.
type Options struct {
	// BusName is the well-known name of the input-method server.
	BusName string

	// ServerPath and ServerInterface locate the synchronous control
	// surface.
	ServerPath      dbus.ObjectPath
	ServerInterface string

	// ContextInterface is the interface the editing callbacks are
	// signalled on.
	ContextInterface string

	// SignalBuffer is the capacity of the pending-signal queue.
	SignalBuffer int
}

// DefaultOptions returns the endpoints of a stock Maliit server.
func DefaultOptions() Options {
	return Options{
		BusName:          "org.maliit.server",
		ServerPath:       "/org/maliit/server",
		ServerInterface:  "com.meego.inputmethod.uiserver1",
		ContextInterface: "com.meego.inputmethod.inputcontext1",
		SignalBuffer:     64,
	}
}

// Signal member names on the context interface.
const (
	sigInvokeAction          = "invokeAction"
	sigIMInitiatedHide       = "imInitiatedHide"
	sigCommitString          = "commitString"
	sigUpdatePreedit         = "updatePreedit"
	sigKeyEvent              = "keyEvent"
	sigUpdateInputMethodArea = "updateInputMethodArea"
)

// Bridge connects the session controller to the input-method server.
type Bridge struct {
	opts    Options
	log     *slog.Logger
	handler SessionHandler

	conn    *dbus.Conn
	server  dbus.BusObject
	signals chan *dbus.Signal
}

// NewBridge creates a disconnected bridge. Callbacks are delivered to
// handler from Pump.
func NewBridge(handler SessionHandler, opts Options, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if opts.SignalBuffer <= 0 {
		opts.SignalBuffer = DefaultOptions().SignalBuffer
	}
	return &Bridge{
		opts:    opts,
		log:     log,
		handler: handler,
	}
}

// Connect establishes the session-bus connection and both halves of the
// bridge. A missing server leaves Show/Hide as no-ops; a failed signal
// subscription leaves the editing callbacks silent. Neither is retried.
func (b *Bridge) Connect() error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	b.conn = conn

	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, b.opts.BusName).Store(&owned)
	if err != nil {
		b.log.Error("unable to query input method server", "name", b.opts.BusName, "error", err)
	} else if !owned {
		b.log.Error("input method server not running", "name", b.opts.BusName)
	} else {
		b.server = conn.Object(b.opts.BusName, b.opts.ServerPath)
		b.log.Info("connected to input method server", "name", b.opts.BusName)
	}

	if err := conn.AddMatchSignal(dbus.WithMatchInterface(b.opts.ContextInterface)); err != nil {
		b.log.Error("unable to subscribe to input method context", "interface", b.opts.ContextInterface, "error", err)
		return nil
	}
	b.signals = make(chan *dbus.Signal, b.opts.SignalBuffer)
	conn.Signal(b.signals)
	return nil
}

// Show activates the input-method context and surfaces the input method.
// Both calls block until the server responds. The chain is abandoned on
// the first failure.
func (b *Bridge) Show() {
	if b.server == nil {
		return
	}
	if call := b.server.Call(b.opts.ServerInterface+".activateContext", 0); call.Err != nil {
		b.log.Error("unable to activate context", "error", call.Err)
		return
	}
	if call := b.server.Call(b.opts.ServerInterface+".showInputMethod", 0); call.Err != nil {
		b.log.Error("unable to show input method", "error", call.Err)
	}
}

// Hide resets and dismisses the input method. The two calls are attempted
// independently; a failed reset does not prevent the hide.
func (b *Bridge) Hide() {
	if b.server == nil {
		return
	}
	if call := b.server.Call(b.opts.ServerInterface+".reset", 0); call.Err != nil {
		b.log.Error("unable to reset input method", "error", call.Err)
	}
	if call := b.server.Call(b.opts.ServerInterface+".hideInputMethod", 0); call.Err != nil {
		b.log.Error("unable to hide input method", "error", call.Err)
	}
}

// Pump dispatches all pending context signals on the calling goroutine and
// returns how many were handled. It never blocks.
func (b *Bridge) Pump() int {
	if b.signals == nil {
		return 0
	}
	n := 0
	for {
		select {
		case sig, ok := <-b.signals:
			if !ok {
				b.signals = nil
				return n
			}
			b.dispatch(sig)
			n++
		default:
			return n
		}
	}
}

// dispatch decodes one context signal and forwards it to the handler.
// Signals with unexpected bodies are dropped with a log line rather than
// crashing the pump.
func (b *Bridge) dispatch(sig *dbus.Signal) {
	member := memberName(sig.Name)
	switch member {
	case sigInvokeAction:
		action, _ := stringArg(sig.Body, 0)
		b.log.Debug("input method invoked action", "action", action)

	case sigIMInitiatedHide:
		b.handler.HandleIMInitiatedHide()

	case sigCommitString:
		text, ok := stringArg(sig.Body, 0)
		if !ok {
			b.log.Warn("malformed commitString signal", "body", sig.Body)
			return
		}
		b.handler.HandleCommitString(text)

	case sigUpdatePreedit:
		text, ok := stringArg(sig.Body, 0)
		if !ok {
			b.log.Warn("malformed updatePreedit signal", "body", sig.Body)
			return
		}
		// Body: text, format list, replace start, replace length, cursor.
		cursor, _ := int32Arg(sig.Body, 4)
		b.handler.HandleUpdatePreedit(text, cursor)

	case sigKeyEvent:
		eventType, okT := int32Arg(sig.Body, 0)
		key, okK := int32Arg(sig.Body, 1)
		if !okT || !okK {
			b.log.Warn("malformed keyEvent signal", "body", sig.Body)
			return
		}
		modifiers, _ := int32Arg(sig.Body, 2)
		text, _ := stringArg(sig.Body, 3)
		b.handler.HandleKeyEvent(eventType, key, modifiers, text)

	case sigUpdateInputMethodArea:
		// Geometry of the input-method panel; acknowledged, nothing to do.

	default:
		b.log.Debug("unhandled input method signal", "member", member)
	}
}

// Close tears down the bus connection.
func (b *Bridge) Close() error {
	if b.conn == nil {
		return nil
	}
	if b.signals != nil {
		b.conn.RemoveSignal(b.signals)
	}
	return b.conn.Close()
}

func memberName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

func stringArg(body []any, i int) (string, bool) {
	if i >= len(body) {
		return "", false
	}
	s, ok := body[i].(string)
	return s, ok
}

func int32Arg(body []any, i int) (int32, bool) {
	if i >= len(body) {
		return 0, false
	}
	switch v := body[i].(type) {
	case int32:
		return v, true
	case uint32:
		return int32(v), true
	case int64:
		return int32(v), true
	default:
		return 0, false
	}
}
