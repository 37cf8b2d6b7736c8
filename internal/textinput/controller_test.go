package textinput

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textinputd/internal/keymap"
)

// recorder captures outbound notifications in order.
type recorder struct {
	notifications []notification
}

type notification struct {
	Method string
	Params any
}

func (r *recorder) Notify(_ context.Context, method string, params any) error {
	r.notifications = append(r.notifications, notification{Method: method, Params: params})
	return nil
}

func (r *recorder) states(t *testing.T) []EditingState {
	t.Helper()
	var states []EditingState
	for _, n := range r.notifications {
		if n.Method != NotifyUpdateEditingState {
			continue
		}
		args, ok := n.Params.([]any)
		require.True(t, ok, "updateEditingState params should be an array")
		require.Len(t, args, 2)
		state, ok := args[1].(EditingState)
		require.True(t, ok, "second element should be an EditingState")
		states = append(states, state)
	}
	return states
}

func newTestController(t *testing.T) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewController(nil)
	c.SetNotifier(rec)
	return c, rec
}

func call(t *testing.T, c *Controller, method, params string) error {
	t.Helper()
	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	_, err := c.HandleMethodCall(context.Background(), method, raw)
	return err
}

func TestSetClientAndKeyNavigation(t *testing.T) {
	c, rec := newTestController(t)

	require.NoError(t, call(t, c, MethodSetClient, `[5, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "hi", "selectionBase": -1, "selectionExtent": -1}`))

	c.OnKeyPressed(keymap.KeyRight, 0)
	c.OnKeyPressed(keymap.KeyRight, 0)

	states := rec.states(t)
	require.Len(t, states, 2)
	for _, n := range rec.notifications {
		args := n.Params.([]any)
		assert.Equal(t, 5, args[0], "client id")
	}

	want := EditingState{
		ComposingBase:          -1,
		ComposingExtent:        -1,
		SelectionAffinity:      AffinityDownstream,
		SelectionBase:          2,
		SelectionExtent:        2,
		SelectionIsDirectional: false,
		Text:                   "hi",
	}
	if diff := cmp.Diff(want, states[1]); diff != "" {
		t.Errorf("final editing state mismatch (-want +got):\n%s", diff)
	}
}

func TestSetEditingStateSentinelSelection(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "abc", "selectionBase": -1, "selectionExtent": -1}`))

	// Typing one character from a (0,0) caret prepends it.
	c.OnKeyPressed(0, 'x')
	states := rec.states(t)
	require.Len(t, states, 1)
	assert.Equal(t, "xabc", states[0].Text)
	assert.Equal(t, 1, states[0].SelectionBase)
	assert.Equal(t, 1, states[0].SelectionExtent)
}

func TestSetEditingStateAppliesBoundsVerbatim(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "hello", "selectionBase": 4, "selectionExtent": 1}`))

	c.OnKeyPressed(keymap.KeyBackspace, 0)
	states := rec.states(t)
	require.Len(t, states, 1)
	assert.Equal(t, "ho", states[0].Text)
	assert.Equal(t, 1, states[0].SelectionBase)
	assert.Equal(t, 1, states[0].SelectionExtent)
}

func TestSetClientResetsConfiguration(t *testing.T) {
	c, rec := newTestController(t)

	require.NoError(t, call(t, c, MethodSetClient,
		`[1, {"inputAction": "TextInputAction.done", "inputType": {"name": "TextInputType.multiline"}}]`))
	require.NoError(t, call(t, c, MethodSetClient, `[2, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "", "selectionBase": 0, "selectionExtent": 0}`))

	c.OnKeyPressed(keymap.KeyEnter, 0)

	// Not multiline anymore, so only performAction fires, with the reset
	// empty action and the new client id.
	require.Len(t, rec.notifications, 1)
	n := rec.notifications[0]
	assert.Equal(t, NotifyPerformAction, n.Method)
	assert.Equal(t, []any{2, ""}, n.Params)
}

func TestSetClientToleratesWrongTypedConfig(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient,
		`[3, {"inputAction": 42, "inputType": "not-an-object"}]`))

	c.OnKeyPressed(keymap.KeyEnter, 0)
	require.Len(t, rec.notifications, 1)
	assert.Equal(t, []any{3, ""}, rec.notifications[0].Params)
}

func TestEnterPressedMultilineOrdering(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient,
		`[7, {"inputAction": "TextInputAction.newline", "inputType": {"name": "TextInputType.multiline"}}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "ab", "selectionBase": 2, "selectionExtent": 2}`))

	c.OnKeyPressed(keymap.KeyEnter, 0)

	require.Len(t, rec.notifications, 2)
	assert.Equal(t, NotifyUpdateEditingState, rec.notifications[0].Method)
	assert.Equal(t, NotifyPerformAction, rec.notifications[1].Method)

	states := rec.states(t)
	require.Len(t, states, 1)
	assert.Equal(t, "ab\n", states[0].Text)
	assert.Equal(t, []any{7, "TextInputAction.newline"}, rec.notifications[1].Params)
}

func TestMethodCallErrors(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(t *testing.T, c *Controller)
		method   string
		params   string
		wantCode string
	}{
		{
			name:     "setClient without args",
			method:   MethodSetClient,
			params:   "",
			wantCode: ErrorCodeBadArguments,
		},
		{
			name:     "setClient null args",
			method:   MethodSetClient,
			params:   "null",
			wantCode: ErrorCodeBadArguments,
		},
		{
			name:     "setClient null client id",
			method:   MethodSetClient,
			params:   `[null, {}]`,
			wantCode: ErrorCodeBadArguments,
		},
		{
			name:     "setClient null config",
			method:   MethodSetClient,
			params:   `[1, null]`,
			wantCode: ErrorCodeBadArguments,
		},
		{
			name:     "setEditingState without client",
			method:   MethodSetEditingState,
			params:   `{"text": "x", "selectionBase": 0, "selectionExtent": 0}`,
			wantCode: ErrorCodeInternalConsistency,
		},
		{
			name: "setEditingState without text",
			setup: func(t *testing.T, c *Controller) {
				require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
			},
			method:   MethodSetEditingState,
			params:   `{"selectionBase": 0, "selectionExtent": 0}`,
			wantCode: ErrorCodeBadArguments,
		},
		{
			name: "setEditingState null text",
			setup: func(t *testing.T, c *Controller) {
				require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
			},
			method:   MethodSetEditingState,
			params:   `{"text": null, "selectionBase": 0, "selectionExtent": 0}`,
			wantCode: ErrorCodeBadArguments,
		},
		{
			name: "setEditingState missing selection",
			setup: func(t *testing.T, c *Controller) {
				require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
			},
			method:   MethodSetEditingState,
			params:   `{"text": "x", "selectionBase": 0}`,
			wantCode: ErrorCodeInternalConsistency,
		},
		{
			name: "setEditingState null selection bound",
			setup: func(t *testing.T, c *Controller) {
				require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
			},
			method:   MethodSetEditingState,
			params:   `{"text": "x", "selectionBase": null, "selectionExtent": 0}`,
			wantCode: ErrorCodeInternalConsistency,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestController(t)
			if tc.setup != nil {
				tc.setup(t, c)
			}
			err := call(t, c, tc.method, tc.params)
			var methodErr *MethodError
			require.ErrorAs(t, err, &methodErr)
			assert.Equal(t, tc.wantCode, methodErr.Code)
			assert.Empty(t, rec.notifications, "failed calls must not notify")
		})
	}
}

func TestUnknownMethodNotImplemented(t *testing.T) {
	c, _ := newTestController(t)
	err := call(t, c, "TextInput.requestAutofill", `{}`)
	assert.True(t, errors.Is(err, ErrNotImplemented))
}

func TestClearClientDropsLaterEvents(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "hi", "selectionBase": 0, "selectionExtent": 0}`))
	require.NoError(t, call(t, c, MethodClearClient, ""))

	c.OnKeyPressed(keymap.KeyRight, 0)
	c.OnKeyPressed(0, 'z')
	c.HandleCommitString("ime text")
	c.HandleUpdatePreedit("か", 1)
	c.HandleIMInitiatedHide()
	c.HandleKeyEvent(keymap.EventKeyPress, int32(keymap.QtKeyLeft), 0, "")

	assert.Empty(t, rec.notifications, "no notifications after clearClient")
}

func TestCommitStringPlainInsert(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "ab", "selectionBase": 2, "selectionExtent": 2}`))

	c.HandleCommitString("つ")

	states := rec.states(t)
	require.Len(t, states, 1)
	assert.Equal(t, "abつ", states[0].Text)
	assert.Equal(t, 3, states[0].SelectionBase)
	assert.Equal(t, -1, states[0].ComposingBase)
	assert.Equal(t, -1, states[0].ComposingExtent)
}

func TestPreeditThenCommit(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "", "selectionBase": 0, "selectionExtent": 0}`))

	c.HandleUpdatePreedit("か", 1)
	c.HandleUpdatePreedit("かん", 2)
	c.HandleCommitString("感")

	states := rec.states(t)
	require.Len(t, states, 3)
	assert.Equal(t, "か", states[0].Text)
	assert.Equal(t, "かん", states[1].Text)
	assert.Equal(t, "感", states[2].Text)
	assert.Equal(t, 1, states[2].SelectionBase)
}

func TestIMInitiatedHideEndsComposing(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "", "selectionBase": 0, "selectionExtent": 0}`))

	c.HandleUpdatePreedit("き", 1)
	rec.notifications = nil

	c.HandleIMInitiatedHide()
	require.Len(t, rec.notifications, 1, "hide while composing notifies once")

	rec.notifications = nil
	c.HandleIMInitiatedHide()
	assert.Empty(t, rec.notifications, "hide while not composing is silent")
}

func TestHandleKeyEventPressOnly(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "ab", "selectionBase": 0, "selectionExtent": 0}`))

	c.HandleKeyEvent(keymap.EventKeyRelease, int32(keymap.QtKeyRight), 0, "")
	assert.Empty(t, rec.notifications, "release events are ignored")

	c.HandleKeyEvent(keymap.EventKeyPress, int32(keymap.QtKeyRight), 0, "")
	states := rec.states(t)
	require.Len(t, states, 1)
	assert.Equal(t, 1, states[0].SelectionBase)
}

func TestBoundaryKeyPressSendsNoUpdate(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "hi", "selectionBase": 0, "selectionExtent": 0}`))

	c.OnKeyPressed(keymap.KeyBackspace, 0)
	c.OnKeyPressed(keymap.KeyLeft, 0)
	c.OnKeyPressed(keymap.KeyHome, 0)

	assert.Empty(t, rec.notifications, "no-op key presses must not notify")
}

func TestKeyPressAfterOutOfRangeSelection(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "hi", "selectionBase": 5, "selectionExtent": 5}`))

	c.OnKeyPressed(0, 'x')

	states := rec.states(t)
	require.Len(t, states, 1)
	assert.Equal(t, "hix", states[0].Text)
	assert.Equal(t, 3, states[0].SelectionBase)
	assert.Equal(t, 3, states[0].SelectionExtent)
}

func TestBackspaceAfterOutOfRangeSelection(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "abc", "selectionBase": 1, "selectionExtent": 9}`))

	c.OnKeyPressed(keymap.KeyBackspace, 0)

	states := rec.states(t)
	require.Len(t, states, 1)
	assert.Equal(t, "a", states[0].Text)
	assert.Equal(t, 1, states[0].SelectionBase)
}

func TestCommitAfterStateReplacedMidComposing(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, call(t, c, MethodSetClient, `[1, {}]`))
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "hello", "selectionBase": 5, "selectionExtent": 5}`))

	c.HandleUpdatePreedit("かんじ", 3)

	// State reasserted while the composing bracket is still open.
	require.NoError(t, call(t, c, MethodSetEditingState,
		`{"text": "", "selectionBase": 0, "selectionExtent": 0}`))

	c.HandleCommitString("感")

	states := rec.states(t)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.Equal(t, "感", last.Text)
	assert.Equal(t, 1, last.SelectionBase)
	assert.Equal(t, 1, last.SelectionExtent)
}

type fakeKeyboard struct {
	visible []bool
}

func (f *fakeKeyboard) UpdateVirtualKeyboardStatus(v bool) {
	f.visible = append(f.visible, v)
}

type fakeIME struct {
	shows, hides int
}

func (f *fakeIME) Show() { f.shows++ }
func (f *fakeIME) Hide() { f.hides++ }

func TestShowHideDelegation(t *testing.T) {
	c, _ := newTestController(t)
	kb := &fakeKeyboard{}
	ime := &fakeIME{}
	c.SetKeyboardDelegate(kb)
	c.SetIMEControl(ime)

	require.NoError(t, call(t, c, MethodShow, ""))
	require.NoError(t, call(t, c, MethodHide, ""))

	assert.Equal(t, []bool{true, false}, kb.visible)
	assert.Equal(t, 1, ime.shows)
	assert.Equal(t, 1, ime.hides)
}
