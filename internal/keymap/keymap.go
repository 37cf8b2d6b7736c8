// Package keymap normalizes key identifiers from the input-method transport
// onto the canonical hardware key-code space used internally.
//
// The IME transport reports keys in the Qt key namespace (the input-method
// server is Qt-based and forwards QKeyEvent values verbatim). Internally the
// daemon speaks Linux evdev key codes, the same namespace the display
// backend uses for raw keyboard input, so both paths dispatch through one
// switch.
package keymap

// Code is a canonical hardware key code (Linux evdev KEY_* value).
type Code uint16

// Canonical key codes, from linux/input-event-codes.h.
const (
	KeyEsc       Code = 1
	KeyBackspace Code = 14
	KeyTab       Code = 15
	KeyEnter     Code = 28
	KeyHome      Code = 102
	KeyUp        Code = 103
	KeyPageUp    Code = 104
	KeyLeft      Code = 105
	KeyRight     Code = 106
	KeyEnd       Code = 107
	KeyDown      Code = 108
	KeyPageDown  Code = 109
	KeyInsert    Code = 110
	KeyDelete    Code = 111
	KeyPause     Code = 119
)

// QtKey is a key identifier in the Qt key namespace, as delivered by the
// input-method server's keyEvent signal.
type QtKey int32

// Qt key values, from QtCore/qnamespace.h.
const (
	QtKeyEscape    QtKey = 0x01000000
	QtKeyTab       QtKey = 0x01000001
	QtKeyBackspace QtKey = 0x01000003
	QtKeyReturn    QtKey = 0x01000004
	QtKeyEnter     QtKey = 0x01000005
	QtKeyInsert    QtKey = 0x01000006
	QtKeyDelete    QtKey = 0x01000007
	QtKeyPause     QtKey = 0x01000008
	QtKeyHome      QtKey = 0x01000010
	QtKeyEnd       QtKey = 0x01000011
	QtKeyLeft      QtKey = 0x01000012
	QtKeyUp        QtKey = 0x01000013
	QtKeyRight     QtKey = 0x01000014
	QtKeyDown      QtKey = 0x01000015
	QtKeyPageUp    QtKey = 0x01000016
	QtKeyPageDown  QtKey = 0x01000017
)

// Qt key event types, from QEvent::Type. The transport distinguishes press
// and release; only presses drive editing.
const (
	EventKeyPress   int32 = 6
	EventKeyRelease int32 = 7
)

// qtToEvdev is built once at load time and never mutated afterwards.
var qtToEvdev = map[QtKey]Code{
	QtKeyEscape:    KeyEsc,
	QtKeyTab:       KeyTab,
	QtKeyBackspace: KeyBackspace,
	QtKeyReturn:    KeyEnter,
	QtKeyEnter:     KeyEnter,
	QtKeyInsert:    KeyInsert,
	QtKeyDelete:    KeyDelete,
	QtKeyPause:     KeyPause,
	QtKeyHome:      KeyHome,
	QtKeyEnd:       KeyEnd,
	QtKeyLeft:      KeyLeft,
	QtKeyUp:        KeyUp,
	QtKeyRight:     KeyRight,
	QtKeyDown:      KeyDown,
	QtKeyPageUp:    KeyPageUp,
	QtKeyPageDown:  KeyPageDown,
}

// Translate maps a Qt key onto its canonical code. The second return value
// is false for keys with no canonical equivalent; those never reach the
// editing model.
func Translate(key QtKey) (Code, bool) {
	code, ok := qtToEvdev[key]
	return code, ok
}
