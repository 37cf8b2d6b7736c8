package textinput

// Method names accepted from the UI framework.
const (
	MethodSetClient       = "TextInput.setClient"
	MethodClearClient     = "TextInput.clearClient"
	MethodSetEditingState = "TextInput.setEditingState"
	MethodShow            = "TextInput.show"
	MethodHide            = "TextInput.hide"
)

// Notification names sent back to the UI framework.
const (
	NotifyUpdateEditingState = "TextInputClient.updateEditingState"
	NotifyPerformAction      = "TextInputClient.performAction"
)

// Wire tokens recognized in client configuration and emitted in state
// updates.
const (
	MultilineInputType = "TextInputType.multiline"
	AffinityDownstream = "TextAffinity.downstream"
)

// Error codes reported back over the method channel.
const (
	ErrorCodeBadArguments        = "Bad Arguments"
	ErrorCodeInternalConsistency = "Internal Consistency Error"
)

// EditingState is the updateEditingState notification payload. The
// framework receives it wrapped in an array together with the client id.
//
// Composing offsets are always -1 on the wire regardless of the model's
// composing state; clients of this protocol expect that.
type EditingState struct {
	ComposingBase          int    `json:"composingBase"`
	ComposingExtent        int    `json:"composingExtent"`
	SelectionAffinity      string `json:"selectionAffinity"`
	SelectionBase          int    `json:"selectionBase"`
	SelectionExtent        int    `json:"selectionExtent"`
	SelectionIsDirectional bool   `json:"selectionIsDirectional"`
	Text                   string `json:"text"`
}

// MethodError is an error result for a method call, carrying the wire
// error code alongside a human-readable message.
type MethodError struct {
	Code    string
	Message string
}

func (e *MethodError) Error() string {
	return e.Code + ": " + e.Message
}

func badArguments(msg string) error {
	return &MethodError{Code: ErrorCodeBadArguments, Message: msg}
}

func internalConsistency(msg string) error {
	return &MethodError{Code: ErrorCodeInternalConsistency, Message: msg}
}
