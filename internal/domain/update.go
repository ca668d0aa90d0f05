package domain

// Origin identifies who sent an update and where replies go.
type Origin struct {
	UpdateID int
	UserID   int64
	ChatID   int64
}

// Update is an inbound event from the messaging platform. The concrete types
// below are the complete set; handlers switch over them exhaustively.
type Update interface {
	Meta() Origin
	isUpdate()
}

// CommandUpdate is a slash command such as /start.
type CommandUpdate struct {
	Origin
	Command string
	Args    string
}

// TextUpdate is a plain text message.
type TextUpdate struct {
	Origin
	Text string
}

// PhotoUpdate is a photo message. PhotoRef is the platform file id of the
// largest size.
type PhotoUpdate struct {
	Origin
	PhotoRef string
	Caption  string
}

// OtherUpdate is any message content the dialog has no use for (stickers,
// voice, documents).
type OtherUpdate struct {
	Origin
}

// ChoiceUpdate is a press on a dialog score button.
type ChoiceUpdate struct {
	Origin
	CallbackID string
	Choice     SessionChoice
}

// ModerationUpdate is a press on a Publish or Reject button.
type ModerationUpdate struct {
	Origin
	CallbackID string
	Action     ModerationAction
}

// UnknownCallbackUpdate is a button press whose payload did not decode.
type UnknownCallbackUpdate struct {
	Origin
	CallbackID string
	Data       string
}

func (o Origin) Meta() Origin { return o }

func (CommandUpdate) isUpdate()         {}
func (TextUpdate) isUpdate()            {}
func (PhotoUpdate) isUpdate()           {}
func (OtherUpdate) isUpdate()           {}
func (ChoiceUpdate) isUpdate()          {}
func (ModerationUpdate) isUpdate()      {}
func (UnknownCallbackUpdate) isUpdate() {}
