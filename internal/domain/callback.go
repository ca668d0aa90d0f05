package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback payload namespaces.
const (
	callbackSession    = "s"
	callbackModeration = "m"
)

// ModerationKind is the admin decision carried by a moderation button.
type ModerationKind string

const (
	ModerationPublish ModerationKind = "publish"
	ModerationReject  ModerationKind = "reject"
)

// SessionChoice is a score picked during the dialog.
type SessionChoice struct {
	Stage Stage
	Value int
}

// ModerationAction is an admin decision on one review.
type ModerationAction struct {
	ReviewID int64
	Kind     ModerationKind
	ActorID  int64
	Message  MessageRef
}

// EncodeChoice renders a session choice payload, e.g. "s:rating:5".
func EncodeChoice(stage Stage, value int) string {
	return callbackSession + ":" + string(stage) + ":" + strconv.Itoa(value)
}

// EncodeModeration renders a moderation payload, e.g. "m:publish:42".
func EncodeModeration(kind ModerationKind, reviewID int64) string {
	return callbackModeration + ":" + string(kind) + ":" + strconv.FormatInt(reviewID, 10)
}

// DecodeCallback parses a button payload into a *SessionChoice or a
// *ModerationAction. ActorID and Message of a decoded action are left zero
// for the caller to fill. A choice value outside 1..5 still decodes; range
// checking belongs to the dialog.
func DecodeCallback(data string) (any, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("callback %q: want 3 parts, got %d", data, len(parts))
	}

	switch parts[0] {
	case callbackSession:
		stage := Stage(parts[1])
		switch stage {
		case StageRating, StageCommunication, StageDelivery:
		default:
			return nil, fmt.Errorf("callback %q: unknown stage", data)
		}
		v, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("callback %q: bad value: %w", data, err)
		}
		return &SessionChoice{Stage: stage, Value: v}, nil

	case callbackModeration:
		kind := ModerationKind(parts[1])
		if kind != ModerationPublish && kind != ModerationReject {
			return nil, fmt.Errorf("callback %q: unknown action", data)
		}
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("callback %q: bad review id", data)
		}
		return &ModerationAction{ReviewID: id, Kind: kind}, nil

	default:
		return nil, fmt.Errorf("callback %q: unknown namespace", data)
	}
}
