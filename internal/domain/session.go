package domain

import "time"

// Step is a position in the feedback dialog.
type Step int

const (
	StepIdle Step = iota
	StepAwaitingRating
	StepAwaitingCommunication
	StepAwaitingDelivery
	StepAwaitingName
	StepAwaitingText
	StepAwaitingPhoto
	StepCompleted
)

var stepNames = map[Step]string{
	StepIdle:                  "idle",
	StepAwaitingRating:        "awaiting_rating",
	StepAwaitingCommunication: "awaiting_communication",
	StepAwaitingDelivery:      "awaiting_delivery",
	StepAwaitingName:          "awaiting_name",
	StepAwaitingText:          "awaiting_text",
	StepAwaitingPhoto:         "awaiting_photo",
	StepCompleted:             "completed",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

// Stage names the score a choice button answers.
type Stage string

const (
	StageRating        Stage = "rating"
	StageCommunication Stage = "communication"
	StageDelivery      Stage = "delivery"
)

// Stage returns the score stage awaited at s, or "" for non-choice steps.
func (s Step) Stage() Stage {
	switch s {
	case StepAwaitingRating:
		return StageRating
	case StepAwaitingCommunication:
		return StageCommunication
	case StepAwaitingDelivery:
		return StageDelivery
	default:
		return ""
	}
}

// Next returns the step that follows s. Completed and Idle are fixed points.
func (s Step) Next() Step {
	if s > StepIdle && s < StepCompleted {
		return s + 1
	}
	return s
}

// Session is the in-memory progress of one user through the dialog.
type Session struct {
	UserID        int64
	ChatID        int64
	Step          Step
	Rating        int
	Communication int
	Delivery      int
	Name          string
	Text          string
	PhotoRef      string
	StartedAt     time.Time
}

// NewSession starts a session at the first question.
func NewSession(userID, chatID int64, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		ChatID:    chatID,
		Step:      StepAwaitingRating,
		StartedAt: now,
	}
}

// SetScore stores value for stage. The caller validates the range.
func (s *Session) SetScore(stage Stage, value int) {
	switch stage {
	case StageRating:
		s.Rating = value
	case StageCommunication:
		s.Communication = value
	case StageDelivery:
		s.Delivery = value
	}
}

// Review assembles a pending review from the collected answers.
func (s *Session) Review(submittedAt time.Time) *Review {
	return &Review{
		UserID:        s.UserID,
		Rating:        s.Rating,
		Communication: s.Communication,
		Delivery:      s.Delivery,
		Name:          s.Name,
		Text:          s.Text,
		PhotoRef:      s.PhotoRef,
		SubmittedAt:   submittedAt,
		State:         ReviewStatePending,
	}
}
