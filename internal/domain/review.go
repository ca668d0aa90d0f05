package domain

import (
	"errors"
	"strconv"
	"time"

	apperrors "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/errors"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/validator"
)

// ReviewState is the moderation state of a review.
type ReviewState string

// Review state constants.
const (
	ReviewStatePending   ReviewState = "pending"
	ReviewStatePublished ReviewState = "published"
	ReviewStateRejected  ReviewState = "rejected"
)

// Answer limits.
const (
	MinScore     = 1
	MaxScore     = 5
	MaxNameRunes = 64
	MaxTextRunes = 900
)

// Review is one completed feedback submission.
type Review struct {
	ID            int64       `json:"id"`
	UserID        int64       `json:"user_id" validate:"required"`
	Rating        int         `json:"rating" validate:"gte=1,lte=5"`
	Communication int         `json:"communication" validate:"gte=1,lte=5"`
	Delivery      int         `json:"delivery" validate:"gte=1,lte=5"`
	Name          string      `json:"name" validate:"notblank,max=64"`
	Text          string      `json:"text" validate:"notblank,max=900"`
	PhotoRef      string      `json:"photo_ref,omitempty"`
	SubmittedAt   time.Time   `json:"submitted_at" validate:"required"`
	State         ReviewState `json:"state"`
	ModeratedAt   *time.Time  `json:"moderated_at,omitempty"`
	ModeratedBy   *int64      `json:"moderated_by,omitempty"`
}

// Validate checks field ranges and text policy.
func (r *Review) Validate() error {
	if err := validator.Validate(r); err != nil {
		var ve *validator.ValidationError
		if errors.As(err, &ve) {
			return apperrors.InvalidInput(ve.Error())
		}
		return err
	}
	return nil
}

// HasPhoto reports whether the review carries a photo reference.
func (r *Review) HasPhoto() bool {
	return r.PhotoRef != ""
}

// IDString returns the id in decimal, as used in logs and event keys.
func (r *Review) IDString() string {
	return strconv.FormatInt(r.ID, 10)
}

// IsTerminal reports whether no further transition is allowed from s.
func (s ReviewState) IsTerminal() bool {
	return s == ReviewStatePublished || s == ReviewStateRejected
}

// IsValid reports whether s is a known state.
func (s ReviewState) IsValid() bool {
	switch s {
	case ReviewStatePending, ReviewStatePublished, ReviewStateRejected:
		return true
	}
	return false
}

// CanTransition reports whether a review may move from one state to another.
// Only pending reviews move, and only to a terminal state.
func CanTransition(from, to ReviewState) bool {
	return from == ReviewStatePending && to.IsTerminal()
}
