package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/errors"
)

func validReview() *Review {
	return &Review{
		UserID:        100,
		Rating:        5,
		Communication: 4,
		Delivery:      3,
		Name:          "Anna",
		Text:          "Great seller",
		SubmittedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		State:         ReviewStatePending,
	}
}

func TestReview_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Review)
		wantErr bool
	}{
		{"valid", func(*Review) {}, false},
		{"rating zero", func(r *Review) { r.Rating = 0 }, true},
		{"delivery six", func(r *Review) { r.Delivery = 6 }, true},
		{"blank name", func(r *Review) { r.Name = "  " }, true},
		{"long name", func(r *Review) { r.Name = strings.Repeat("a", MaxNameRunes+1) }, true},
		{"name at limit in cyrillic", func(r *Review) { r.Name = strings.Repeat("ж", MaxNameRunes) }, false},
		{"empty text", func(r *Review) { r.Text = "" }, true},
		{"long text", func(r *Review) { r.Text = strings.Repeat("x", MaxTextRunes+1) }, true},
		{"missing user", func(r *Review) { r.UserID = 0 }, true},
		{"photo optional", func(r *Review) { r.PhotoRef = "AgACAgIAAx" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReview()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(ReviewStatePending, ReviewStatePublished))
	assert.True(t, CanTransition(ReviewStatePending, ReviewStateRejected))
	assert.False(t, CanTransition(ReviewStatePending, ReviewStatePending))
	assert.False(t, CanTransition(ReviewStatePublished, ReviewStateRejected))
	assert.False(t, CanTransition(ReviewStateRejected, ReviewStatePublished))
	assert.False(t, CanTransition(ReviewStatePublished, ReviewStatePublished))
}

func TestStep_Progression(t *testing.T) {
	want := []Step{
		StepAwaitingRating,
		StepAwaitingCommunication,
		StepAwaitingDelivery,
		StepAwaitingName,
		StepAwaitingText,
		StepAwaitingPhoto,
		StepCompleted,
	}

	s := NewSession(1, 1, time.Now()).Step
	for i, w := range want {
		require.Equal(t, w, s, "position %d", i)
		s = s.Next()
	}
	assert.Equal(t, StepCompleted, s)
	assert.Equal(t, StepIdle, StepIdle.Next())
}

func TestStep_Stage(t *testing.T) {
	assert.Equal(t, StageRating, StepAwaitingRating.Stage())
	assert.Equal(t, StageCommunication, StepAwaitingCommunication.Stage())
	assert.Equal(t, StageDelivery, StepAwaitingDelivery.Stage())
	assert.Equal(t, Stage(""), StepAwaitingName.Stage())
	assert.Equal(t, "awaiting_photo", StepAwaitingPhoto.String())
	assert.Equal(t, "unknown", Step(99).String())
}

func TestSession_Review(t *testing.T) {
	s := NewSession(7, 70, time.Now())
	s.SetScore(StageRating, 5)
	s.SetScore(StageCommunication, 3)
	s.SetScore(StageDelivery, 1)
	s.Name, s.Text, s.PhotoRef = "Ivan", "ok", "file-1"

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := s.Review(at)
	assert.Equal(t, int64(7), r.UserID)
	assert.Equal(t, 5, r.Rating)
	assert.Equal(t, 3, r.Communication)
	assert.Equal(t, 1, r.Delivery)
	assert.Equal(t, "file-1", r.PhotoRef)
	assert.Equal(t, at, r.SubmittedAt)
	assert.Equal(t, ReviewStatePending, r.State)
	assert.NoError(t, r.Validate())
}

func TestDecodeCallback(t *testing.T) {
	got, err := DecodeCallback(EncodeChoice(StageDelivery, 4))
	require.NoError(t, err)
	assert.Equal(t, &SessionChoice{Stage: StageDelivery, Value: 4}, got)

	got, err = DecodeCallback(EncodeModeration(ModerationReject, 42))
	require.NoError(t, err)
	assert.Equal(t, &ModerationAction{ReviewID: 42, Kind: ModerationReject}, got)

	// Out of range values decode; the dialog rejects them.
	got, err = DecodeCallback("s:rating:9")
	require.NoError(t, err)
	assert.Equal(t, 9, got.(*SessionChoice).Value)

	for _, bad := range []string{
		"",
		"approve",
		"rate_5",
		"s:rating",
		"s:mood:3",
		"s:rating:x",
		"m:archive:1",
		"m:publish:0",
		"m:publish:-4",
		"m:publish:abc",
		"x:publish:1",
		"s:rating:1:extra",
	} {
		_, err := DecodeCallback(bad)
		assert.Error(t, err, "payload %q", bad)
	}
}

func TestFormatDescription(t *testing.T) {
	assert.Equal(t, "", FormatDescription(0, 0))
	assert.Equal(t, "Average rating: 4.00 ⭐ from 3 reviews", FormatDescription(12, 3))
	assert.Equal(t, "Average rating: 4.67 ⭐ from 3 reviews", FormatDescription(14, 3))
}

func TestFormatForModeration(t *testing.T) {
	r := validReview()
	r.ID = 42

	text := FormatForModeration(r)
	assert.True(t, strings.HasPrefix(text, "📝 Review #42"))
	assert.Contains(t, text, "⭐⭐⭐⭐⭐ 5/5")
	assert.Contains(t, text, "Communication: ⭐⭐⭐⭐ 4/5")
	assert.Contains(t, text, "Delivery: ⭐⭐⭐ 3/5")
	assert.Contains(t, text, "Anna")
	assert.Contains(t, text, "Great seller")
	assert.NotContains(t, FormatForChannel(r), "#42")
}

func TestModerationMessage_Buttons(t *testing.T) {
	r := validReview()
	r.ID = 9
	r.PhotoRef = "photo"

	msg := ModerationMessage(r)
	assert.Equal(t, "photo", msg.PhotoRef)
	require.Len(t, msg.Buttons, 1)
	require.Len(t, msg.Buttons[0], 2)
	assert.Equal(t, "m:publish:9", msg.Buttons[0][0].Data)
	assert.Equal(t, "m:reject:9", msg.Buttons[0][1].Data)
}

func TestPromptFor(t *testing.T) {
	msg := PromptFor(StepAwaitingCommunication)
	require.Len(t, msg.Buttons, 1)
	require.Len(t, msg.Buttons[0], 5)
	assert.Equal(t, "s:communication:1", msg.Buttons[0][0].Data)
	assert.Equal(t, "5 ⭐", msg.Buttons[0][4].Label)

	assert.Empty(t, PromptFor(StepAwaitingName).Buttons)
	assert.Equal(t, TextAskPhoto, PromptFor(StepAwaitingPhoto).Text)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", TruncateRunes("abc", 3))
	assert.Equal(t, "ab…", TruncateRunes("abcd", 3))
	assert.Equal(t, "жж…", TruncateRunes("жжжж", 3))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestStars(t *testing.T) {
	assert.Equal(t, "", Stars(0))
	assert.Equal(t, "⭐⭐⭐", Stars(3))
}
