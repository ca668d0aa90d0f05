package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxCaptionRunes is the platform limit for a photo caption.
const MaxCaptionRunes = 1024

// User-facing texts.
const (
	TextAskRating        = "👋 Thank you for your purchase!\n\nPlease rate your overall experience:"
	TextAskCommunication = "💬 How was communication with the seller?"
	TextAskDelivery      = "🚚 How satisfied are you with the delivery?"
	TextAskName          = "🙂 What is your name?"
	TextAskText          = "✍️ Please write your review:"
	TextAskPhoto         = "📸 You can attach a photo, or send any text to skip."
	TextSubmitted        = "✅ Thank you! Your review has been sent for moderation."
	TextSubmitFailed     = "⚠️ Something went wrong while saving your review. Please send your photo or any text again to retry."
	TextCancelled        = "Review cancelled. Send /start to begin again."
	TextNothingToCancel  = "There is no review in progress."
	TextChooseScore      = "Please choose a value from 1 to 5 using the buttons."
	TextNotAdmin         = "This command is only available to administrators."
	TextPublishedAck     = "Published ✅"
	TextRejectedAck      = "Rejected ❌"
	TextAlreadyModerated = "This review has already been moderated."
	TextReviewNotFound   = "Review not found."
	TextUnknownCommand   = "Send /start to leave a review or /cancel to stop the current one."
	TextActionFailed     = "Something went wrong, please try again."
)

// TextNameInvalid and TextTextInvalid spell out the limits.
var (
	TextNameInvalid = fmt.Sprintf("Please enter a name of 1 to %d characters.", MaxNameRunes)
	TextTextInvalid = fmt.Sprintf("Please write a review of 1 to %d characters.", MaxTextRunes)
)

// Stars renders n star emoji.
func Stars(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("⭐", n)
}

// PromptFor returns the question asked at step s, with score buttons for the
// choice steps.
func PromptFor(s Step) Message {
	switch s {
	case StepAwaitingRating:
		return Message{Text: TextAskRating, Buttons: ScoreButtons(StageRating)}
	case StepAwaitingCommunication:
		return Message{Text: TextAskCommunication, Buttons: ScoreButtons(StageCommunication)}
	case StepAwaitingDelivery:
		return Message{Text: TextAskDelivery, Buttons: ScoreButtons(StageDelivery)}
	case StepAwaitingName:
		return Message{Text: TextAskName}
	case StepAwaitingText:
		return Message{Text: TextAskText}
	case StepAwaitingPhoto:
		return Message{Text: TextAskPhoto}
	default:
		return Message{}
	}
}

// ScoreButtons returns one row of 1..5 buttons for stage.
func ScoreButtons(stage Stage) [][]Button {
	row := make([]Button, 0, MaxScore)
	for v := MinScore; v <= MaxScore; v++ {
		row = append(row, Button{Label: strconv.Itoa(v) + " ⭐", Data: EncodeChoice(stage, v)})
	}
	return [][]Button{row}
}

// ModerationButtons returns the Publish/Reject row for review id.
func ModerationButtons(id int64) [][]Button {
	return [][]Button{{
		{Label: "✅ Publish", Data: EncodeModeration(ModerationPublish, id)},
		{Label: "❌ Reject", Data: EncodeModeration(ModerationReject, id)},
	}}
}

func formatBody(r *Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d/5\n", Stars(r.Rating), r.Rating)
	fmt.Fprintf(&b, "Communication: %s %d/5\n", Stars(r.Communication), r.Communication)
	fmt.Fprintf(&b, "Delivery: %s %d/5\n\n", Stars(r.Delivery), r.Delivery)
	fmt.Fprintf(&b, "👤 %s\n\n%s", r.Name, r.Text)
	return b.String()
}

// FormatForModeration renders a review for the moderation chat, headed by its id.
func FormatForModeration(r *Review) string {
	return fmt.Sprintf("📝 Review #%d\n\n%s", r.ID, formatBody(r))
}

// FormatForChannel renders a published review for the public channel.
func FormatForChannel(r *Review) string {
	return formatBody(r)
}

// ModerationMessage builds the moderation notification for r.
func ModerationMessage(r *Review) Message {
	return Message{
		Text:     FormatForModeration(r),
		PhotoRef: r.PhotoRef,
		Buttons:  ModerationButtons(r.ID),
	}
}

// ChannelMessage builds the channel post for r.
func ChannelMessage(r *Review) Message {
	return Message{Text: FormatForChannel(r), PhotoRef: r.PhotoRef}
}

// FormatDescription renders the channel summary line. It returns "" when
// there is nothing to summarise.
func FormatDescription(sum int64, count int64) string {
	if count <= 0 {
		return ""
	}
	return fmt.Sprintf("Average rating: %.2f ⭐ from %d reviews", float64(sum)/float64(count), count)
}

// FormatCooldown tells a user when they may submit again.
func FormatCooldown(next time.Time) string {
	return fmt.Sprintf("⏳ You have already left a review recently. You can submit a new one after %s UTC.",
		next.UTC().Format("2006-01-02 15:04"))
}

// FormatStats renders the aggregate for /stats.
func FormatStats(sum, count int64) string {
	if count <= 0 {
		return "No published reviews yet."
	}
	return fmt.Sprintf("📊 %s\nPublished reviews: %d\nSum of ratings: %d", FormatDescription(sum, count), count, sum)
}

// TruncateRunes cuts s to at most n runes, ending with an ellipsis when cut.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
