package slack

import (
	"fmt"
	"time"

	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/slack-go/slack"
)

type DispatchAlertBlocksInput struct {
	EmergencyID  string
	Details      ml.EmergencyDetails
	Confirmation string
	ExpiresAt    time.Time
}

func labeledSection(label, value string) *slack.RichTextSection {
	return slack.NewRichTextSection(
		slack.NewRichTextSectionTextElement(label+": ", &slack.RichTextSectionTextStyle{Bold: true}),
		slack.NewRichTextSectionTextElement(orUnknown(value), nil),
	)
}

func orUnknown(value string) string {
	if value == "" {
		return "Unknown"
	}
	return value
}

func preformatted(text string) *slack.RichTextPreformatted {
	return &slack.RichTextPreformatted{
		RichTextSection: slack.RichTextSection{
			Type: slack.RTEPreformatted,
			Elements: []slack.RichTextSectionElement{
				slack.NewRichTextSectionTextElement(text, nil),
			},
		},
		Border: 0,
	}
}

// BuildDispatchAlertBlocks creates the Block Kit message that opens an incident thread.
func BuildDispatchAlertBlocks(in *DispatchAlertBlocksInput) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "Emergency Dispatch :ambulance:", true, false),
		),

		slack.NewDividerBlock(),

		slack.NewRichTextBlock(
			"",
			labeledSection("Location", in.Details.Location),
			labeledSection("Incident", in.Details.Incident),
			labeledSection("People", in.Details.VictimCount),
			labeledSection("Reported status", in.Details.UserReportedStatus),
		),

		slack.NewRichTextBlock("", preformatted(in.Confirmation)),

		slack.NewDividerBlock(),

		slack.NewRichTextBlock(
			"",
			slack.NewRichTextSection(
				slack.NewRichTextSectionTextElement(fmt.Sprintf("Incident %s is open. Follow-up messages are posted in this thread. ", in.EmergencyID), nil),
				slack.NewRichTextSectionTextElement(
					fmt.Sprintf("Closes %s", in.ExpiresAt.Format("01/02/06 15:04 MST")),
					&slack.RichTextSectionTextStyle{Bold: true, Italic: true},
				),
			),
		),
	}
}

type FollowUpBlocksInput struct {
	UserMessage    string
	AssistantReply string
	TS             time.Time
}

func BuildFollowUpBlocks(in *FollowUpBlocksInput) []slack.Block {
	return []slack.Block{
		slack.NewRichTextBlock(
			"",
			labeledSection("Time", in.TS.Local().Format(time.RFC1123)),
			labeledSection("Caller", in.UserMessage),
			labeledSection("Medilocator", in.AssistantReply),
		),
		slack.NewDividerBlock(),
	}
}

type IncidentClosedBlocksInput struct {
	EmergencyID string
	ClosedAt    time.Time
}

func BuildIncidentClosedBlocks(in *IncidentClosedBlocksInput) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "Incident Closed :lock:", true, false),
		),
		slack.NewDividerBlock(),
		slack.NewRichTextBlock(
			"",
			slack.NewRichTextSection(
				slack.NewRichTextSectionTextElement(
					fmt.Sprintf("Incident %s thread has been closed.", in.EmergencyID),
					&slack.RichTextSectionTextStyle{Bold: true},
				),
			),
		),
		slack.NewRichTextBlock(
			"",
			slack.NewRichTextSection(
				slack.NewRichTextSectionTextElement(
					fmt.Sprintf("Closed at %s", in.ClosedAt.Local().Format(time.RFC1123)),
					&slack.RichTextSectionTextStyle{Bold: true},
				),
			),
		),
	}
}
