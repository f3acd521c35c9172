package Slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"Workbench/Models"
	"Workbench/Tasks"
)

// maxListedTasks caps how many carried tasks one message names.
const maxListedTasks = 15

// Notifier posts carry-forward run summaries to a Slack channel.
type Notifier struct {
	client  *slack.Client
	channel string
}

// NewNotifier returns nil when token or channel is empty so callers can
// treat Slack as optional.
func NewNotifier(token, channel string, options ...slack.Option) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	return &Notifier{client: slack.New(token, options...), channel: channel}
}

// NotifyCarryForward posts the outcome of one run. Quiet runs, with
// nothing carried and nothing failed, are not posted.
func (n *Notifier) NotifyCarryForward(ctx context.Context, trigger Models.RunTrigger, summary *Tasks.Summary, runErr error) error {
	if runErr == nil && (summary == nil || (summary.CarriedForward == 0 && len(summary.Failures) == 0)) {
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(CarryForwardMessage(trigger, summary, runErr, time.Now()), false),
	)
	if err != nil {
		return fmt.Errorf("posting carry-forward summary to slack: %w", err)
	}
	return nil
}

// CarryForwardMessage renders a run summary as Slack markdown.
func CarryForwardMessage(trigger Models.RunTrigger, summary *Tasks.Summary, runErr error, at time.Time) string {
	var message strings.Builder

	message.WriteString(fmt.Sprintf("*CARRY FORWARD (%s)*\n", trigger))
	message.WriteString(fmt.Sprintf("_Ran at: %s_\n\n", at.Format("January 2, 2006 - 15:04:05 MST")))

	if summary == nil {
		message.WriteString(fmt.Sprintf(":red_circle: Run failed: %v\n", runErr))
		return message.String()
	}

	message.WriteString(fmt.Sprintf(":white_check_mark: Carried forward: %d\n", summary.CarriedForward))
	if summary.Skipped > 0 {
		message.WriteString(fmt.Sprintf(":fast_forward: Skipped: %d\n", summary.Skipped))
	}
	if len(summary.Failures) > 0 {
		message.WriteString(fmt.Sprintf(":warning: Failed: %d\n", len(summary.Failures)))
	}

	if len(summary.Tasks) > 0 {
		message.WriteString("\n")
		for i, task := range summary.Tasks {
			if i == maxListedTasks {
				message.WriteString(fmt.Sprintf("...and %d more\n", len(summary.Tasks)-maxListedTasks))
				break
			}
			project, assignee := "-", "Unassigned"
			if task.Project != nil {
				project = task.Project.Name
			}
			if task.AssignedTo != nil {
				assignee = task.AssignedTo.Name
			}
			message.WriteString(fmt.Sprintf("• *%s* (%s) - %s, due %s\n",
				task.Title, project, assignee, task.OriginalEndTime.Format("Jan 2 15:04")))
		}
	}

	if len(summary.Failures) > 0 {
		message.WriteString("\n*Failures*\n")
		for _, failure := range summary.Failures {
			message.WriteString(fmt.Sprintf("• %s: %s\n", failure.Title, failure.Error))
		}
	}
	return message.String()
}
