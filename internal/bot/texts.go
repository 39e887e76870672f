package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"skeddy/internal/reminder"
	kit "skeddy/internal/transport"
)

// en-US style renderings.
const (
	dueLayout     = "Mon, Jan 2, 2006, 3:04 PM"
	createdLayout = "1/2/2006, 3:04:05 PM"
)

const welcomeText = `🤖 <b>Welcome to Skeddy Bot!</b>

I'm your personal reminder assistant. Here's how to use me:

<b>Set a reminder:</b>
• "remind me grocery tomorrow at 5pm"
• "remind me call mom in 2 hours"
• "remind me meeting on friday at 9am"
• "remind me workout at 6:30pm"

<b>Manage reminders:</b>
• /list - View all your reminders
• /cancel - Cancel a specific reminder
• /help - Show this help message

Just type your reminder naturally, and I'll handle the rest! 🚀`

const helpText = `📚 <b>Skeddy Bot Help</b>

<b>How to set reminders:</b>
Just type naturally what you want to be reminded about!

<b>Examples:</b>
• remind me grocery tomorrow at 5pm
• remind me call John in 30 minutes
• remind me dentist appointment next Monday at 10am
• remind me take medicine at 8pm

<b>Commands:</b>
/list - View all your active reminders
/cancel &lt;id&gt; - Cancel a reminder by ID
/help - Show this help message

<b>Time formats I understand:</b>
• Specific times: "at 5pm", "at 17:00"
• Relative times: "in 2 hours", "in 30 minutes"
• Dates: "tomorrow", "next friday", "on monday"
• Combined: "tomorrow at 3pm", "next week at 9am"

⏰ I'll send you a reminder at the scheduled time!`

const (
	textNoReminders   = "📭 You have no active reminders."
	textNotUnderstood = "❌ I couldn't understand that reminder. Please try again.\n\nExample: \"remind me grocery tomorrow at 5pm\""
	textPast          = "❌ That time is in the past! Please set a future time."
	textFailed        = "❌ Sorry, I encountered an error processing your reminder. Please try again."
	textCancelUsage   = "Usage: /cancel &lt;id&gt;\n\nUse /list to see reminder IDs."
	textUnknown       = "Unknown command. Try /help"
	textBusy          = "⏳ Busy, please try again in a moment."
)

var escape = html.EscapeString

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

func formatCreated(r reminder.Reminder, loc *time.Location) string {
	return fmt.Sprintf("✅ Reminder set!\n\n📌 <b>%s</b>\n⏰ %s\n🆔 ID: %s",
		escape(r.Message), r.DueAt.In(loc).Format(dueLayout), escape(r.ID))
}

func formatList(list []reminder.Reminder, loc *time.Location) string {
	if len(list) == 0 {
		return textNoReminders
	}
	var b strings.Builder
	b.WriteString("📝 <b>Your Reminders:</b>\n\n")
	for i, r := range list {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "🆔 <b>%s</b> | %s\n⏰ %s",
			escape(r.ID), escape(r.Message), r.DueAt.In(loc).Format(dueLayout))
	}
	return b.String()
}

// NotificationFormatter renders the message delivered when a reminder fires.
// loc returns the zone used for the creation date; it is read on every call so
// timezone reloads apply to reminders already queued.
func NotificationFormatter(loc func() *time.Location) func(reminder.Reminder) (string, *kit.SendOptions) {
	return func(r reminder.Reminder) (string, *kit.SendOptions) {
		l := time.Local
		if loc != nil {
			if v := loc(); v != nil {
				l = v
			}
		}
		return fmt.Sprintf("🔔 <b>REMINDER</b>\n\n%s\n\n<i>This reminder was set on %s</i>",
			escape(r.Message), r.CreatedAt.In(l).Format(createdLayout)), htmlOpts
	}
}
