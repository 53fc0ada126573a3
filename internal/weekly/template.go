package weekly

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// ReportData feeds the weekly report email. Values and Mission come from the
// profile store and are used only for template substitution.
type ReportData struct {
	Name            string
	WeekStart       time.Time
	JournalCount    int
	MeditationCount int
	Values          []string
	Mission         string
}

// ReminderData feeds the weekly reminder email.
type ReminderData struct {
	Name          string
	JournalCount  int
	Needed        int
	Deadline      time.Time
	TimeRemaining string
}

var reportHTML = htmltemplate.Must(htmltemplate.New("report").Parse(`<h1>Your week in review</h1>
<p>Hi {{.Name}},</p>
<p>In the week of {{.WeekStart.Format "Jan 2"}} you wrote {{.JournalCount}} journal
entries and completed {{.MeditationCount}} meditations.</p>
{{if .Mission}}<p>Your mission: <em>{{.Mission}}</em></p>{{end}}
{{if .Values}}<p>Values you are living by: {{range $i, $v := .Values}}{{if $i}}, {{end}}{{$v}}{{end}}.</p>{{end}}
<p>Your weekly meditation is unlocked. Take a moment for yourself.</p>`))

var reportText = texttemplate.Must(texttemplate.New("report").Parse(`Hi {{.Name}},

In the week of {{.WeekStart.Format "Jan 2"}} you wrote {{.JournalCount}} journal entries and completed {{.MeditationCount}} meditations.
{{if .Mission}}
Your mission: {{.Mission}}
{{end}}
Your weekly meditation is unlocked. Take a moment for yourself.`))

var reminderHTML = htmltemplate.Must(htmltemplate.New("reminder").Parse(`<h1>Your weekly report is within reach</h1>
<p>Hi {{.Name}},</p>
<p>You have {{.JournalCount}} of {{.Needed}} journal entries this week.
{{.TimeRemaining}} left until {{.Deadline.Format "Monday Jan 2, 15:04"}} to unlock
your weekly report and meditation.</p>`))

var reminderText = texttemplate.Must(texttemplate.New("reminder").Parse(`Hi {{.Name}},

You have {{.JournalCount}} of {{.Needed}} journal entries this week. {{.TimeRemaining}} left until {{.Deadline.Format "Monday Jan 2, 15:04"}} to unlock your weekly report and meditation.`))

// RenderReport produces the subject, HTML and text bodies, and the markdown
// record persisted with the WeeklyReport row.
func RenderReport(d ReportData) (subject, html, text, markdown string, err error) {
	subject = fmt.Sprintf("Your week of %s in review", d.WeekStart.Format("Jan 2"))

	var hb bytes.Buffer
	if err = reportHTML.Execute(&hb, d); err != nil {
		return "", "", "", "", err
	}
	var tb bytes.Buffer
	if err = reportText.Execute(&tb, d); err != nil {
		return "", "", "", "", err
	}

	var mb strings.Builder
	fmt.Fprintf(&mb, "# Week of %s\n\n", d.WeekStart.Format("2006-01-02"))
	fmt.Fprintf(&mb, "- Journal entries: %d\n", d.JournalCount)
	fmt.Fprintf(&mb, "- Meditations: %d\n", d.MeditationCount)
	if d.Mission != "" {
		fmt.Fprintf(&mb, "\nMission: %s\n", d.Mission)
	}
	if len(d.Values) > 0 {
		fmt.Fprintf(&mb, "Values: %s\n", strings.Join(d.Values, ", "))
	}

	return subject, hb.String(), tb.String(), mb.String(), nil
}

// RenderReminder produces the subject and bodies for the weekly reminder.
func RenderReminder(d ReminderData) (subject, html, text string, err error) {
	subject = "Your weekly report is within reach"

	var hb bytes.Buffer
	if err = reminderHTML.Execute(&hb, d); err != nil {
		return "", "", "", err
	}
	var tb bytes.Buffer
	if err = reminderText.Execute(&tb, d); err != nil {
		return "", "", "", err
	}
	return subject, hb.String(), tb.String(), nil
}

// formatRemaining renders a coarse "time remaining" phrase for reminder copy.
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "No time"
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
