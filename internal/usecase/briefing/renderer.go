// Package briefing runs the daily briefing pipeline on top of the schedule
// and notify packages: the per-tick Job that finds and enqueues due users,
// and the queue Consumer that renders and delivers each briefing.
package briefing

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"daily-briefing/internal/domain/entity"
)

// Renderer turns a queued delivery into channel-ready content.
type Renderer struct {
	// AppURL, if set, is linked from the footer for managing preferences.
	AppURL string
}

var briefingHTML = template.Must(template.New("briefing").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="margin:0;padding:0;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background:#f1f5f9;">
<div style="max-width:600px;margin:0 auto;padding:20px;">
<h1 style="font-size:24px;color:#1e293b;">{{.Greeting}}</h1>
<p style="font-size:16px;color:#334155;">Here's your schedule for {{.Date}}</p>
<p style="font-size:16px;color:#166534;">No events scheduled for today!</p>
{{- if .AppURL}}
<p style="font-size:12px;color:#64748b;"><a href="{{.AppURL}}/settings">Manage preferences</a></p>
{{- end}}
</div>
</body>
</html>`))

// Render builds the briefing for d. Date is formatted like "Sunday, March 10".
func (r Renderer) Render(d entity.EligibleDelivery) (entity.Content, error) {
	day, err := time.Parse(entity.DateLayout, d.Date)
	if err != nil {
		return entity.Content{}, fmt.Errorf("render briefing for user %s: %w", d.UserID, err)
	}
	date := day.Format("Monday, January 2")
	greeting := "Good morning!"
	subject := "Your Schedule for " + date

	var html bytes.Buffer
	if err := briefingHTML.Execute(&html, struct {
		Subject, Greeting, Date, AppURL string
	}{subject, greeting, date, strings.TrimRight(r.AppURL, "/")}); err != nil {
		return entity.Content{}, fmt.Errorf("render briefing for user %s: %w", d.UserID, err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\nHere's your schedule for %s\n\nNo events scheduled for today!\n", greeting, date)
	if r.AppURL != "" {
		fmt.Fprintf(&text, "\nManage preferences: %s/settings\n", strings.TrimRight(r.AppURL, "/"))
	}

	return entity.Content{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}
