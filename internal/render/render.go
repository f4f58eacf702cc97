// Package render turns a list of calendar events into a self-contained HTML
// summary document. A generative backend writes the body when available;
// otherwise a deterministic template takes over. Rendering never fails.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// Generator produces the summary body from a structured prompt. It is
// best-effort; any failure routes to the fallback template.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Renderer builds summary documents.
type Renderer struct {
	gen Generator // nil disables generative summaries
	log *zap.Logger
}

// New creates a Renderer. gen may be nil.
func New(gen Generator, log *zap.Logger) *Renderer {
	return &Renderer{gen: gen, log: log}
}

// Render produces the full HTML document for the given events. now anchors
// the header date; the same inputs always produce the same fallback output.
func (r *Renderer) Render(ctx context.Context, events []domain.Event, displayName string, windowDays int, now time.Time) string {
	if len(events) == 0 {
		return shell(now, emptyBody(windowDays))
	}

	if r.gen != nil {
		body, err := r.gen.Generate(ctx, buildPrompt(events, displayName, windowDays))
		if err == nil && strings.TrimSpace(body) != "" {
			return shell(now, body)
		}
		r.log.Warn("generative summary unavailable, using fallback", zap.Error(err))
	}

	return shell(now, fallbackBody(events, displayName))
}

// buildPrompt lays out the events for the generative backend. Dates and
// times are pre-formatted so the model never sees raw ISO timestamps.
func buildPrompt(events []domain.Event, displayName string, windowDays int) string {
	var sb strings.Builder
	for i, ev := range events {
		raw := ev.Start.Raw()
		desc := ev.Description
		if desc == "" {
			desc = "No description"
		}
		loc := ev.Location
		if loc == "" {
			loc = "No location"
		}
		fmt.Fprintf(&sb, `
Event %d:
- Title: %s
- Date: %s
- Time: %s
- Location: %s
- Description: %s
`, i+1, ev.Title(), domain.FormatDateFriendly(raw), domain.FormatTime12h(raw), loc, desc)
	}

	return fmt.Sprintf(`You are a professional executive assistant. Create a concise, well-formatted calendar summary email.

User Name: %s
Number of Events: %d
Window: next %d day(s)

Events:
%s
Create a professional HTML email body that:
1. Starts with a brief, professional greeting
2. Provides a quick overview
3. Lists each event clearly with DATE, TIME (12-hour format), title, and location
4. Groups events by date when they span multiple days
5. Ends with a professional closing

Return ONLY the email body HTML (no <html>, <head>, or <body> tags). Maximum 300 words.`,
		displayName, len(events), windowDays, sb.String())
}

// emptyBody is the fixed no-events variant, parameterized by the window.
func emptyBody(windowDays int) string {
	return fmt.Sprintf(`
        <div style="text-align: center; padding: 40px 20px;">
            <h2 style="color: #1f2937; margin-bottom: 10px;">No Events Scheduled</h2>
            <p style="color: #6b7280; font-size: 16px;">Nothing on your calendar for the next %d days. Enjoy your free time!</p>
        </div>`, windowDays)
}

// fallbackBody lists every event with a combined date+time label and
// location. Byte-stable for a fixed event list.
func fallbackBody(events []domain.Event, displayName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `
        <h2 style="color: #1f2937; margin-bottom: 10px;">Good Morning, %s!</h2>
        <p style="color: #4b5563; font-size: 16px; margin-bottom: 30px;">
            You have <strong>%d event(s)</strong> scheduled.
        </p>
        <div style="background: #f9fafb; padding: 20px; border-radius: 8px; border-left: 4px solid #3b82f6;">`,
		displayName, len(events))

	for _, ev := range events {
		label := domain.FormatDateTimeFull(ev.Start.Raw())
		fmt.Fprintf(&sb, `
            <div style="margin-bottom: 20px; padding-bottom: 20px; border-bottom: 1px solid #e5e7eb;">
                <div style="margin-bottom: 8px;">
                    <span style="background: #3b82f6; color: white; padding: 6px 14px; border-radius: 6px; font-size: 13px; font-weight: 600; display: inline-block;">%s</span>
                </div>
                <div style="margin-left: 4px;">
                    <span style="color: #1f2937; font-size: 16px; font-weight: 600;">%s</span>`,
			label, ev.Title())
		if ev.Location != "" {
			fmt.Fprintf(&sb, `
                    <div style="color: #6b7280; font-size: 14px; margin-top: 5px;">%s</div>`, ev.Location)
		}
		sb.WriteString(`
                </div>
            </div>`)
	}
	sb.WriteString(`
        </div>`)
	return sb.String()
}

// shell wraps any body variant in the shared outer document so output shape
// is stable regardless of which path produced the content.
func shell(now time.Time, body string) string {
	currentDate := now.Format("Monday, January 2, 2006")
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f3f4f6;">
    <table width="100%%" cellpadding="0" cellspacing="0" style="background-color: #f3f4f6; padding: 40px 0;">
        <tr>
            <td align="center">
                <table width="600" cellpadding="0" cellspacing="0" style="background-color: #ffffff; border-radius: 12px; overflow: hidden;">
                    <tr>
                        <td style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; text-align: center;">
                            <h1 style="color: #ffffff; margin: 0; font-size: 28px; font-weight: 700;">Daily Calendar Summary</h1>
                            <p style="color: #e0e7ff; margin: 10px 0 0 0; font-size: 14px;">%s</p>
                        </td>
                    </tr>
                    <tr>
                        <td style="padding: 40px 30px;">%s</td>
                    </tr>
                    <tr>
                        <td style="background-color: #f9fafb; padding: 30px; text-align: center; border-top: 1px solid #e5e7eb;">
                            <p style="color: #6b7280; font-size: 14px; margin: 0 0 10px 0;">Have a productive day!</p>
                            <p style="color: #9ca3af; font-size: 12px; margin: 0;">This is an automated email from your calendar assistant.</p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`, currentDate, body)
}
