package jobs

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"eventapi/mailer"
	"eventapi/models"
	"eventapi/utils"
)

const reviewTokenTTL = 14 * 24 * time.Hour

var reviewMail = template.Must(template.New("review").Parse(`<p>Dear {{.Name}},</p>
<p>Thank you for joining <strong>{{.Event}}</strong>. We would like to hear how it went.</p>
<p><a href="{{.Link}}">Rate the event</a></p>
<p>{{.Org}}</p>`))

// ReviewReminder emails accepted participants of finished events a link
// to leave feedback, once per event.
type ReviewReminder struct {
	Events       models.EventRepository
	Participants models.ParticipantRepository
	Mail         mailer.Mailer
	Tokens       *utils.TokenIssuer
	BaseURL      string
	OrgName      string
	Now          func() time.Time
}

func (r *ReviewReminder) Run(ctx context.Context) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	events, err := r.Events.ListPastUnnotified(ctx, now().UTC())
	if err != nil {
		return fmt.Errorf("list past events: %w", err)
	}
	for _, ev := range events {
		if err := r.remind(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// remind sends what it can; a failed email is logged and not retried so
// one bad address does not hold the event back.
func (r *ReviewReminder) remind(ctx context.Context, ev models.Event) error {
	log := slog.With("component", "jobs", "job", "review-reminder", "event", ev.ID.Hex())
	accepted, err := r.Participants.ListAcceptedByEvent(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("list participants of %s: %w", ev.ID.Hex(), err)
	}

	sent := 0
	for _, p := range accepted {
		token, err := r.Tokens.GenerateReviewToken(p.ID.Hex(), ev.ID.Hex(), reviewTokenTTL)
		if err != nil {
			return fmt.Errorf("review token: %w", err)
		}
		var body strings.Builder
		if err := reviewMail.Execute(&body, map[string]string{
			"Name":  p.FullName(),
			"Event": ev.Name,
			"Link":  r.link(token),
			"Org":   r.OrgName,
		}); err != nil {
			return err
		}
		if err := r.Mail.Send(ctx, mailer.Message{
			To:      p.Email,
			Subject: "How was " + ev.Name + "?",
			HTML:    body.String(),
		}); err != nil {
			log.Warn("review email failed", "participant", p.ID.Hex(), "error", err)
			continue
		}
		sent++
	}

	if err := r.Events.MarkReviewNotified(ctx, ev.ID); err != nil {
		return fmt.Errorf("mark %s notified: %w", ev.ID.Hex(), err)
	}
	log.Info("review requests sent", "sent", sent, "accepted", len(accepted))
	return nil
}

func (r *ReviewReminder) link(token string) string {
	sep := "?"
	if strings.Contains(r.BaseURL, "?") {
		sep = "&"
	}
	return r.BaseURL + sep + "token=" + url.QueryEscape(token)
}
