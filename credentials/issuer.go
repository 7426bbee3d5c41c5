package credentials

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/mailer"
	"eventapi/models"
	"eventapi/storage"
)

// ErrNotIssuable means retrying will not help: the participant is gone,
// was never accepted, or its event no longer exists.
var ErrNotIssuable = errors.New("participant is not eligible for a pass")

const passFolder = "passes"

var acceptedMail = template.Must(template.New("accepted").Parse(`<p>Dear {{.Name}},</p>
<p>Your registration for <strong>{{.Event}}</strong> at {{.Venue}} has been accepted.</p>
<p>Your event pass is attached. Please bring it, printed or on your phone, on the day of the event.</p>
<p>{{.Org}}</p>`))

type Issuer struct {
	participants models.ParticipantRepository
	mail         mailer.Mailer
	archive      storage.Store
	orgName      string

	render func(PassData) ([]byte, error)
	now    func() time.Time
}

// NewIssuer builds an Issuer. archive may be nil to skip archiving passes.
func NewIssuer(participants models.ParticipantRepository, mail mailer.Mailer, archive storage.Store, orgName string) *Issuer {
	return &Issuer{
		participants: participants,
		mail:         mail,
		archive:      archive,
		orgName:      orgName,
		render:       RenderPass,
		now:          time.Now,
	}
}

// Issue renders and emails the pass for participant id. A pass that is
// already issued is returned unchanged.
func (i *Issuer) Issue(ctx context.Context, id primitive.ObjectID) (models.Pass, error) {
	v, err := i.participants.GetView(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.Pass{}, fmt.Errorf("%w: participant %s not found", ErrNotIssuable, id.Hex())
	}
	if err != nil {
		return models.Pass{}, err
	}
	if v.Pass.State == models.PassIssued {
		return v.Pass, nil
	}
	if v.Status != models.StatusAccept {
		return models.Pass{}, fmt.Errorf("%w: status is %s", ErrNotIssuable, v.Status)
	}
	if v.Event == nil {
		return models.Pass{}, fmt.Errorf("%w: event %s not found", ErrNotIssuable, v.EventID.Hex())
	}

	qr, err := EncodeQR(id.Hex())
	if err != nil {
		return models.Pass{}, err
	}
	pdf, err := i.render(PassData{
		OrgName:     i.orgName,
		EventName:   v.Event.Name,
		Venue:       v.Event.Venue,
		EventDate:   v.Event.EventDate,
		FullName:    v.FullName(),
		Contact:     v.Contact,
		Email:       v.Email,
		Address:     v.Address,
		QR:          qr,
		ReferenceID: id.Hex(),
	})
	if err != nil {
		return models.Pass{}, err
	}

	var body strings.Builder
	if err := acceptedMail.Execute(&body, map[string]string{
		"Name": v.FullName(), "Event": v.Event.Name, "Venue": v.Event.Venue, "Org": i.orgName,
	}); err != nil {
		return models.Pass{}, err
	}
	err = i.mail.Send(ctx, mailer.Message{
		To:      v.Email,
		Subject: "Registration accepted: " + v.Event.Name,
		HTML:    body.String(),
		Attachments: []mailer.Attachment{{
			Filename:    "event-pass-" + id.Hex() + ".pdf",
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	})
	if err != nil {
		return models.Pass{}, err
	}

	// archive only after delivery; a retry reuses an existing object
	pass := v.Pass
	if i.archive != nil && pass.ObjectKey == "" {
		obj, err := i.archive.Upload(ctx, pdf, passFolder, "application/pdf")
		if err != nil {
			slog.Warn("credentials: archiving pass failed", "participant", id.Hex(), "error", err)
		} else {
			pass.ObjectKey = obj.PublicID
		}
	}

	issued := i.now().UTC()
	pass.State = models.PassIssued
	pass.IssuedAt = &issued
	pass.LastError = ""
	return pass, nil
}
