package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/gamefolio/backend/internal/config"
)

// Brand carries the tokens shared by every template.
type Brand struct {
	SiteName       string
	SupportEmail   string
	CompanyAddress string
	LogoURL        string
	PrimaryColor   string
	Background     string
}

// DefaultBrand returns Gamefolio's branding with overrides from cfg.
func DefaultBrand(cfg config.MailConfig) Brand {
	b := Brand{
		SiteName:       "Gamefolio",
		SupportEmail:   "support@gamefolio.com",
		CompanyAddress: "Gaming Street 123, Esports City",
		PrimaryColor:   "#9FE64F",
		Background:     "#0B1220",
	}
	if cfg.SupportEmail != "" {
		b.SupportEmail = cfg.SupportEmail
	}
	b.LogoURL = cfg.LogoURL
	return b
}

type templateData struct {
	Brand
	Heading    string
	Intro      string
	Warning    string
	ButtonText string
	Link       string
	Note       string
}

const htmlLayout = `<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:{{.Background}};font-family:Arial,Helvetica,sans-serif;color:#E5E7EB;">
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
    <tr><td align="center" style="padding:32px 16px;">
      <table role="presentation" width="560" cellpadding="0" cellspacing="0" style="background:#111827;border-radius:12px;padding:32px;">
        <tr><td align="center">
          {{if .LogoURL}}<img src="{{.LogoURL}}" alt="{{.SiteName}}" height="48">{{else}}<h2 style="color:{{.PrimaryColor}};margin:0;">{{.SiteName}}</h2>{{end}}
        </td></tr>
        <tr><td>
          <h1 style="font-size:22px;color:#FFFFFF;">{{.Heading}}</h1>
          <p style="line-height:1.5;">{{.Intro}}</p>
          {{if .Warning}}<p style="line-height:1.5;"><strong>Important:</strong> {{.Warning}}</p>{{end}}
          <p style="text-align:center;margin:32px 0;">
            <a href="{{.Link}}" style="background:{{.PrimaryColor}};color:#0B1220;padding:12px 24px;border-radius:8px;text-decoration:none;font-weight:bold;">{{.ButtonText}}</a>
          </p>
          <p style="font-size:13px;color:#9CA3AF;">{{.Note}}</p>
          <p style="font-size:13px;color:#9CA3AF;">Button not working? Paste this link into your browser:<br><a href="{{.Link}}" style="color:{{.PrimaryColor}};">{{.Link}}</a></p>
        </td></tr>
        <tr><td style="border-top:1px solid #1F2937;padding-top:16px;font-size:12px;color:#6B7280;text-align:center;">
          Questions? Contact <a href="mailto:{{.SupportEmail}}" style="color:{{.PrimaryColor}};">{{.SupportEmail}}</a><br>
          {{.SiteName}} &middot; {{.CompanyAddress}}
        </td></tr>
      </table>
    </td></tr>
  </table>
</body>
</html>`

const textLayout = `{{.Heading}}

{{.Intro}}
{{if .Warning}}
Important: {{.Warning}}
{{end}}
{{.ButtonText}}: {{.Link}}

{{.Note}}

Questions? Contact {{.SupportEmail}}
{{.SiteName}}, {{.CompanyAddress}}
`

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.New("email.html").Parse(htmlLayout))
	textTmpl = texttemplate.Must(texttemplate.New("email.txt").Parse(textLayout))
)

// Mailer renders account emails and hands them to a Sender.
type Mailer struct {
	Sender Sender
	Brand  Brand
}

// SendConfirmation delivers the email verification link.
func (m *Mailer) SendConfirmation(ctx context.Context, email, link string) error {
	return m.send(ctx, email, "Welcome to "+m.Brand.SiteName+" - Please Verify Your Email", templateData{
		Brand:      m.Brand,
		Heading:    "Verify your email address",
		Intro:      "To start sharing your gaming moments, please verify your email address by clicking the button below.",
		Warning:    "You won't be able to upload clips or interact with other users until your email is verified.",
		ButtonText: "Verify Email Address",
		Link:       link,
		Note:       "This link will expire in 24 hours. If you did not create this account, please ignore this email.",
	})
}

// SendPasswordReset delivers the password reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, email, link string) error {
	return m.send(ctx, email, "Reset your "+m.Brand.SiteName+" password", templateData{
		Brand:      m.Brand,
		Heading:    "Reset your password",
		Intro:      "We received a request to reset the password of your account. Choose a new one with the button below.",
		ButtonText: "Reset Password",
		Link:       link,
		Note:       "This link expires soon and can be used once. If you did not request a reset, you can ignore this email.",
	})
}

func (m *Mailer) send(ctx context.Context, to, subject string, data templateData) error {
	msg, err := render(to, subject, data)
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, msg)
}

func render(to, subject string, data templateData) (Message, error) {
	var html, text bytes.Buffer
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html email: %w", err)
	}
	if err := textTmpl.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text email: %w", err)
	}
	return Message{
		To:      strings.TrimSpace(to),
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
