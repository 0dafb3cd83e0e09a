package ingest

import (
	"bytes"
	"fmt"
	"html"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

// SendReport mails the run log to the configured recipients, with a plain
// and an HTML rendering. It is a no-op when no destination is configured.
// The run's data effects are already committed by the time this is called,
// so a send failure is reported to the caller but treated as non-fatal.
func SendReport(cfg Config, logText string) error {
	if cfg.SMTPAddr == "" || len(cfg.MailTo) == 0 {
		return nil
	}

	body, contentType, err := buildReportBody(logText)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.MailFrom)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.MailTo, ", "))
	fmt.Fprintf(&msg, "Subject: Catalog retrieval\r\n")
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n\r\n", contentType)
	msg.Write(body)

	if err := smtp.SendMail(cfg.SMTPAddr, nil, cfg.MailFrom, cfg.MailTo, msg.Bytes()); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

func buildReportBody(logText string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	plain := "BOOKDEX\n\nHere is the log from your catalog retrieval:\n\n" + logText
	pw, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, "", err
	}
	fmt.Fprint(pw, plain)

	hw, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, "", err
	}
	fmt.Fprintf(hw, `<h1>Bookdex</h1>
<p>Here is the log from your catalog retrieval:</p>
<pre>%s</pre>`, html.EscapeString(logText))

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/alternative; boundary=" + w.Boundary(), nil
}
