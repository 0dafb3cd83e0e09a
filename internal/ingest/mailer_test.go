package ingest

import (
	"strings"
	"testing"
)

func TestSendReportSkippedWithoutDestination(t *testing.T) {
	// no SMTP address, no recipients: must be a silent no-op
	if err := SendReport(Config{}, "log text"); err != nil {
		t.Errorf("SendReport without destination = %v, want nil", err)
	}
	if err := SendReport(Config{SMTPAddr: "localhost:25"}, "log text"); err != nil {
		t.Errorf("SendReport without recipients = %v, want nil", err)
	}
}

func TestBuildReportBody(t *testing.T) {
	body, contentType, err := buildReportBody("line one\nline <two>")
	if err != nil {
		t.Fatalf("buildReportBody: %v", err)
	}

	if !strings.HasPrefix(contentType, "multipart/alternative; boundary=") {
		t.Errorf("content type = %q", contentType)
	}

	s := string(body)
	if !strings.Contains(s, "text/plain") || !strings.Contains(s, "text/html") {
		t.Errorf("missing renderings in body:\n%s", s)
	}
	if !strings.Contains(s, "line one\nline <two>") {
		t.Error("plain part should carry the raw log")
	}
	if !strings.Contains(s, "line &lt;two&gt;") {
		t.Error("html part should escape the log")
	}
}
