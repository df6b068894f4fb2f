package parser

import (
	"strings"
	"testing"
)

func TestSummarize_PlainText(t *testing.T) {
	raw := strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: bob@example.com",
		"Subject: Hello World",
		"Message-Id: <abc123@example.com>",
		"",
		"This is the body.",
	}, "\n")

	s, err := Summarize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Subject != "Hello World" {
		t.Errorf("Subject: got %q, want %q", s.Subject, "Hello World")
	}
	if s.From != "alice@example.com" {
		t.Errorf("From: got %q, want %q", s.From, "alice@example.com")
	}
	if s.MessageID != "<abc123@example.com>" {
		t.Errorf("MessageID: got %q, want %q", s.MessageID, "<abc123@example.com>")
	}
	if s.ContentType != "text/plain" {
		t.Errorf("ContentType: got %q, want %q", s.ContentType, "text/plain")
	}
	if s.TextBody != "This is the body." {
		t.Errorf("TextBody: got %q, want %q", s.TextBody, "This is the body.")
	}
}

func TestSummarize_CRLF(t *testing.T) {
	raw := "Subject: crlf\r\nFrom: a@x.com\r\n\r\nbody\r\n"

	s, err := Summarize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Subject != "crlf" {
		t.Errorf("Subject: got %q, want %q", s.Subject, "crlf")
	}
	if s.TextBody != "body\r\n" {
		t.Errorf("TextBody: got %q", s.TextBody)
	}
}

func TestSummarize_EncodedSubject(t *testing.T) {
	raw := "Subject: =?UTF-8?B?SGVsbG8g8J+Riw==?=\n\nx"

	s, err := Summarize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Subject != "Hello 👋" {
		t.Errorf("Subject: got %q, want %q", s.Subject, "Hello 👋")
	}
}

func TestSummarize_NoHeaders(t *testing.T) {
	if _, err := Summarize("hello\nworld"); err == nil {
		t.Error("expected error for a body without headers")
	}
}

func TestSummarize_UnparseableFrom(t *testing.T) {
	s, err := Summarize("From: not an address <<\n\nx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.From != "not an address <<" {
		t.Errorf("From: got %q, want raw header", s.From)
	}
}

func TestSummarize_Multipart(t *testing.T) {
	raw := strings.Join([]string{
		"From: sender@example.com",
		"Subject: Multipart",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html",
		"",
		"<p>html</p>",
		"--b1",
		"Content-Type: text/plain",
		"",
		"plain text",
		"--b1--",
		"",
	}, "\r\n")

	s, err := Summarize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ContentType != "multipart/alternative" {
		t.Errorf("ContentType: got %q", s.ContentType)
	}
	if s.TextBody != "plain text" {
		t.Errorf("TextBody: got %q, want %q", s.TextBody, "plain text")
	}
}

func TestSummarize_NestedMultipartBase64(t *testing.T) {
	raw := strings.Join([]string{
		"Subject: Nested",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: base64",
		"",
		"aGVsbG8g",
		"d29ybGQ=",
		"--inner--",
		"--outer",
		"Content-Type: text/plain",
		`Content-Disposition: attachment; filename="notes.txt"`,
		"",
		"attached",
		"--outer--",
		"",
	}, "\r\n")

	s, err := Summarize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TextBody != "hello world" {
		t.Errorf("TextBody: got %q, want %q", s.TextBody, "hello world")
	}
}

func TestSummarize_AttachmentOnly(t *testing.T) {
	raw := strings.Join([]string{
		"Subject: Files",
		`Content-Type: multipart/mixed; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain",
		`Content-Disposition: attachment; filename="a.txt"`,
		"",
		"file content",
		"--b--",
		"",
	}, "\r\n")

	s, err := Summarize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TextBody != "" {
		t.Errorf("TextBody: got %q, want empty", s.TextBody)
	}
	if s.Subject != "Files" {
		t.Errorf("Subject: got %q", s.Subject)
	}
}

func TestSummarize_MultipartMissingBoundary(t *testing.T) {
	raw := "Subject: Broken\nContent-Type: multipart/mixed\n\nbody"

	s, err := Summarize(raw)
	if err == nil {
		t.Fatal("expected error for multipart without boundary")
	}
	if s.Subject != "Broken" {
		t.Errorf("Subject should survive a body error, got %q", s.Subject)
	}
}

func TestSummarize_QuotedPrintable(t *testing.T) {
	raw := "Subject: qp\nContent-Transfer-Encoding: quoted-printable\n\ncaf=C3=A9"

	s, err := Summarize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TextBody != "café" {
		t.Errorf("TextBody: got %q, want %q", s.TextBody, "café")
	}
}

func TestSummarize_HTMLOnly(t *testing.T) {
	s, err := Summarize("Subject: h\nContent-Type: text/html\n\n<b>x</b>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ContentType != "text/html" {
		t.Errorf("ContentType: got %q", s.ContentType)
	}
	if s.TextBody != "" {
		t.Errorf("TextBody: got %q, want empty", s.TextBody)
	}
}
