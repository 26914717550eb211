package provider

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"time"

	"mailer/pkg/models"
)

// composeMessage renders msg as an RFC 5322 message. Text and HTML bodies
// together become multipart/alternative; a single body is sent as is.
func composeMessage(msg *models.Message, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", encodeAddress(msg.From))
	writeHeader(&buf, "To", encodeAddress(msg.To))
	if msg.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", encodeAddress(msg.ReplyTo))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")

	switch {
	case msg.Text != "" && msg.HTML != "":
		mw := multipart.NewWriter(&buf)
		writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
		buf.WriteString("\r\n")
		if err := writePart(mw, "text/plain", msg.Text); err != nil {
			return nil, err
		}
		if err := writePart(mw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
	case msg.HTML != "":
		if err := writeSingle(&buf, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	default:
		if err := writeSingle(&buf, "text/plain", msg.Text); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func encodeAddress(s string) string {
	a := models.ParseAddress(s)
	if a.Name == "" {
		return a.Address
	}
	return mime.QEncoding.Encode("utf-8", a.Name) + " <" + a.Address + ">"
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", contentType+"; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	return writeQuoted(w, body)
}

func writeSingle(buf *bytes.Buffer, contentType, body string) error {
	writeHeader(buf, "Content-Type", contentType+"; charset=utf-8")
	writeHeader(buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")
	return writeQuoted(buf, body)
}

func writeQuoted(w io.Writer, body string) error {
	qw := quotedprintable.NewWriter(w)
	if _, err := qw.Write([]byte(body)); err != nil {
		return err
	}
	return qw.Close()
}
