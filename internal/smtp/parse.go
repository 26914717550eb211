package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"mailer/pkg/models"
)

var wordDecoder = new(mime.WordDecoder)

// parseMessage extracts the content of an RFC 5322 message. Recipients are
// taken from the envelope, not the headers.
func parseMessage(data []byte) (models.Content, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return models.Content{}, err
	}

	var c models.Content
	c.Subject = decodeHeader(msg.Header.Get("Subject"))
	c.From = models.AddressValue(decodeAddress(msg.Header.Get("From")))
	c.ReplyTo = models.AddressValue(decodeAddress(msg.Header.Get("Reply-To")))

	text, html, err := readBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return models.Content{}, err
	}
	c.Text = strings.TrimSpace(text)
	c.HTML = strings.TrimSpace(html)
	return c, nil
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func decodeAddress(v string) string {
	if v == "" {
		return ""
	}
	addr, err := mail.ParseAddress(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	if addr.Name == "" {
		return addr.Address
	}
	return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
}

// readBody walks a (possibly multipart) body and returns its first plain
// text and first HTML part.
func readBody(contentType, encoding string, body io.Reader) (text, html string, err error) {
	mediaType := "text/plain"
	var params map[string]string
	if contentType != "" {
		mediaType, params, err = mime.ParseMediaType(contentType)
		if err != nil {
			return "", "", err
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return text, html, nil
			}
			if err != nil {
				return "", "", err
			}
			t, h, err := readBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", "", err
			}
			if text == "" {
				text = t
			}
			if html == "" {
				html = h
			}
		}
	}

	raw, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return "", "", err
	}
	switch mediaType {
	case "text/html":
		return "", string(raw), nil
	case "text/plain":
		return string(raw), "", nil
	}
	// attachments and other parts are dropped
	return "", "", nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	}
	return r
}
