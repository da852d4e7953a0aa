// Package protocol reads and writes the stock server's HTTP-like wire format.
//
// A request is a single request line, e.g.
//
//	GET /?trans=buy&name=ibm&trade=10 HTTP/1.1
//
// followed by header lines that are read and ignored up to the blank line.
// Every response uses the same 200 status line; outcomes differ only in the
// plain-text body.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
)

// ServerName is sent in the Server header.
const ServerName = "StockServer"

const statusLine = "HTTP/1.1 200 OK"

var (
	ErrMalformedRequest  = errors.New("malformed request line")
	ErrUnexpectedStatus  = errors.New("unexpected status line")
	ErrContentLength     = errors.New("content length mismatch")
	ErrMissingRequestURI = errors.New("missing request target")
)

// Request is a decoded stock request.
type Request struct {
	Method string
	Target string
	Trans  string
	Name   string
	Trade  uint64
}

// ReadRequest reads one request from r: the request line and every header
// line up to and including the blank separator. A connection that closes
// after the request line is still accepted.
func ReadRequest(r *bufio.Reader) (Request, error) {
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		return Request{}, err
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, ErrMalformedRequest
	}
	if len(fields) < 2 {
		return Request{}, ErrMissingRequestURI
	}

	for {
		h, err := tp.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Request{}, err
		}
		if h == "" {
			break
		}
	}

	req := Request{Method: fields[0], Target: fields[1]}
	req.Trans, req.Name, req.Trade = ParseQuery(req.Target)
	return req, nil
}

// ParseQuery extracts trans, name and trade from a request target such as
// "/?trans=create&name=ibm&trade=100". The whole target is decoded first and
// only then split on '?', '&' and '=', so a fully encoded request such as
// "/?trans%3Dcreate%26name%3Dibm" reads the same as its plain form. A
// missing or non-numeric trade is 0.
func ParseQuery(target string) (trans, name string, trade uint64) {
	_, query, ok := strings.Cut(Decode(target), "?")
	if !ok {
		return "", "", 0
	}
	for _, pair := range strings.Split(query, "&") {
		parts := strings.Split(pair, "=")
		v := ""
		if len(parts) > 1 {
			v = strings.TrimSpace(parts[1])
		}
		switch strings.TrimSpace(parts[0]) {
		case "trans":
			trans = v
		case "name":
			name = v
		case "trade":
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				trade = n
			}
		}
	}
	return trans, name, trade
}

// Decode undoes URL encoding: '+' becomes a space and "%XX" the byte it
// names. Escapes that are not two hex digits are kept as-is.
func Decode(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) && ishex(s[i+1]) && ishex(s[i+2]) {
				b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
				i += 2
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func ishex(c byte) bool {
	switch {
	case '0' <= c && c <= '9', 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		return true
	}
	return false
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// WriteResponse writes the fixed 200 response framing around body.
func WriteResponse(w io.Writer, body string) error {
	_, err := fmt.Fprintf(w,
		"%s\r\nServer: %s\r\nContent-Length: %d\r\nConnection: Close\r\nContent-Type: text/plain\r\n\r\n%s",
		statusLine, ServerName, len(body), body)
	return err
}
