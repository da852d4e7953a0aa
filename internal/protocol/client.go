package protocol

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// Response is a response as seen by a client.
type Response struct {
	Status        string
	Header        textproto.MIMEHeader
	ContentLength int
	Body          string
}

// FormatTarget builds a request target for the given transaction.
// The trade parameter is omitted when trade is negative.
func FormatTarget(trans, name string, trade int64) string {
	v := "/?trans=" + url.QueryEscape(trans)
	if name != "" {
		v += "&name=" + url.QueryEscape(name)
	}
	if trade >= 0 {
		v += "&trade=" + strconv.FormatInt(trade, 10)
	}
	return v
}

// WriteRequest writes a GET request for target. A target without a leading
// slash gets one.
func WriteRequest(w io.Writer, target, host string) error {
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	_, err := fmt.Fprintf(w, "GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", target, host)
	return err
}

// ReadResponse reads a full response. The body runs to EOF since the server
// always closes the connection; ErrContentLength is returned alongside the
// response when the body length disagrees with Content-Length.
func ReadResponse(r *bufio.Reader) (Response, error) {
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		return Response{}, fmt.Errorf("read status line: %w", err)
	}
	if line != statusLine {
		return Response{Status: line}, fmt.Errorf("%w: %q", ErrUnexpectedStatus, line)
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return Response{Status: line}, fmt.Errorf("read headers: %w", err)
	}

	resp := Response{Status: line, Header: header, ContentLength: -1}
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return resp, fmt.Errorf("%w: bad Content-Length %q", ErrContentLength, cl)
		}
		resp.ContentLength = n
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return resp, fmt.Errorf("read body: %w", err)
	}
	resp.Body = string(body)
	if resp.ContentLength != len(body) {
		return resp, fmt.Errorf("%w: header says %d, got %d", ErrContentLength, resp.ContentLength, len(body))
	}
	return resp, nil
}
