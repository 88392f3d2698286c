package httpclient

import (
	"bytes"
	"encoding/base64"
	"io"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/idna"

	"github.com/die-net/streamkit/internal/ioerr"
)

const (
	DefaultUserAgent   = "streamkit/1.0"
	DefaultContentType = "application/x-www-form-urlencoded; charset=UTF-8"
)

type Request struct {
	// Method defaults to GET.
	Method string
	URL    *url.URL
	// Proto is "1.0" or "1.1". Empty means "1.1".
	Proto  string
	Header Header

	// Body is sent when the request declares a Content-Length, or when it
	// has a Len method from which one can be derived. It takes precedence
	// over a BodyWriter observer.
	Body io.Reader

	// RemoteAddress, as host:port, overrides the host and port taken from
	// URL when connecting. The Host header still follows URL.
	RemoteAddress string
}

// NewRequest parses rawURL and returns a request with an empty header.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "parse url", Err: err}
	}
	return &Request{Method: method, URL: u, Header: Header{}}, nil
}

func (r *Request) method() string {
	if r.Method == "" {
		return "GET"
	}
	return r.Method
}

func (r *Request) proto() string {
	if r.Proto == "" {
		return "1.1"
	}
	return r.Proto
}

func (r *Request) clone() *Request {
	r2 := *r
	u := *r.URL
	r2.URL = &u
	r2.Header = r.Header.Clone()
	return &r2
}

func defaultPort(scheme string) uint16 {
	if scheme == "https" {
		return 443
	}
	return 80
}

// asciiHost returns the URL host in the form used on the wire.
func asciiHost(u *url.URL) (string, error) {
	host := u.Hostname()
	if host == "" {
		return "", &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "url has no host"}
	}
	if isASCII(host) {
		return strings.ToLower(host), nil
	}
	a, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", &ioerr.Error{Kind: ioerr.InvalidArgument, Host: host, Detail: "host name", Err: err}
	}
	return a, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil || p == 0 {
		return 0, &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "bad port " + strconv.Quote(s)}
	}
	return uint16(p), nil
}

// target returns the host and port to connect to.
func (r *Request) target() (string, uint16, error) {
	if r.RemoteAddress != "" {
		host, p, err := net.SplitHostPort(r.RemoteAddress)
		if err != nil {
			return "", 0, &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "remote address", Err: err}
		}
		port, err := parsePort(p)
		if err != nil {
			return "", 0, err
		}
		return host, port, nil
	}

	host, err := asciiHost(r.URL)
	if err != nil {
		return "", 0, err
	}
	port := defaultPort(r.URL.Scheme)
	if p := r.URL.Port(); p != "" {
		if port, err = parsePort(p); err != nil {
			return "", 0, err
		}
	}
	return host, port, nil
}

func (r *Request) hostHeader() (string, error) {
	host, err := asciiHost(r.URL)
	if err != nil {
		return "", err
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if p := r.URL.Port(); p != "" && p != strconv.Itoa(int(defaultPort(r.URL.Scheme))) {
		host += ":" + p
	}
	return host, nil
}

type lener interface {
	Len() int
}

// serialize renders the request line and header block. contentLength is -1
// when the request declares no body.
func (r *Request) serialize(userAgent string) (wire []byte, contentLength int64, err error) {
	method := r.method()
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, 0, &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "method " + strconv.Quote(method)}
	}
	proto := r.proto()
	if proto != "1.0" && proto != "1.1" {
		return nil, 0, &ioerr.Error{Kind: ioerr.UnsupportedVersion, Detail: "HTTP/" + proto}
	}

	h := r.Header.Clone()
	host, ok := h.Lookup("Host")
	if ok {
		h.Del("Host")
	} else if host, err = r.hostHeader(); err != nil {
		return nil, 0, err
	}

	if u := r.URL.User; u != nil && !h.Has("Authorization") {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		h["Authorization"] = "Basic " + cred
	}
	if !h.Has("User-Agent") {
		if userAgent == "" {
			userAgent = DefaultUserAgent
		}
		h["User-Agent"] = userAgent
	}
	if proto == "1.0" && !h.Has("Connection") {
		h["Connection"] = "keep-alive"
	}

	contentLength = -1
	if v, ok := h.Lookup("Content-Length"); ok {
		contentLength, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || contentLength < 0 {
			return nil, 0, &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "Content-Length " + strconv.Quote(v)}
		}
	} else if r.Body != nil {
		l, ok := r.Body.(lener)
		if !ok {
			return nil, 0, &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "body of unknown length needs a Content-Length header"}
		}
		contentLength = int64(l.Len())
		h["Content-Length"] = strconv.FormatInt(contentLength, 10)
	}
	if contentLength >= 0 && !h.Has("Content-Type") {
		h["Content-Type"] = DefaultContentType
	}

	var b bytes.Buffer
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(r.URL.RequestURI())
	b.WriteString(" HTTP/")
	b.WriteString(proto)
	b.WriteString("\r\n")

	writeField := func(k, v string) error {
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			return &ioerr.Error{Kind: ioerr.InvalidArgument, Detail: "header field " + strconv.Quote(k)}
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
		return nil
	}
	if err := writeField("Host", host); err != nil {
		return nil, 0, err
	}
	for _, k := range slices.Sorted(maps.Keys(h)) {
		if err := writeField(k, h[k]); err != nil {
			return nil, 0, err
		}
	}
	b.WriteString("\r\n")
	return b.Bytes(), contentLength, nil
}
