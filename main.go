package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/die-net/streamkit/internal/dialer"
	"github.com/die-net/streamkit/internal/httpclient"
	"github.com/die-net/streamkit/internal/runloop"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		method  = pflag.StringP("method", "X", "", "Request method (default GET, or POST when --data is set)")
		headers = pflag.StringArrayP("header", "H", nil, "Extra request header as 'Name: value' (repeatable)")
		data    = pflag.StringP("data", "d", "", "Request body, sent with a Content-Length")
		http10  = pflag.Bool("http10", false, "Send HTTP/1.0 requests")

		redirects         = pflag.Int("redirects", 5, "Maximum number of redirects to follow")
		insecureRedirects = pflag.Bool("insecure-redirects", false, "Allow redirects from https to http")

		upstream     = pflag.String("upstream", defaultUpstream(), "Upstream forwarding target URL: direct:// | socks5://host[:port]")
		tcpNoDelay   = pflag.Bool("tcp-nodelay", true, "Disable Nagle's algorithm on outbound connections")
		tcpKeepAlive = pflag.Bool("tcp-keepalive", false, "Enable TCP keepalive on outbound connections")

		include = pflag.BoolP("include", "i", false, "Print the status line and response headers before the body")
		verbose = pflag.BoolP("verbose", "v", false, "Log connection reuse, redirects and failures")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] URL\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		return errors.New("exactly one URL is required")
	}

	d, err := dialer.New(dialer.Config{KeepAlive: *tcpKeepAlive, NoDelay: *tcpNoDelay}, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	req, err := httpclient.NewRequest(*method, pflag.Arg(0))
	if err != nil {
		return err
	}
	if *http10 {
		req.Proto = "1.0"
	}
	for _, h := range *headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid --header %q: expected 'Name: value'", h)
		}
		req.Header.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	if pflag.CommandLine.Changed("data") {
		req.Body = strings.NewReader(*data)
		if *method == "" {
			req.Method = "POST"
		}
	}

	loop, err := runloop.New()
	if err != nil {
		return err
	}
	defer loop.Close()

	c := httpclient.New(loop)
	c.Dialer = d
	c.InsecureRedirectsAllowed = *insecureRedirects
	c.Verbose = *verbose
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	resp, err := c.Perform(ctx, req, *redirects)
	// Signals interrupt the exchange only; the body copy below dies normally.
	stop()
	if err != nil {
		var rf *httpclient.RequestFailedError
		if *include && errors.As(err, &rf) {
			writeHead(os.Stdout, rf.Response)
		}
		return err
	}
	defer resp.Close()

	if *include {
		writeHead(os.Stdout, resp)
	}
	if _, err := io.Copy(os.Stdout, resp); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return nil
}

func writeHead(w io.Writer, resp *httpclient.Response) {
	fmt.Fprintf(w, "HTTP/%s %d\r\n", resp.Proto, resp.StatusCode)
	for _, k := range slices.Sorted(maps.Keys(resp.Header)) {
		fmt.Fprintf(w, "%s: %s\r\n", k, resp.Header[k])
	}
	fmt.Fprint(w, "\r\n")
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
