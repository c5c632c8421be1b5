// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// userAgent identifies the client to the artifact server.
const userAgent = "ckptdl/1"

// Engine streams an HTTP response body to a file.
type Engine struct {
	Client     *http.Client
	Fs         afero.Fs
	BufferSize int
	Logger     logrus.FieldLogger
}

// maxRedirects matches the net/http default limit.
const maxRedirects = 10

// NewEngine builds an Engine from settings, using the default client when
// none is configured. A configured client without a redirect policy gets
// the https-only policy on a copy; the caller's client is not modified.
func NewEngine(cfg Settings) *Engine {
	cfg = cfg.withDefaults()
	c := cfg.HTTPClient
	if c == nil {
		c = buildHTTPClient()
	} else if c.CheckRedirect == nil {
		cc := *c
		cc.CheckRedirect = checkRedirect
		c = &cc
	}
	return &Engine{Client: c, Fs: cfg.Fs, BufferSize: cfg.BufferSize, Logger: cfg.Logger}
}

// buildHTTPClient creates the client used for artifact downloads. No overall
// timeout is set: a checkpoint can take hours. Compression is disabled so
// the declared Content-Length is the number of bytes written to disk.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		MaxIdleConns:       4,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: true,
	}
	return &http.Client{Transport: tr, CheckRedirect: checkRedirect}
}

// checkRedirect follows redirects only to https locations.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if req.URL.Scheme != "https" {
		return errors.Wrapf(ErrInsecureRedirect, "redirect to %s://%s", req.URL.Scheme, req.URL.Host)
	}
	if len(via) >= maxRedirects {
		return errors.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// Open sends the GET request and returns the response once its headers have
// arrived. The body is not read. Non-2xx statuses and responses without a
// declared length are rejected and their bodies closed.
func (e *Engine) Open(ctx context.Context, requestURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.Wrap(redact(err), "build request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(redact(err), "request artifact")
	}
	e.logger().WithFields(logrus.Fields{
		"status":         resp.Status,
		"content_length": resp.ContentLength,
	}).Debug("response headers received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if resp.ContentLength < 0 {
		resp.Body.Close()
		return nil, ErrContentLength
	}
	return resp, nil
}

// Stream copies body into dst one buffer at a time, emitting a
// "file_progress" event after every chunk and "done" at the end. dst is
// created or truncated. A failed copy leaves the partial file in place.
func (e *Engine) Stream(body io.Reader, dst string, total int64, progress ProgressFunc) (int64, error) {
	emit := emitter(progress)

	out, err := e.Fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	size := e.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)

	emit(ProgressEvent{Event: EventFileStart, Path: dst, Total: total})

	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return written, errors.Wrapf(werr, "write %s", dst)
			}
			written += int64(n)
			emit(ProgressEvent{Event: EventProgress, Path: dst, Downloaded: written, Total: total})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, errors.Wrap(redact(rerr), "read response body")
		}
	}

	if err := out.Close(); err != nil {
		return written, errors.Wrapf(err, "close %s", dst)
	}
	e.logger().WithFields(logrus.Fields{"file": dst, "bytes": written}).Info("transfer complete")
	emit(ProgressEvent{Event: EventDone, Path: dst, Downloaded: written, Total: total})
	return written, nil
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Logger == nil {
		return discardLogger()
	}
	return e.Logger
}

// Transfer downloads requestURL into dst.
func (e *Engine) Transfer(ctx context.Context, requestURL, dst string, progress ProgressFunc) (int64, error) {
	resp, err := e.Open(ctx, requestURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return e.Stream(resp.Body, dst, resp.ContentLength, progress)
}

// redact strips the query string from URLs carried by net/http errors so
// the token never reaches logs or the console.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
		return &url.Error{Op: ue.Op, URL: "", Err: ue.Err}
	}
	return err
}
