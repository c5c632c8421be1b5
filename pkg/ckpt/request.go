// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"net/url"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// TransferRequest describes one download. Build it with NewTransferRequest;
// it is not modified afterwards.
type TransferRequest struct {
	source   *url.URL
	token    string
	dir      string
	filename string
}

// NewTransferRequest binds a parsed source URL, token and destination.
func NewTransferRequest(source *url.URL, token, dir, filename string) TransferRequest {
	u := *source
	return TransferRequest{source: &u, token: token, dir: dir, filename: filename}
}

// ParseSourceURL accepts only absolute https URLs with a host.
func ParseSourceURL(raw string) (*url.URL, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if !u.IsAbs() || u.Scheme != "https" || u.Host == "" {
		return nil, false
	}
	return u, true
}

// RequestURL returns the source URL with the token appended as the "token"
// query parameter, joined with "&" when a query is already present and "?"
// otherwise.
func (r TransferRequest) RequestURL() string {
	return withToken(r.source, r.token)
}

// RedactedURL is RequestURL with the token value masked, for logs and errors.
func (r TransferRequest) RedactedURL() string {
	return withToken(r.source, "REDACTED")
}

// Dir is the destination directory.
func (r TransferRequest) Dir() string { return r.dir }

// Destination is the artifact path inside Dir. The filename is resolved
// with SecureJoin, so it cannot point outside Dir.
func (r TransferRequest) Destination() (string, error) {
	return securejoin.SecureJoin(r.dir, r.filename)
}

func withToken(src *url.URL, token string) string {
	u := *src
	param := "token=" + url.QueryEscape(token)
	if u.RawQuery != "" {
		u.RawQuery += "&" + param
	} else {
		u.RawQuery = param
	}
	u.ForceQuery = false
	return u.String()
}
