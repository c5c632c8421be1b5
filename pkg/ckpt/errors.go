// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ExitCode is the process exit status for any validation or transfer failure.
const ExitCode = 128

// Names of the well-known validation errors.
const (
	NameTokenIsNotSet            = "TokenIsNotSet"
	NameBadInput                 = "BadInput"
	NamePathNotSpecified         = "PathNotSpecified"
	NamePathSpecifiedIncorrectly = "PathSpecifiedIncorrectly"
	NameContentLength            = "ContentLength"
)

// ValidationError is a pre-flight failure with a stable symbolic name.
//
// Two ValidationErrors match under errors.Is when their names are equal, so
// the package-level values below can be compared against errors whose
// description mentions a renamed environment variable.
type ValidationError struct {
	Name string
	Desc string
}

func (e *ValidationError) Error() string {
	return e.Desc
}

// Is implements errors.Is by name.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Name == e.Name
}

// Well-known validation errors, described with the default variable names.
var (
	ErrTokenIsNotSet            = tokenIsNotSet(DefaultTokenEnv)
	ErrBadInput                 = &ValidationError{Name: NameBadInput, Desc: "Url is not recognized."}
	ErrPathNotSpecified         = pathNotSpecified(DefaultPathEnv)
	ErrPathSpecifiedIncorrectly = &ValidationError{Name: NamePathSpecifiedIncorrectly, Desc: "Incorrect downloading path or specified path is inaccessible."}
	ErrContentLength            = &ValidationError{Name: NameContentLength, Desc: "Zero size file."}
)

// ErrLocked is returned when another process holds the destination lock.
var ErrLocked = errors.New("another download into this directory is in progress")

// ErrInsecureRedirect is returned when the server redirects away from https.
var ErrInsecureRedirect = errors.New("refusing redirect to a non-https location")

func tokenIsNotSet(env string) *ValidationError {
	return &ValidationError{Name: NameTokenIsNotSet, Desc: fmt.Sprintf("%s is not set.", env)}
}

func pathNotSpecified(env string) *ValidationError {
	return &ValidationError{Name: NamePathNotSpecified, Desc: fmt.Sprintf("Specify FULL downloading path via %s", env)}
}

// Validations is an ordered, append-only collection of validation errors.
// The zero value is ready to use.
type Validations struct {
	merr *multierror.Error
}

// Add records e after every previously recorded error.
func (v *Validations) Add(e *ValidationError) {
	if v.merr == nil {
		v.merr = &multierror.Error{ErrorFormat: descriptionFormat}
	}
	v.merr = multierror.Append(v.merr, e)
}

// Len returns the number of recorded errors.
func (v *Validations) Len() int {
	if v.merr == nil {
		return 0
	}
	return len(v.merr.Errors)
}

// Errors returns the recorded errors in insertion order.
func (v *Validations) Errors() []*ValidationError {
	if v.merr == nil {
		return nil
	}
	out := make([]*ValidationError, 0, len(v.merr.Errors))
	for _, e := range v.merr.Errors {
		var ve *ValidationError
		if errors.As(e, &ve) {
			out = append(out, ve)
		}
	}
	return out
}

// Err returns nil when nothing was recorded, otherwise a *multierror.Error
// whose message lists one description per line.
func (v *Validations) Err() error {
	return v.merr.ErrorOrNil()
}

func descriptionFormat(es []error) string {
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = e.Error()
	}
	return strings.Join(lines, "\n")
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with %s", e.Status)
}

// IsRetryable reports whether the status is usually transient. Transfers are
// never retried; callers may use this to word their message.
func (e *StatusError) IsRetryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Descriptions flattens err into the lines printed to the user before exit:
// one line per recorded validation error, or the error message otherwise.
func Descriptions(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
