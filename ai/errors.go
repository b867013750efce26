// Copyright 2025 Scriptorium Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrVectorCountMismatch indicates the provider returned a different
	// number of vectors than texts submitted.
	ErrVectorCountMismatch = errors.New("embedding count does not match input count")

	// ErrMissingVector indicates the provider omitted a vector at some index.
	ErrMissingVector = errors.New("provider returned an empty embedding")
)

// ErrorClass categorizes embedding provider failures for retry decisions.
type ErrorClass int

const (
	// ErrorClassRetryable marks transient failures: rate limits, server
	// errors, network timeouts and resets.
	ErrorClassRetryable ErrorClass = iota + 1

	// ErrorClassFatal marks permanent failures: client errors other than
	// rate limiting, and malformed provider responses.
	ErrorClassFatal
)

// ErrorClassifier maps a provider error to an ErrorClass. The classifier is
// an explicit, overridable policy: callers that prefer fast failure over
// availability can substitute their own.
type ErrorClassifier func(error) ErrorClass

// statusCodeRe extracts an HTTP status code from provider error text.
// OpenAI-compatible clients report failures as "... status code: NNN ...".
var statusCodeRe = regexp.MustCompile(`status(?: code)?:? (\d{3})`)

// ClassifyError is the default ErrorClassifier.
//
// HTTP 429, 5xx, network timeouts, and connection resets are retryable.
// Other 4xx responses and malformed provider responses are fatal.
// Unrecognized errors default to retryable: transient failures dominate in
// practice, so the default favors availability over fast failure.
// Context cancellation is fatal since retrying a canceled call is pointless.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassFatal
	}

	if errors.Is(err, ErrVectorCountMismatch) || errors.Is(err, ErrMissingVector) {
		return ErrorClassFatal
	}

	// Provider client timeouts surface as net.Error; treat the same as
	// connection resets. Checked before the context errors because the
	// http client wraps its own timeout in context.DeadlineExceeded.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassRetryable
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassFatal
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrorClassRetryable
	}

	msg := strings.ToLower(err.Error())

	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		code, convErr := strconv.Atoi(m[1])
		if convErr == nil {
			switch {
			case code == 429:
				return ErrorClassRetryable
			case code >= 500:
				return ErrorClassRetryable
			case code >= 400:
				return ErrorClassFatal
			}
		}
	}

	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return ErrorClassRetryable
	}

	return ErrorClassRetryable
}
