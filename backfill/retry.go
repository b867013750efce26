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


package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/scriptorium/archivist/ai"
)

// RetryPolicy controls exponential backoff for provider calls.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts (must be > 0).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the per-retry sleep, jitter included.
	MaxDelay time.Duration

	// Multiplier scales the delay after each retry.
	Multiplier float64

	// Jitter is the maximum random fraction added to each delay.
	Jitter float64

	// Classify decides whether an error is worth retrying.
	// Defaults to ai.ClassifyError.
	Classify ai.ErrorClassifier
}

// DefaultRetryPolicy returns the standard policy for embedding calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
		Classify:     ai.ClassifyError,
	}
}

// RetryWithBackoff retries an operation with exponential backoff.
// Fatal errors (per the policy's classifier) abort immediately and are
// returned as-is; retryable errors are reattempted until the retry budget
// runs out, in which case the last attempt's error is returned wrapped
// with the attempt count.
func RetryWithBackoff(ctx context.Context, operation func() error, policy RetryPolicy) error {
	if policy.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}

	classify := policy.Classify
	if classify == nil {
		classify = ai.ClassifyError
	}

	delay := policy.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil // Success
		}

		if classify(lastErr) == ai.ErrorClassFatal {
			slog.Debug("operation failed with fatal error", "attempt", attempt, "error", lastErr)
			return lastErr
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxRetries", policy.MaxRetries, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt == policy.MaxRetries {
			break
		}

		sleep := delay
		if policy.Jitter > 0 {
			sleep += time.Duration(rand.Float64() * policy.Jitter * float64(delay))
		}
		if policy.MaxDelay > 0 && sleep > policy.MaxDelay {
			sleep = policy.MaxDelay
		}

		// Sleep with context awareness
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Continue to next attempt
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
	}

	return fmt.Errorf("all %d attempts failed: %w", policy.MaxRetries, lastErr)
}
