// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import "errors"

var (
	// ErrUnknownProvider indicates a provider name with no registered factory.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnavailable indicates the backend could not be reached or
	// returned a transport-level failure.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrMissingCredentials indicates required credentials were not
	// found in the environment or secret store.
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrInvalidResponse indicates the model's output could not be
	// parsed into a structured edit plan.
	ErrInvalidResponse = errors.New("unparseable provider response")
)
