// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package govern

import (
	"errors"

	"github.com/AleutianAI/AleutianGovern/services/govern/dispatch"
)

// Sentinel errors returned by the service. Handlers map these to HTTP
// status codes with errors.Is.
var (
	// ErrInvalidConfiguration indicates a malformed match configuration
	// (weights, threshold or max-matches out of range).
	ErrInvalidConfiguration = errors.New("invalid match configuration")

	// ErrInvalidEntity indicates a malformed entity payload.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrNotFound indicates a missing cache entry or history ring.
	ErrNotFound = errors.New("not found")

	// ErrMatchingUnavailable indicates that every active strategy
	// failed. Re-exported from the dispatch package so callers only
	// import this one.
	ErrMatchingUnavailable = dispatch.ErrMatchingUnavailable
)
