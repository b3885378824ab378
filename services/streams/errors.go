// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package streams

import "errors"

// Sentinel errors for stream operations.
var (
	// ErrTransport is returned when the stream substrate is unreachable.
	// Recoverable by retry with backoff; callers should not treat it as
	// fatal to the process.
	ErrTransport = errors.New("stream transport failure")

	// ErrMalformedEntry is returned for an entry whose field mapping does
	// not hold exactly one token/text pair.
	ErrMalformedEntry = errors.New("malformed stream entry")
)
