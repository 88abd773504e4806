// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "github.com/google/uuid"

// NewIdempotencyKey builds the key sent with a mutation so the server can
// deduplicate retries of the same logical request.
//
// The key is "{operation}-{uuid}": the operation prefix makes server logs
// and cache dumps readable, the UUID makes the key unique per logical
// mutation. A retry of the same mutation reuses the same key; a new
// mutation always mints a new one.
func NewIdempotencyKey(operation string) string {
	return operation + "-" + uuid.NewString()
}
