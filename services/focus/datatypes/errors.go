// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "errors"

// Sentinel errors for session request validation.
var (
	ErrDurationRequired  = errors.New("time-boxed and pomodoro sessions require a positive duration")
	ErrInvalidAction     = errors.New("unknown session action")
	ErrQualityOutOfRange = errors.New("deep work quality must be between 1 and 10")
	ErrNotesTooLarge     = errors.New("notes exceed maximum size")
	ErrTooManyTags       = errors.New("too many tags")
)
