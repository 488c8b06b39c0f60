// Copyright 2024-2025 Kestrel Data, Inc.
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

package sql

import (
	"fmt"

	"github.com/kestreldb/kestrel/internal/similartext"
)

// Well-known hints recognized at plan time and consumed by scans.
const (
	HintNoCache           = "NO_CACHE"
	HintNoPartition       = "NO_PARTITION"
	HintNoPushProjection  = "NO_PUSH_PROJECTION"
	HintNoPushSelection   = "NO_PUSH_SELECTION"
	HintParallelRead      = "PARALLEL_READ"
)

var knownHints = []string{
	HintNoCache,
	HintNoPartition,
	HintNoPushProjection,
	HintNoPushSelection,
	HintParallelRead,
}

// ValidateHints checks the query's hints against the well-known set. Unknown
// hints are not fatal; each appends a warning carrying a fuzzy-matched
// suggestion to the statistics messages.
func ValidateHints(hints []string, stats *QueryStatistics) {
	for _, hint := range hints {
		known := false
		for _, k := range knownHints {
			if hint == k {
				known = true
				break
			}
		}
		if known {
			continue
		}
		suggestion := similartext.FindSimilar(hint, knownHints)
		msg := fmt.Sprintf("hint %q is not recognized%s", hint, suggestion)
		stats.AddMessage(msg)
	}
}
