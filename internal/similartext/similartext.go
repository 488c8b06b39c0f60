// Copyright 2024 Kestrel Data, Inc.
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

// Package similartext supplies "did you mean" suggestions for misspelled
// names using Levenshtein distance.
package similartext

import (
	"fmt"
	"strings"
)

// maxDistanceIgnored is the caller name length divided by this factor above
// which no suggestion is made; short names suggest only near misses.
const maxDistanceIgnored = 3

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func distance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// FindSimilar returns a ", maybe you mean X?" string for the candidate
// closest to name, or an empty string when nothing is close enough.
// Matching is case-insensitive.
func FindSimilar(name string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	minDistance := -1
	closest := ""
	lowered := strings.ToLower(name)
	for _, candidate := range candidates {
		d := distance(lowered, strings.ToLower(candidate))
		if minDistance == -1 || d < minDistance {
			minDistance = d
			closest = candidate
		}
	}
	maxDistance := len(name) / maxDistanceIgnored
	if maxDistance < 2 {
		maxDistance = 2
	}
	if minDistance > maxDistance {
		return ""
	}
	return fmt.Sprintf(", maybe you mean %q?", closest)
}
