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

package similartext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindSimilar(t *testing.T) {
	require := require.New(t)
	candidates := []string{"NO_CACHE", "NO_PARTITION", "PARALLEL_READ"}

	require.Equal(", maybe you mean \"NO_CACHE\"?", FindSimilar("NO_CACH", candidates))
	require.Equal(", maybe you mean \"NO_CACHE\"?", FindSimilar("no_cache", candidates))
	require.Empty(FindSimilar("COMPLETELY_DIFFERENT_THING", candidates))
	require.Empty(FindSimilar("anything", nil))
}
