// Copyright 2024 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/logtags"
	"github.com/stretchr/testify/require"
)

func TestTagsAndSeverity(t *testing.T) {
	var buf bytes.Buffer
	defer SetOutput(&buf)()

	ctx := context.Background()
	Infof(ctx, "plain %d", 1)
	require.Equal(t, "I plain 1\n", buf.String())

	buf.Reset()
	tagged := logtags.AddTag(ctx, "catalog", "system.catalog")
	Warningf(tagged, "tagged")
	require.Equal(t, "W [catalog=system.catalog] tagged\n", buf.String())
}

func TestEventfGatedByVerbosity(t *testing.T) {
	var buf bytes.Buffer
	defer SetOutput(&buf)()
	defer SetVerbosity(0)

	ctx := context.Background()
	Eventf(ctx, 2, "dropped")
	require.Empty(t, buf.String())

	SetVerbosity(2)
	require.True(t, V(2))
	require.False(t, V(3))
	Eventf(ctx, 2, "kept")
	require.Equal(t, "I kept\n", buf.String())
}
