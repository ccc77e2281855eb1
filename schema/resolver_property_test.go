package schema

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// genRefDocument builds an acyclic document where component Si may point at
// any Sj with j < i, and the request body points at the last component.
func genRefDocument(rt *rapid.T) string {
	n := rapid.IntRange(1, 8).Draw(rt, "components")
	types := []string{"string", "integer", "number", "boolean", "array", "object"}

	var b strings.Builder
	b.WriteString("paths:\n  /p:\n    post:\n      requestBody:\n        content:\n          application/json:\n            schema:\n")
	fmt.Fprintf(&b, "              $ref: \"#/components/schemas/S%d\"\n", n-1)
	b.WriteString("components:\n  schemas:\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "    S%d:\n      type: object\n      properties:\n", i)
		props := rapid.IntRange(1, 4).Draw(rt, fmt.Sprintf("props_%d", i))
		for p := 0; p < props; p++ {
			if i > 0 && rapid.Bool().Draw(rt, fmt.Sprintf("ref_%d_%d", i, p)) {
				target := rapid.IntRange(0, i-1).Draw(rt, fmt.Sprintf("target_%d_%d", i, p))
				fmt.Fprintf(&b, "        f%d:\n          $ref: \"#/components/schemas/S%d\"\n", p, target)
				continue
			}
			typ := rapid.SampledFrom(types).Draw(rt, fmt.Sprintf("type_%d_%d", i, p))
			fmt.Fprintf(&b, "        f%d:\n          type: %s\n", p, typ)
		}
	}
	return b.String()
}

func TestProperty_ResolutionIsDeterministicAndRefFree(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		src := []byte(genRefDocument(rt))
		l := NewLoader()

		first, err := l.LoadBytes(context.Background(), "gen.yaml", src)
		require.NoError(rt, err)
		second, err := l.LoadBytes(context.Background(), "gen.yaml", src)
		require.NoError(rt, err)

		a, err := first.Bytes()
		require.NoError(rt, err)
		b, err := second.Bytes()
		require.NoError(rt, err)
		require.Equal(rt, string(a), string(b))

		tree, err := first.Decode()
		require.NoError(rt, err)
		require.False(rt, containsRef(tree))

		// resolving an already resolved document changes nothing
		again, err := l.LoadBytes(context.Background(), "gen.yaml", a)
		require.NoError(rt, err)
		c, err := again.Bytes()
		require.NoError(rt, err)
		require.Equal(rt, string(a), string(c))

		rs, err := first.RequestSchema("/p", "post")
		require.NoError(rt, err)
		require.NotEmpty(rt, rs.Properties)
	})
}
