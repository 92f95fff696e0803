package forum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains []string
		excludes []string
	}{
		{
			name:     "emphasis",
			src:      "some **bold** and _italic_",
			contains: []string{"<strong>bold</strong>", "<em>italic</em>"},
		},
		{
			name:     "raw html dropped",
			src:      "hi <script>alert(1)</script>",
			excludes: []string{"<script>", "alert(1)</script>"},
		},
		{
			name:     "javascript link neutralised",
			src:      "[click](javascript:alert(1))",
			excludes: []string{"javascript:"},
		},
		{
			name:     "links kept",
			src:      "[docs](https://go.dev/doc/)",
			contains: []string{`href="https://go.dev/doc/"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderMarkdown(tt.src)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, string(got), s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, string(got), s)
			}
		})
	}
}

func TestNaturalTime(t *testing.T) {
	assert.Equal(t, "3 minutes ago", naturalTime(time.Now().Add(-3*time.Minute)))
}
