package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "plain JSON",
			raw:  `{"content":"cut marketing spend by 10%","importance":2,"urgency":1,"reasoning":"runway"}`,
		},
		{
			name: "fenced JSON",
			raw:  "```json\n{\"content\":\"hire two engineers\",\"importance\":1,\"urgency\":1}\n```",
		},
		{
			name:    "not JSON",
			raw:     "I think we should pivot to B2B.",
			wantErr: true,
		},
		{
			name:    "empty content",
			raw:     `{"content":"  ","importance":1,"urgency":1}`,
			wantErr: true,
		},
		{
			name:    "importance out of range",
			raw:     `{"content":"x","importance":4,"urgency":1}`,
			wantErr: true,
		},
		{
			name:    "urgency missing",
			raw:     `{"content":"x","importance":1}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProposal(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, p.Content)
			assert.GreaterOrEqual(t, p.Importance, 1)
			assert.LessOrEqual(t, p.Importance, 3)
		})
	}
}

func TestParseProposal_FenceWithoutLanguageTag(t *testing.T) {
	p, err := ParseProposal("```\n{\"content\":\"open a branch office\",\"importance\":3,\"urgency\":2}\n```")
	require.NoError(t, err)
	assert.Equal(t, "open a branch office", p.Content)
	assert.Equal(t, 3, p.Importance)
}
