package claude

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOutput(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		runErr      error
		wantSubtype string
		wantResult  string
		wantErr     string
	}{
		{
			name:        "well formed success envelope",
			output:      `{"subtype":"success","result":"Hello World","session_id":"abc-123"}`,
			wantSubtype: "success",
			wantResult:  "Hello World",
		},
		{
			name:        "well formed error envelope",
			output:      `{"subtype":"error","error":"permission denied"}`,
			wantSubtype: "error",
			wantErr:     "permission denied",
		},
		{
			name:        "envelope embedded in prose",
			output:      "warning: foo\n" + `{"subtype":"success","result":"done"}` + "\ntrailer",
			wantSubtype: "success",
			wantResult:  "done",
		},
		{
			name:        "non-JSON success output",
			output:      "plain text output, no JSON here",
			wantSubtype: "success",
			wantResult:  "plain text output, no JSON here",
		},
		{
			name:        "exit-code-only failure normalizes to error",
			output:      "segmentation fault",
			runErr:      errors.New("exit status 139"),
			wantSubtype: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeOutput([]byte(tt.output), tt.runErr)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantSubtype, got.Subtype)
			if tt.wantResult != "" {
				assert.Equal(t, tt.wantResult, got.Result)
			}
			if tt.wantErr != "" {
				assert.Contains(t, got.Error, tt.wantErr)
			}
		})
	}
}

func TestResult_IsSuccess(t *testing.T) {
	assert.True(t, (&Result{Subtype: "success"}).IsSuccess())
	assert.False(t, (&Result{Subtype: "error"}).IsSuccess())
}

func TestBuildArgs_IncludesRequiredFlags(t *testing.T) {
	inv := NewInvoker()
	args := buildArgs(inv, Request{Prompt: "do the thing", Schema: `{"type":"object"}`})

	assert.Contains(t, args, "-p")
	assert.Contains(t, args, "do the thing")
	assert.Contains(t, args, "--json-schema")
	assert.Contains(t, args, "--output-format")
	assert.Contains(t, args, "json")
}
