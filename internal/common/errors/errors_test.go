package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "standard error",
			err:  NewNoCandidatesError("red race car"),
			want: ErrCodeNoCandidates,
		},
		{
			name: "wrapped standard error",
			err:  fmt.Errorf("stage failed: %w", NewDownloadCorruptError("abc", "zero bytes")),
			want: ErrCodeDownloadCorrupt,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			want: "UNKNOWN_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewSearchQueryFailedError("direct", fmt.Errorf("conn refused"))))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", NewDownloadFailedError("http://x", fmt.Errorf("eof")))))
	assert.False(t, IsRetryable(NewInvalidInputError("empty prompt")))
	assert.False(t, IsRetryable(NewDownloadCorruptError("abc", "bad header")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestStandardErrorMessage(t *testing.T) {
	err := NewInstructionGenerationFailedError("exit status 1: missing parts library")
	assert.Equal(t, "StandardError[INSTRUCTION_GENERATION_FAILED]: Instruction generation failed", err.Error())
	assert.Contains(t, err.Details, "missing parts library")
}
