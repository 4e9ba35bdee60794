package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvardsen/chunkvault/internal/apperror"
)

func TestParseRange_Explicit(t *testing.T) {
	r, err := ParseRange("bytes=0-1023", 4096)
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 0, End: 1023}, r)
}

func TestParseRange_OpenEnded(t *testing.T) {
	r, err := ParseRange("bytes=1024-", 4096)
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 1024, End: 4095}, r)
}

func TestParseRange_Suffix(t *testing.T) {
	// "bytes=-500" (suffix form) is not supported by this parser, the same
	// single-range subset original_source's _parse_range covers; a range
	// with an empty start is rejected rather than read as "last N bytes".
	_, err := ParseRange("bytes=-500", 4096)
	require.Error(t, err)
}

func TestParseRange_MissingPrefix(t *testing.T) {
	_, err := ParseRange("0-1023", 4096)
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindRange, appErr.Kind)
}

func TestParseRange_EndBeyondFileSize(t *testing.T) {
	_, err := ParseRange("bytes=0-9999", 4096)
	require.Error(t, err)
}

func TestParseRange_EndBeforeStart(t *testing.T) {
	_, err := ParseRange("bytes=100-50", 4096)
	require.Error(t, err)
}

func TestParseRange_NegativeStart(t *testing.T) {
	_, err := ParseRange("bytes=-10-20", 4096)
	require.Error(t, err)
}

func TestContentRangeHeader(t *testing.T) {
	header := ContentRangeHeader(Range{Start: 0, End: 1023}, 4096)
	assert.Equal(t, "bytes 0-1023/4096", header)
}
