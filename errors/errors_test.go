package errors_test

import (
	"context"
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Skryldev/image-source/errors"
)

func TestFetchFailed_MatchesSentinelAndCause(t *testing.T) {
	err := apperrors.FetchFailed("scaled://?src=x", io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, apperrors.CategoryFetch, apperrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "scaled://?src=x")
}

func TestCanceled_MatchesContextError(t *testing.T) {
	err := apperrors.Canceled("fetch", context.DeadlineExceeded)

	assert.True(t, apperrors.IsCanceled(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryCanceled))
}

func TestConstructors_Categories(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		cat      apperrors.Category
	}{
		{"malformed", apperrors.Malformed("scaled://", "missing src"), apperrors.ErrMalformedAddress, apperrors.CategoryAddress},
		{"source", apperrors.SourceNotFound("ftp"), apperrors.ErrSourceNotFound, apperrors.CategorySource},
		{"unfulfilled", apperrors.Unfulfilled("asset://a"), apperrors.ErrUnfulfilledAfterFetch, apperrors.CategoryConsistency},
		{"invalid", apperrors.InvalidImage("decode", nil), apperrors.ErrInvalidImage, apperrors.CategoryDecode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.sentinel)
			assert.Equal(t, tc.cat, apperrors.CategoryOf(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, apperrors.IsRetryable(apperrors.Transient("s3.get", stderrors.New("503"))))
	assert.False(t, apperrors.IsRetryable(apperrors.New(apperrors.CategoryStorage, "local.get", apperrors.ErrNotFound)))
	assert.Nil(t, apperrors.Wrap(apperrors.CategoryStorage, "noop", nil))
}
