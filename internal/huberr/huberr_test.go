package huberr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NilErrReturnsNil(t *testing.T) {
	assert.NoError(t, New(Internal, "Op", nil))
}

func TestKindOf_WrappedErrorRoundTrips(t *testing.T) {
	err := New(NotFound, "Get", ErrNotFound)
	assert.Equal(t, NotFound, KindOf(err))
}

func TestKindOf_PlainErrorDefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestError_UnwrapsToCause(t *testing.T) {
	err := New(NotFound, "Get", ErrNotFound)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		Internal:        "internal",
		NotFound:        "not_found",
		InvalidArgument: "invalid_argument",
		DispatchFailure: "dispatch_failure",
		Timeout:         "timeout",
		SlowSubscriber:  "slow_subscriber",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}
