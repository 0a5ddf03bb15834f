package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIs_MatchesWrappedSentinel(t *testing.T) {
	req := require.New(t)
	err := fmt.Errorf("%w: conversation %q", ErrNotFound, "c1")

	req.True(Is(err, ErrNotFound))
	req.False(Is(err, ErrValidation))
	req.Contains(err.Error(), "not found")
}
