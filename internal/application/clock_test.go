package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stopped time.Time

func (s stopped) Now() time.Time { return time.Time(s) }

func TestOrSystem(t *testing.T) {
	require.IsType(t, SystemClock{}, OrSystem(nil))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.Equal(t, at, OrSystem(stopped(at)).Now())
}
