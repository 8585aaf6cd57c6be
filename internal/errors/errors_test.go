// Public domain.

package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarks(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
		not  error
	}{
		{"data", Dataf("star %d: bad covariance", 3), ErrData, ErrConfig},
		{"config", Configf("unknown key %q", "foo"), ErrConfig, ErrData},
		{"wrapped", Wrap(Mark(New("not PD"), ErrNumericalInstability), "overlap"),
			ErrNumericalInstability, ErrPropagation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.is))
			assert.False(t, Is(tt.err, tt.not))
		})
	}
}

func TestMessagePreserved(t *testing.T) {
	err := Wrapf(Dataf("row %d: missing column %s", 7, "X"), "reading %s", "stars.csv")
	assert.Equal(t, "reading stars.csv: row 7: missing column X", err.Error())
}
