package espbdebug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smersh1307n2/ESPB-sub001/api"
)

func TestErrorBuilder(t *testing.T) {
	argErr := errors.New("invalid argument")
	i32 := api.TypeI32
	i32i32i32i32 := []api.Type{i32, i32, i32, i32}

	tests := []struct {
		name        string
		build       func(ErrorBuilder) error
		expectedErr string
	}{
		{
			name: "one frame",
			build: func(b ErrorBuilder) error {
				b.AddFrame("x.y", nil, nil)
				return b.FromRecovered(argErr)
			},
			expectedErr: "invalid argument (recovered by espb)\nespb stack trace:\n\tx.y()",
		},
		{
			name: "two frames",
			build: func(b ErrorBuilder) error {
				b.AddFrame("host.fd_write", i32i32i32i32, []api.Type{i32})
				b.AddFrame("x.y", nil, nil)
				return b.FromRecovered(argErr)
			},
			expectedErr: "invalid argument (recovered by espb)\nespb stack trace:\n\thost.fd_write(i32,i32,i32,i32) i32\n\tx.y()",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build(NewErrorBuilder())
			require.EqualError(t, err, tc.expectedErr)
			require.Equal(t, argErr, errors.Unwrap(err))
		})
	}
}
