package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResult_String(t *testing.T) {
	require.Equal(t, "OK", ResultOK.String())
	require.Equal(t, "RUNTIME_TRAP_DIV_BY_ZERO", ResultRuntimeTrapDivByZero.String())
	require.Equal(t, "UNKNOWN_RESULT", Result(999).String())
}
