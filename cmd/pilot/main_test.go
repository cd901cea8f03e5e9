// File: cmd/pilot/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("serve: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes panic log", func(t *testing.T) {
		var written string
		var code int
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = string(data)
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("backend exploded")
		}()

		assert.Equal(t, 2, code)
		assert.True(t, strings.HasPrefix(written, "panic: backend exploded"))
		assert.Contains(t, written, "goroutine")
	})

	t.Run("write failure still exits", func(t *testing.T) {
		var code int
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("again")
		}()

		assert.Equal(t, 2, code)
	})

	t.Run("no panic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}

func TestInteractive(t *testing.T) {
	in := strings.NewReader("\nversion\nquit\nversion\n")
	var out bytes.Buffer

	require.NoError(t, interactive(context.Background(), in, &out))

	assert.Equal(t, 1, strings.Count(out.String(), "pilot version"))
	assert.Contains(t, out.String(), "Exiting pilot.")
}
