// internal/backend/desktop/xdotool_test.go
package desktop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		combo    string
		want    string
		wantErr bool
	}{
		{combo: "Enter", want: "Return"},
		{combo: "Escape", want: "Escape"},
		{combo: "Backspace", want: "BackSpace"},
		{combo: "ArrowDown", want: "Down"},
		{combo: "PageUp", want: "Prior"},
		{combo: "f5", want: "F5"},
		{combo: "a", want: "a"},
		{combo: "Control+a", want: "Control_L+a"},
		{combo: "ctrl+Shift+T", want: "Control_L+Shift_L+T"},
		{combo: "Alt+Tab", want: "Alt_L+Tab"},
		{combo: "Control++", want: "Control_L+plus"},
		{combo: "XF86AudioPlay", want: "XF86AudioPlay"},
		{combo: "", wantErr: true},
		{combo: "two words", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.combo, func(t *testing.T) {
			got, err := translateKey(tt.combo)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLHelperScript(t *testing.T) {
	script, err := renderURLHelper(":1", "fire'fox")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	assert.Contains(t, script, `export DISPLAY=':1'`)
	assert.Contains(t, script, `--class 'fire'\''fox'`)
	// Clipboard and focus are restored before the URL is printed.
	assert.Less(t, strings.Index(script, "PREV_CLIP\" | xclip"), strings.Index(script, `printf '%s' "$URL"`))
}

func TestWriteFileCmdKeepsContentOutOfTheShell(t *testing.T) {
	cmd := writeFileCmd("/tmp/x.sh", "echo $HOME; rm -rf /")
	require.Len(t, cmd, 6)
	assert.NotContains(t, cmd[2], "rm -rf")
	assert.Equal(t, "/tmp/x.sh", cmd[5])
}
