package codec_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/srg/mazelink/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTimer(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    int
		wantErr bool
	}{
		{name: "decimal text", payload: []byte("42"), want: 42},
		{name: "zero", payload: []byte("0"), want: 0},
		{name: "trailing newline", payload: []byte("17\n"), want: 17},
		{name: "NUL padding", payload: []byte{'9', 0, 0, 0}, want: 9},
		{name: "non-numeric", payload: []byte("abc"), wantErr: true},
		{name: "mixed", payload: []byte("12s"), wantErr: true},
		{name: "empty", payload: nil, wantErr: true},
		{name: "negative", payload: []byte("-5"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.DecodeTimer(tt.payload)
			if tt.wantErr {
				var decErr *codec.DecodeError
				require.ErrorAs(t, err, &decErr, "failure MUST surface a DecodeError")
				assert.Equal(t, codec.ChannelTimer, decErr.Channel)
				assert.Equal(t, 0, got, "fallback value MUST be zero")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeTimer_UnwrapsParseError(t *testing.T) {
	_, err := codec.DecodeTimer([]byte("x1"))

	var numErr *strconv.NumError
	assert.True(t, errors.As(err, &numErr), "parse error MUST be reachable through Unwrap")
	assert.Contains(t, err.Error(), `decode timer payload "x1": not a decimal integer`)
}

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		payload string
		want    codec.Status
	}{
		{"IDLE", codec.Status{Kind: codec.StatusIdle, Raw: "IDLE"}},
		{"READY", codec.Status{Kind: codec.StatusReady, Raw: "READY"}},
		{"playing", codec.Status{Kind: codec.StatusPlaying, Raw: "playing"}},
		{"COMPLETED!", codec.Status{Kind: codec.StatusCompleted, Raw: "COMPLETED!"}},
		{"Status: ERROR", codec.Status{Kind: codec.StatusError, Raw: "Status: ERROR"}},
		{"CALIBRATING", codec.Status{Kind: codec.StatusUnknown, Raw: "CALIBRATING"}},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := codec.DecodeStatus([]byte(tt.payload))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeStatus(%q) mismatch (-want +got):\n%s", tt.payload, diff)
			}
		})
	}

	t.Run("rejects empty payload", func(t *testing.T) {
		_, err := codec.DecodeStatus([]byte("  \x00"))
		var decErr *codec.DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, "empty payload", decErr.Reason)
	})

	t.Run("rejects invalid UTF-8", func(t *testing.T) {
		_, err := codec.DecodeStatus([]byte{0xff, 0xfe})
		var decErr *codec.DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, codec.ChannelStatus, decErr.Channel)
	})
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "completed", codec.ParseStatus("COMPLETED").String())
	assert.Equal(t, "unknown(BOOT)", codec.ParseStatus("BOOT").String())
}

func TestEncodeCommand(t *testing.T) {
	got, err := codec.EncodeCommand("RESET")
	require.NoError(t, err)
	assert.Equal(t, []byte("RESET"), got)

	_, err = codec.EncodeCommand("")
	assert.EqualError(t, err, "command is empty")

	_, err = codec.EncodeCommand("this command is far too long")
	assert.EqualError(t, err, "command is 28 bytes, limit is 20")

	_, err = codec.EncodeCommand(string([]byte{0xc3}))
	assert.EqualError(t, err, "command is not valid UTF-8")
}

func TestWireText(t *testing.T) {
	// "42" as the mobile binding carries it
	raw, err := codec.DecodeWireText("NDI=")
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), raw)

	seconds, err := codec.DecodeTimer(raw)
	require.NoError(t, err)
	assert.Equal(t, 42, seconds)

	assert.Equal(t, "UkVTRVQ=", codec.EncodeWireText([]byte("RESET")))

	_, err = codec.DecodeWireText("%%%")
	assert.ErrorContains(t, err, "invalid wire text")
}
