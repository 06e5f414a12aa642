package eddystone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []byte
	}{
		{
			name: "https www with .org expansion",
			url:  "https://www.zephyrproject.org",
			want: append(append([]byte{0x10, 0x01}, "zephyrproject"...), 0x08),
		},
		{
			name: "http with .com/ expansion",
			url:  "http://go.com/x",
			want: []byte{0x10, 0x02, 'g', 'o', 0x00, 'x'},
		},
		{
			name: "https no expansion",
			url:  "https://a.io",
			want: []byte{0x10, 0x03, 'a', '.', 'i', 'o'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), MaxFrameLen)
		})
	}
}

func TestEncodeURL_Errors(t *testing.T) {
	_, err := EncodeURL("ftp://example.com")
	assert.Error(t, err)

	_, err = EncodeURL("https://" + strings.Repeat("a", MaxURLBody+1))
	assert.Error(t, err)

	_, err = EncodeURL("https://a b")
	assert.Error(t, err)
}

func TestDecodeURL(t *testing.T) {
	for _, url := range []string{
		"https://www.zephyrproject.org",
		"http://go.com/x",
		"https://example.net/",
	} {
		frame, err := EncodeURL(url)
		require.NoError(t, err)

		got, err := DecodeURL(frame)
		require.NoError(t, err)
		assert.Equal(t, url, got)
	}

	_, err := DecodeURL([]byte{0x00, 0x01})
	assert.Error(t, err)
	_, err = DecodeURL([]byte{0x10, 0x09})
	assert.Error(t, err)
}
