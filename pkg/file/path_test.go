package file

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		name string
		path string
		ext  string
		want string
	}{
		{name: "simple", path: "video.mp4", ext: ".wav", want: "video.wav"},
		{name: "without dot", path: "video.mp4", ext: "mp3", want: "video.mp3"},
		{name: "nested path", path: filepath.Join("a", "b", "clip.webm"), ext: ".mp3", want: filepath.Join("a", "b", "clip.mp3")},
		{name: "no extension", path: "video", ext: ".wav", want: "video.wav"},
		{name: "multi dot keeps earlier parts", path: "show.s01e01.mkv", ext: ".srt", want: "show.s01e01.srt"},
		{name: "empty path", path: "", ext: ".wav", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceExt(tt.path, tt.ext))
		})
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "abc123", BaseName("/data/lessons/abc123.json"))
	assert.Equal(t, "clip", BaseName("clip.mp4"))
	assert.Equal(t, "noext", BaseName("noext"))
}
