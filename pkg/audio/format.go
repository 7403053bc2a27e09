package audio

import (
	"path/filepath"
	"strings"
)

// DetectAudioFormat determines the format from the file name, falling back
// to Content-Type. Unknown input yields ""
func DetectAudioFormat(contentType, filename string) string {
	// Priority 1: Trust filename extension
	if filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".webm":
			return "webm"
		case ".m4a", ".mp4":
			return "m4a"
		case ".mp3":
			return "mp3"
		case ".ogg", ".opus":
			return "ogg"
		case ".wav":
			return "wav"
		}
	}

	// Priority 2: Trust Content-Type
	switch {
	case strings.Contains(contentType, "webm"):
		return "webm"
	case strings.Contains(contentType, "mp4"), strings.Contains(contentType, "aac"):
		return "m4a"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return "mp3"
	case strings.Contains(contentType, "ogg"):
		return "ogg"
	case strings.Contains(contentType, "wav"):
		return "wav"
	default:
		return ""
	}
}

// ContentType maps an audio format to its MIME type
func ContentType(format string) string {
	switch format {
	case "webm":
		return "audio/webm"
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
