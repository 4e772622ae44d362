/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"regexp"
	"strings"
)

// Kind is the rendering category of a media reference.
type Kind string

const (
	KindEmbed   Kind = "embed"
	KindVideo   Kind = "video"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

var videoExtensions = map[string]bool{
	"mp4":  true,
	"webm": true,
	"ogg":  true,
	"mov":  true,
	"m4v":  true,
}

var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
	"svg":  true,
}

var extensionPattern = regexp.MustCompile(`\.([a-z0-9]+)(?:[?#]|$)`)

// Classify determines how a media reference should be rendered.
func Classify(ref string) Kind {
	url := strings.ToLower(strings.TrimSpace(ref))
	if url == "" {
		return KindUnknown
	}

	// A nested player page: the reference points back at a player embed.
	if strings.Contains(url, "/embed/player/") {
		return KindEmbed
	}

	if m := extensionPattern.FindStringSubmatch(url); m != nil {
		ext := m[1]
		if videoExtensions[ext] {
			return KindVideo
		}
		if imageExtensions[ext] {
			return KindImage
		}
	}

	if strings.Contains(url, "youtube.com/embed/") || strings.Contains(url, "youtu.be/") {
		return KindEmbed
	}

	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return KindVideo
	}

	return KindUnknown
}
