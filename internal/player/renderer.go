/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"time"

	"github.com/friendsincode/mediaroom/internal/playlist"
)

// Renderer displays what the driver decides. Calls arrive from the driver's
// loop goroutine and must not block for long.
type Renderer interface {
	// Empty shows the "nothing scheduled" state.
	Empty()
	// Waiting shows a placeholder until item starts.
	Waiting(item playlist.Item)
	// LoadVideo prepares src and calls ready once it can play, or with the
	// load error. ready may be called from any goroutine.
	LoadVideo(item playlist.Item, src string, ready func(error))
	// PlayVideo starts a loaded video at offset, muted and inline.
	PlayVideo(item playlist.Item, offset time.Duration)
	ShowEmbed(item playlist.Item, src string)
	ShowImage(item playlist.Item, src string)
	ShowUnsupported(item playlist.Item, reason string)
	// Release stops playback and frees loaded media.
	Release()
}
