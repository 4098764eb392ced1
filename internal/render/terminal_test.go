package render

import (
	"bytes"
	"errors"
	"testing"

	"github.com/immxrtalbeast/huddle/internal/call"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stream(t *testing.T, id string) *media.Stream {
	t.Helper()
	video, err := media.NewLocalTrack(media.KindVideo, id+"-video", id)
	require.NoError(t, err)
	return media.NewStream(id, video)
}

func TestAttachDetach(t *testing.T) {
	var out bytes.Buffer
	term := New(&out)
	term.ShowSelf(stream(t, "self"), true)

	b := term.Attach("peer-b", stream(t, "b"))
	c := term.Attach("peer-c", stream(t, "c"))
	assert.NotEqual(t, b, c)

	term.ApplyLayout(domain.ComputeLayout(2, "", "me"))
	view := term.View()
	assert.Contains(t, view, "peer-b")
	assert.Contains(t, view, "peer-c")
	assert.Contains(t, view, "grid")

	term.Detach(b)
	term.Detach(b)
	term.Detach(call.Surface("unknown"))
	view = term.View()
	assert.NotContains(t, view, "peer-b")
	assert.Contains(t, view, "peer-c")
	assert.NotEmpty(t, out.String())
}

func TestSpotlightFeaturesSharer(t *testing.T) {
	term := New(&bytes.Buffer{})
	term.Attach("peer-b", stream(t, "b"))
	term.Attach("peer-c", stream(t, "c"))

	term.ApplyLayout(domain.ComputeLayout(2, "peer-c", "me"))

	view := term.View()
	assert.Contains(t, view, "spotlight")
	assert.Contains(t, view, "▶ peer-c")
	assert.Contains(t, view, "peer-b")
}

func TestSelfTileReflectsControls(t *testing.T) {
	var out bytes.Buffer
	term := New(&out)
	term.ShowSelf(stream(t, "self"), false)

	term.Controls(call.ControlState{Sharing: true, Muted: true})
	term.ApplyLayout(domain.ComputeLayout(0, "me", "me"))

	view := term.View()
	assert.Contains(t, view, "you (screen)")
	assert.Contains(t, view, "muted")
	assert.Contains(t, out.String(), "mic: muted")
}

func TestMediaBlockedAndSurprise(t *testing.T) {
	var out bytes.Buffer
	term := New(&out)

	term.ShowMediaBlocked(errors.New("permission denied"))
	term.Surprise("peer-b")

	assert.Contains(t, out.String(), "permission denied")
	assert.Contains(t, out.String(), "surprise from peer-b")
}
