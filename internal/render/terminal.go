// Package render draws the call as text tiles on a terminal.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/immxrtalbeast/huddle/internal/call"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
)

// trackStats is implemented by received tracks that count their packets.
type trackStats interface {
	Packets() uint64
	Codec() string
}

type tile struct {
	peerID string
	stream *media.Stream
}

// Terminal is a call.Renderer that redraws the whole call on every layout
// change.
type Terminal struct {
	out io.Writer

	mu       sync.Mutex
	self     *media.Stream
	mirrored bool
	next     int
	tiles    map[call.Surface]tile
	layout   domain.Layout
	controls call.ControlState
}

var _ call.Renderer = (*Terminal)(nil)

func New(out io.Writer) *Terminal {
	return &Terminal{
		out:   out,
		tiles: make(map[call.Surface]tile),
	}
}

func (t *Terminal) ShowSelf(stream *media.Stream, mirrored bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.self, t.mirrored = stream, mirrored
}

func (t *Terminal) Attach(peerID string, stream *media.Stream) call.Surface {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	surface := call.Surface(fmt.Sprintf("%s/%d", peerID, t.next))
	t.tiles[surface] = tile{peerID: peerID, stream: stream}
	return surface
}

func (t *Terminal) Detach(surface call.Surface) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tiles, surface)
}

func (t *Terminal) ApplyLayout(layout domain.Layout) {
	t.mu.Lock()
	t.layout = layout
	view := t.view()
	t.mu.Unlock()
	fmt.Fprintln(t.out, view)
}

func (t *Terminal) ShowMediaBlocked(err error) {
	fmt.Fprintln(t.out, ErrorBoxStyle.Render(
		"Camera and microphone are blocked.\n"+
			MutedStyle.Render(err.Error())+"\n\n"+
			"Allow access to your devices and join again."))
}

func (t *Terminal) Controls(state call.ControlState) {
	t.mu.Lock()
	t.controls = state
	t.mu.Unlock()
	fmt.Fprintln(t.out, statusBar(state))
}

func (t *Terminal) Surprise(peerID string) {
	fmt.Fprintln(t.out, WarningStyle.Render("✨ surprise from "+peerID))
}

// View renders the current call without printing it.
func (t *Terminal) View() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view()
}

func (t *Terminal) view() string {
	remotes := make([]tile, 0, len(t.tiles))
	for _, tl := range t.tiles {
		remotes = append(remotes, tl)
	}
	sort.Slice(remotes, func(i, j int) bool { return remotes[i].peerID < remotes[j].peerID })

	self := SelfTileStyle.Render(t.selfLabel())
	header := TitleStyle.Render(fmt.Sprintf("%s · %d remote", t.layout.Mode, len(remotes)))

	if t.layout.Mode == domain.LayoutSpotlight {
		var featured tile
		others := make([]string, 0, len(remotes))
		for _, r := range remotes {
			if r.peerID == t.layout.Featured && featured.peerID == "" {
				featured = r
				continue
			}
			others = append(others, TileStyle.Render(label(r)))
		}
		stage := FeaturedTileStyle.Render("▶ " + label(featured))
		side := append(others, self)
		return lipgloss.JoinVertical(lipgloss.Left, header,
			lipgloss.JoinHorizontal(lipgloss.Top, stage, lipgloss.JoinVertical(lipgloss.Left, side...)))
	}

	cells := make([]string, 0, len(remotes)+1)
	for _, r := range remotes {
		cells = append(cells, TileStyle.Render(label(r)))
	}
	cells = append(cells, self)

	columns := max(t.layout.Columns, 1)
	rows := make([]string, 0, len(cells)/columns+1)
	for start := 0; start < len(cells); start += columns {
		end := min(start+columns, len(cells))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells[start:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{header}, rows...)...)
}

func (t *Terminal) selfLabel() string {
	var b strings.Builder
	b.WriteString("you")
	if t.controls.Sharing {
		b.WriteString(" (screen)")
	}
	if t.mirrored {
		b.WriteString(" ⇋")
	}
	if t.controls.Muted {
		b.WriteString("\n" + MutedStyle.Render("muted"))
	}
	if t.self != nil {
		b.WriteString("\n" + MutedStyle.Render(summary(t.self)))
	}
	return b.String()
}

func label(tl tile) string {
	if tl.peerID == "" {
		return MutedStyle.Render("waiting for video")
	}
	if tl.stream == nil {
		return tl.peerID
	}
	return tl.peerID + "\n" + MutedStyle.Render(summary(tl.stream))
}

func summary(s *media.Stream) string {
	parts := make([]string, 0, 2)
	for _, tr := range s.Tracks() {
		part := string(tr.Kind())
		if st, ok := tr.(trackStats); ok {
			part = fmt.Sprintf("%s %d pkts", st.Codec(), st.Packets())
		}
		if !tr.Enabled() {
			part += " off"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " · ")
}

func statusBar(state call.ControlState) string {
	share := "share: off"
	switch {
	case state.SharePending:
		share = "share: picking…"
	case state.Sharing:
		share = "share: on"
	}
	mic := "mic: on"
	if state.Muted {
		mic = "mic: muted"
	}
	return StatusStyle.Render(share) + " " + StatusStyle.Render(mic)
}
