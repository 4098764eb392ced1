package domain

type LayoutMode string

const (
	LayoutSolo      LayoutMode = "solo"
	LayoutPair      LayoutMode = "pair"
	LayoutGrid      LayoutMode = "grid"
	LayoutSpotlight LayoutMode = "spotlight"
)

// Layout describes how the renderer should arrange the self view and the
// remote tiles. It carries no references to surfaces.
type Layout struct {
	Mode    LayoutMode `json:"mode"`
	Tiles   int        `json:"tiles"`
	Columns int        `json:"columns"`
	Rows    int        `json:"rows"`

	// Featured is the sharer shown full size in spotlight mode.
	Featured string `json:"featured,omitempty"`
	// Sidebar puts the non-featured tiles in a single column next to the
	// featured one.
	Sidebar bool `json:"sidebar"`
	// SelfInset shows the self view as a small overlay instead of a tile.
	SelfInset    bool `json:"self_inset"`
	SelfMirrored bool `json:"self_mirrored"`
}

// ComputeLayout is a pure function of the number of connected remote
// participants, the current sharer id and the local id.
func ComputeLayout(remoteCount int, sharerID, localID string) Layout {
	if remoteCount < 0 {
		remoteCount = 0
	}
	tiles := remoteCount + 1
	localSharing := sharerID != "" && sharerID == localID

	layout := Layout{
		Tiles:        tiles,
		SelfMirrored: !localSharing,
	}

	if sharerID != "" && !localSharing && remoteCount > 0 {
		layout.Mode = LayoutSpotlight
		layout.Featured = sharerID
		layout.Columns = 1
		if remoteCount >= 2 {
			layout.Sidebar = true
			layout.Rows = remoteCount
		} else {
			layout.SelfInset = true
			layout.Rows = 1
		}
		return layout
	}

	switch remoteCount {
	case 0:
		layout.Mode = LayoutSolo
		layout.Columns, layout.Rows = 1, 1
	case 1:
		layout.Mode = LayoutPair
		layout.SelfInset = true
		layout.Columns, layout.Rows = 1, 1
	default:
		layout.Mode = LayoutGrid
		layout.Columns = GridColumns(tiles)
		layout.Rows = (tiles + layout.Columns - 1) / layout.Columns
	}
	return layout
}

// GridColumns returns the column count for a regular grid of n tiles.
func GridColumns(n int) int {
	switch {
	case n <= 1:
		return 1
	case n <= 4:
		return 2
	case n <= 9:
		return 3
	default:
		return 4
	}
}
