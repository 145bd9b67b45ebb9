package pipeline

// UI signal types sent to tab surfaces.
const (
	// SignalShowBlockModal asks the tab to present the block/appeal
	// dialog. Payload: BlockPagePayload.
	SignalShowBlockModal = "SHOW_BLOCK_MODAL"

	// SignalCloseBlockModal asks the tab to dismiss the dialog.
	SignalCloseBlockModal = "CLOSE_BLOCK_MODAL"

	// SignalRequestCapture asks the tab to re-capture and resubmit its
	// page, forcing re-evaluation.
	SignalRequestCapture = "REQUEST_DOM_CAPTURE"
)

// Signal is one UI-bound message.
type Signal struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// BlockPagePayload identifies the page a block dialog is shown for.
type BlockPagePayload struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// TabSignaler delivers signals to a tab's UI surface.
type TabSignaler interface {
	// SignalTab sends a signal to the given tab. Returns an error when
	// no surface for the tab is reachable.
	SignalTab(tabID int, sig Signal) error
}
