package contracts

const (
	// MessageTypeState replaces the browser's view of the workspace.
	MessageTypeState = "state"
	// MessageTypeNotice shows a transient notification in the browser.
	MessageTypeNotice = "notice"

	// MessageTypeExecuteCommand runs a palette command by id.
	MessageTypeExecuteCommand = "execute_command"
	// MessageTypeRibbonClick invokes a ribbon action by id.
	MessageTypeRibbonClick = "ribbon_click"
	// MessageTypeSetActiveFile changes the host's active file.
	MessageTypeSetActiveFile = "set_active_file"
	// MessageTypeOpenFile opens a file in the view registered for its extension.
	MessageTypeOpenFile = "open_file"
	// MessageTypeCloseLeaf detaches a leaf.
	MessageTypeCloseLeaf = "close_leaf"
	// MessageTypeRevealLeaf focuses a leaf.
	MessageTypeRevealLeaf = "reveal_leaf"
)

// IncomingMessage is the minimal envelope used to route browser messages.
type IncomingMessage struct {
	Type string `json:"type"`
}

// ExecuteCommandMessage asks the host to run a palette command.
type ExecuteCommandMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RibbonClickMessage asks the host to invoke a ribbon action.
type RibbonClickMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// FileMessage carries a vault-relative path for set_active_file and open_file.
type FileMessage struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// LeafMessage addresses a single leaf for close_leaf and reveal_leaf.
type LeafMessage struct {
	Type   string `json:"type"`
	LeafID string `json:"leaf_id"`
}

// RegionState is the rendered content of one panel region.
type RegionState struct {
	Class string            `json:"class"`
	Attrs map[string]string `json:"attrs,omitempty"`
	HTML  string            `json:"html"`
}

// PanelState is the rendered content of a leaf's container.
type PanelState struct {
	Class   string        `json:"class"`
	Regions []RegionState `json:"regions"`
}

// LeafState describes one leaf and the view it hosts.
type LeafState struct {
	ID       string     `json:"id"`
	ViewType string     `json:"view_type"`
	Title    string     `json:"title"`
	File     string     `json:"file,omitempty"`
	Active   bool       `json:"active"`
	Panel    PanelState `json:"panel"`
}

// RibbonState describes one ribbon action.
type RibbonState struct {
	ID    string `json:"id"`
	Icon  string `json:"icon"`
	Title string `json:"title"`
}

// CommandState describes one palette command and whether it can run now.
type CommandState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// StateMessage carries the whole workspace to the browser.
type StateMessage struct {
	Type       string         `json:"type"`
	Rev        uint64         `json:"rev"`
	ActiveFile string         `json:"active_file,omitempty"`
	Files      []string       `json:"files"`
	Leaves     []LeafState    `json:"leaves"`
	Ribbon     []RibbonState  `json:"ribbon"`
	Commands   []CommandState `json:"commands"`
}

// NoticeMessage carries a transient notification to the browser.
type NoticeMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
