package schemas

// -- Remote Browser Session Schemas --

// Session mirrors the server-authoritative browser session descriptor.
// The ID is immutable once created; every other field is refreshed wholesale.
type Session struct {
	ID         string `json:"id"`
	IsActive   bool   `json:"is_active"`
	CurrentURL string `json:"current_url,omitempty"`
	Title      string `json:"title,omitempty"`
}

// CreateSessionOptions parameterizes POST /browser/sessions.
type CreateSessionOptions struct {
	BrowserType string `json:"browser_type,omitempty"`
	Headless    bool   `json:"headless,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	ViewportW   int    `json:"viewport_width,omitempty"`
	ViewportH   int    `json:"viewport_height,omitempty"`
}

// AXNode is one node of the accessibility tree snapshot. Children keep the
// order the server reported them in.
type AXNode struct {
	Role        string          `json:"role"`
	Name        string          `json:"name,omitempty"`
	Value       string          `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
	State       map[string]bool `json:"state,omitempty"`
	Selector    string          `json:"selector,omitempty"`
	Children    []AXNode        `json:"children,omitempty"`
}

// AXTree is the full accessibility snapshot: the tree root plus the server's
// flattened list of interactive elements. Snapshots are always replaced as a
// whole, never patched.
type AXTree struct {
	Root                *AXNode  `json:"root,omitempty"`
	InteractiveElements []AXNode `json:"interactive_elements,omitempty"`
}

// NavigateRequest parameterizes POST /browser/sessions/{id}/navigate.
// Timeout is a pass-through honored only by the server; the client enforces
// no timeout of its own.
type NavigateRequest struct {
	URL       string `json:"url"`
	WaitUntil string `json:"wait_until,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}

// ClickRequest parameterizes the click action.
type ClickRequest struct {
	Selector string `json:"selector"`
	Verify   bool   `json:"verify,omitempty"`
}

// TypeRequest parameterizes the type action.
type TypeRequest struct {
	Selector   string `json:"selector"`
	Text       string `json:"text"`
	ClearFirst bool   `json:"clear_first,omitempty"`
}

// ExtractRequest parameterizes the extract action.
type ExtractRequest struct {
	Selector string `json:"selector"`
}

// ActionResult is the server's verdict on a single browser action.
// Uncertain is orthogonal to Success: an action can complete yet remain
// unverified, and that state must not be folded into the error path.
type ActionResult struct {
	Success            bool           `json:"success"`
	Message            string         `json:"message,omitempty"`
	ElementFound       bool           `json:"element_found"`
	VerificationPassed bool           `json:"verification_passed"`
	Error              string         `json:"error,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
	Uncertain          bool           `json:"uncertain,omitempty"`
	UncertainResponse  string         `json:"uncertain_response,omitempty"`
}
