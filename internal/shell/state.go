package shell

// State is a step of the guard state machine for one navigation.
type State int

const (
	// AuthPending means the identity of the request is not resolved yet.
	AuthPending State = iota
	// LoginRedirect sends an anonymous visitor to the login route.
	LoginRedirect
	// AccessPending means the session's permissions are still loading.
	AccessPending
	// AccessDenied means the role may not open the route.
	AccessDenied
	// ContentPending means the frame is out and the page is loading.
	ContentPending
	// ContentReady means the page has been rendered inside the frame.
	ContentReady
)

var stateNames = [...]string{
	AuthPending:    "auth_pending",
	LoginRedirect:  "login_redirect",
	AccessPending:  "access_pending",
	AccessDenied:   "access_denied",
	ContentPending: "content_pending",
	ContentReady:   "content_ready",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether a navigation stops in s.
func (s State) Terminal() bool {
	switch s {
	case LoginRedirect, AccessDenied, ContentReady:
		return true
	default:
		return false
	}
}

// Observer is told about every state a navigation passes through.
type Observer func(route string, s State)
