package core

import "fmt"

// FlowState tracks where a federated login is
type FlowState int

const (
	FlowInitiated FlowState = iota
	FlowCallbackReceived
	FlowResolved
	FlowDenied
	FlowFailed
)

func (s FlowState) String() string {
	switch s {
	case FlowInitiated:
		return "initiated"
	case FlowCallbackReceived:
		return "callback_received"
	case FlowResolved:
		return "resolved"
	case FlowDenied:
		return "denied"
	case FlowFailed:
		return "failed"
	default:
		return fmt.Sprintf("FlowState(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible
func (s FlowState) Terminal() bool {
	return s == FlowResolved || s == FlowDenied || s == FlowFailed
}

// OAuthFlow is one federated login attempt
type OAuthFlow struct {
	Provider    string
	State       FlowState
	StateToken  string // opaque value echoed back by the provider
	RedirectURL string // set once Initiated
	Account     *Account
	Err         error
}

// CallbackParams are the query parameters a provider redirects back with
type CallbackParams struct {
	Code             string `query:"code"`
	State            string `query:"state"`
	Error            string `query:"error"`
	ErrorDescription string `query:"error_description"`
}

// Denied reports whether the user declined consent at the provider
func (p CallbackParams) Denied() bool {
	return p.Error == "access_denied"
}
