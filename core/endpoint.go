package core

type Endpoint struct {
	Path      string
	Method    string
	Protected bool // guarded by the access guard
	Metadata  EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
