package mcp

// JSONRPCVersion is the protocol version stamped on every message.
const JSONRPCVersion = "2.0"

// ErrorCode is a JSON-RPC 2.0 style error code.
type ErrorCode int

// Standard JSON-RPC 2.0 error codes plus the workflow domain codes. The
// numeric values are part of the wire contract and must not change.
const (
	ErrCodeParseError     ErrorCode = -32700
	ErrCodeInvalidRequest ErrorCode = -32600
	ErrCodeMethodNotFound ErrorCode = -32601
	ErrCodeInvalidParams  ErrorCode = -32602
	ErrCodeInternalError  ErrorCode = -32603

	ErrCodeWorkflowNotFound      ErrorCode = -32001
	ErrCodeWorkflowAlreadyExists ErrorCode = -32002
	ErrCodeStepExecutionFailed   ErrorCode = -32003
	ErrCodeUnauthorized          ErrorCode = -32004
	ErrCodeTimeout               ErrorCode = -32005
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Request is a tool invocation. A nil ID marks it as a fire-and-forget
// notification; otherwise the caller expects a Response echoing the ID.
// Requests are treated as immutable once constructed.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      *int64         `json:"id,omitempty"`
}

// Response carries exactly one of Result or Error, never both.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *Error         `json:"error,omitempty"`
	ID      *int64         `json:"id,omitempty"`
}

// IsSuccess reports whether the response carries a result and no error.
func (r *Response) IsSuccess() bool { return r.Error == nil && r.Result != nil }

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool { return r.Error != nil }

// Notification is a one-way message that expects no response.
type Notification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// BatchRequest groups several requests into one dispatch.
type BatchRequest struct {
	Requests []*Request `json:"requests"`
}

// BatchResponse holds one response per batched request, in order.
type BatchResponse struct {
	Responses []*Response `json:"responses"`
}

// NewRequest creates a request for the given tool. Pass a nil id for a
// notification-style call.
func NewRequest(id *int64, method string, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	}
}

// NewSuccessResponse creates a success response echoing the request id.
func NewSuccessResponse(id *int64, result map[string]any) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response echoing the request id.
func NewErrorResponse(id *int64, code ErrorCode, message string, data map[string]any) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}

// NewNotification creates a one-way notification message.
func NewNotification(method string, params map[string]any) *Notification {
	if params == nil {
		params = map[string]any{}
	}
	return &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	}
}
