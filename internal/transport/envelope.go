// Package transport holds the JSON-RPC 2.0 envelope shared by every
// concrete transport (pipe, WebSocket, HTTP): request/response/notification
// structs, the numeric error-code table, and the one request-handling
// routine each transport's connection loop calls into.
package transport

import (
	"encoding/json"

	"agentwatch/internal/rpc"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application error codes, reserved range -32000 to -32099.
const (
	codeUnauthorized = -32001
	codeForbidden    = -32002
	codeRateLimited  = -32003
	codeNotFound     = -32004
	codeStaleCursor  = -32005
	codeUnsupported  = -32006
	codeDegraded     = -32007
)

var rpcCodeTable = map[string]int{
	rpc.CodeUnauthorized:  codeUnauthorized,
	rpc.CodeForbidden:     codeForbidden,
	rpc.CodeRateLimited:   codeRateLimited,
	rpc.CodeNotFound:      codeNotFound,
	rpc.CodeStaleCursor:   codeStaleCursor,
	rpc.CodeUnsupported:   codeUnsupported,
	rpc.CodeDegraded:      codeDegraded,
	rpc.CodeInvalidParams: InvalidParams,
}

// Request is a JSON-RPC 2.0 request. A nil ID marks a notification: no
// response is expected and the call's result is discarded.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response: exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is a server-to-client push carrying no ID and expecting no
// response, e.g. a state change or a detected event.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// NewNotification builds a Notification for the given method/params.
func NewNotification(method string, params any) Notification {
	return Notification{JSONRPC: "2.0", Method: method, Params: params}
}

func success(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", Result: result, ID: id}
}

func errorResponse(id json.RawMessage, err *Error) Response {
	return Response{JSONRPC: "2.0", Error: err, ID: id}
}

func parseError(message string) *Error {
	return &Error{Code: ParseError, Message: message}
}

func invalidRequest(message string) *Error {
	return &Error{Code: InvalidRequest, Message: message}
}

// FromRPCError maps an *rpc.Error onto the JSON-RPC numeric error space,
// falling back to InternalError for any code not in the table.
func FromRPCError(err *rpc.Error) *Error {
	code, ok := rpcCodeTable[err.Code]
	if !ok {
		code = InternalError
	}
	return &Error{Code: code, Message: err.Message, Data: err.Data}
}

var nullID = json.RawMessage("null")

// HandleMessage parses one JSON-RPC request, dispatches it, and returns the
// response to send (nil for a notification, which expects none). This is
// the one routine every transport's connection loop calls, replacing the
// process_line/process_message/process_request duplicated across each
// transport.
func HandleMessage(dispatcher *rpc.Dispatcher, ctx *rpc.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := errorResponse(nullID, parseError("Invalid JSON: "+err.Error()))
		return &resp
	}

	if req.JSONRPC != "2.0" {
		id := req.ID
		if len(id) == 0 {
			id = nullID
		}
		resp := errorResponse(id, invalidRequest(`Expected jsonrpc: "2.0"`))
		return &resp
	}

	if len(req.ID) == 0 {
		// Notification: process for side effects, no response.
		dispatcher.Handle(ctx, req.Method, req.Params)
		return nil
	}

	result, rpcErr := dispatcher.Handle(ctx, req.Method, req.Params)
	if rpcErr != nil {
		resp := errorResponse(req.ID, FromRPCError(rpcErr))
		return &resp
	}
	resp := success(req.ID, result)
	return &resp
}
