package mcpserver

import (
	"context"
	"errors"
	"fmt"

	terrors "github.com/temoa-dev/temoa/internal/errors"
)

// JSON-RPC error codes carried by tool failures. The -32xxx range below
// -32600 is reserved for the protocol; the -3200x block is ours.
const (
	codeVaultNotFound = -32001
	codeIndexBusy     = -32002
	codeTimeout       = -32003
	codeFileNotFound  = -32004

	codeInvalidParams = -32602
	codeInternal      = -32603
)

// Error is the JSON-RPC shaped error returned by tool handlers.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func invalidParams(msg string) *Error {
	return &Error{Code: codeInvalidParams, Message: msg}
}

// mapError converts engine errors to JSON-RPC errors so MCP clients get
// actionable codes instead of opaque internals.
func mapError(err error) *Error {
	if err == nil {
		return nil
	}

	var te *terrors.TemoaError
	if errors.As(err, &te) {
		return mapEngineError(te)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: codeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &Error{Code: codeTimeout, Message: "Request was canceled."}
	default:
		return &Error{Code: codeInternal, Message: "Internal server error."}
	}
}

func mapEngineError(te *terrors.TemoaError) *Error {
	message := te.Message
	if te.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", te.Message, te.Suggestion)
	}

	switch te.Category {
	case terrors.CategoryVault:
		code := codeVaultNotFound
		if te.Code == terrors.ErrCodeFileUnreadable {
			code = codeFileNotFound
		}
		return &Error{Code: code, Message: message}
	case terrors.CategoryIndex:
		return &Error{Code: codeIndexBusy, Message: message}
	case terrors.CategoryTimeout:
		return &Error{Code: codeTimeout, Message: message}
	case terrors.CategoryConfig:
		// A named but unknown vault reads as not-found, like the HTTP
		// layer's 404, not as a malformed request.
		if te.Code == terrors.ErrCodeUnknownVault {
			return &Error{Code: codeVaultNotFound, Message: message}
		}
		return &Error{Code: codeInvalidParams, Message: message}
	default:
		return &Error{Code: codeInternal, Message: message}
	}
}
