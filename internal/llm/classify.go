// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Classify maps an error from the chat backend to the HTTP status and
// detail message reported to API clients.
func Classify(err error) (int, string) {
	if errors.Is(err, ErrMissingConfig) {
		return http.StatusUnauthorized, "Azure OpenAI configuration missing"
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, "Azure OpenAI authentication failed"
		case http.StatusForbidden:
			return http.StatusForbidden, "Azure OpenAI permission denied"
		}
	}

	if isTimeout(err) {
		return http.StatusGatewayTimeout, "Azure OpenAI request timed out"
	}
	if isNetwork(err) {
		return http.StatusBadGateway, "Azure OpenAI network error"
	}
	return http.StatusServiceUnavailable, "LLM unavailable"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNetwork(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
