//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// mockgen is invoked through `go generate` on contract/contract.go and must be
// tracked in go.mod so a fresh checkout can regenerate mocks/.
package pet_chat

import (
	_ "go.uber.org/mock/mockgen"
)
