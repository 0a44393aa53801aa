// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

// Transport-level error codes.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL"
)

// Problem is the JSON error body.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type problem struct {
	status  int
	message string
}

// problems maps lifecycle error codes to responses. Messages are fixed text
// so error context (emails, store details) never reaches clients.
var problems = map[string]problem{
	account.CodeInvalidEmailFormat:     {http.StatusBadRequest, "email address is not valid"},
	account.CodeWeakPassword:           {http.StatusBadRequest, "password does not meet the password policy"},
	account.CodeUserNotFound:           {http.StatusNotFound, "no account with that email"},
	account.CodeDuplicateEmail:         {http.StatusConflict, "an account with that email already exists"},
	account.CodeAlreadyActive:          {http.StatusConflict, "account is already active"},
	account.CodeConcurrentModification: {http.StatusConflict, "account was modified concurrently, retry the request"},
	account.CodeInvalidCredentials:     {http.StatusUnauthorized, "invalid email or password"},
	account.CodeAccountNotActive:       {http.StatusForbidden, "account is not active"},
	account.CodeStoreUnavailable:       {http.StatusServiceUnavailable, "credential store is unavailable"},
}

// StatusFor returns the HTTP status and public code for err.
func StatusFor(err error) (int, string) {
	code := errutil.Code(err)
	if p, ok := problems[code]; ok {
		return p.status, code
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	message := "internal error"
	if p, ok := problems[code]; ok {
		message = p.message
	}
	writeProblem(w, status, code, message)
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Problem{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(body)
}
