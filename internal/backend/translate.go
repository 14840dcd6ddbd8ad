package backend

import (
	"context"
	"errors"
	"net"

	"github.com/patrolpoint/patrolpoint/internal/report"
)

// The upstream login endpoint reports a wrong password as a plain detail
// string rather than a status code the client could branch on. The exact
// string is part of the upstream contract and is matched verbatim; it is
// confined to this file so nothing else in the codebase depends on it.
const wrongPasswordDetail = "Server error: 400: Password Incorrect"

// User-facing login messages.
const (
	MsgIncorrectPassword = "Incorrect password. Please try again."
	MsgLoginTimeout      = "Connection timeout. Please check your internet and try again."
	MsgLoginUnavailable  = "Unable to login. Please try again later."
)

// TranslateLoginError converts a login failure into a stable error kind and
// a user-facing message. The detail string is the backend's error envelope
// detail, empty when the request never produced a response. The login flow
// itself lives in the mobile client; this is the one place its backend
// error strings are interpreted.
func TranslateLoginError(detail string, err error) (error, string) {
	if detail == wrongPasswordDetail {
		return report.ErrAuth, MsgIncorrectPassword
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return report.ErrTimeout, MsgLoginTimeout
	}

	return report.ErrNetwork, MsgLoginUnavailable
}
