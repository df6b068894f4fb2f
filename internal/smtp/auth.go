// Package smtp implements a capture-only SMTP server: a pure session state
// machine, a per-connection driver that frames lines and hands finished
// messages to a store, and the accept loop.
package smtp

import (
	"encoding/base64"
	"strings"
)

// authAttempt describes what a client offered on an AUTH line. Credentials
// are never checked; the values are only logged.
type authAttempt struct {
	Mechanism string
	Identity  string
}

// parseAuth extracts the mechanism and, for inline AUTH PLAIN, the
// authentication identity from the argument of an AUTH command.
func parseAuth(arg string) authAttempt {
	parts := strings.Fields(arg)
	if len(parts) == 0 {
		return authAttempt{}
	}

	a := authAttempt{Mechanism: strings.ToUpper(parts[0])}
	if a.Mechanism == "PLAIN" && len(parts) > 1 {
		a.Identity = plainIdentity(parts[1])
	}
	return a
}

// plainIdentity decodes an AUTH PLAIN response, base64(authzid\0authcid\0password),
// and returns the authcid. It returns "" if the response is malformed.
func plainIdentity(encoded string) string {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
