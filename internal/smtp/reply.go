package smtp

import "fmt"

// Reply is the wire text sent back to the peer for one step. Every line
// ends in CRLF. The empty Reply means nothing is sent.
type Reply string

// Fixed replies.
const (
	ReplyNone     Reply = ""
	ReplyOK       Reply = "250 OK\r\n"
	ReplyAuthOK   Reply = "235 2.7.0 Authentication successful\r\n"
	ReplySendData Reply = "354 End data with <CR><LF>.<CR><LF>\r\n"
	ReplyBye      Reply = "221 Bye\r\n"
	ReplyShutdown Reply = "421 Service shutting down\r\n"
)

// capabilities is the fixed EHLO extension list.
var capabilities = []string{
	"AUTH PLAIN LOGIN",
	"HELP",
}

// greeting is the ready banner sent when a connection opens.
func greeting(domain string) Reply {
	return Reply(fmt.Sprintf("220 %s ESMTP haxmail\r\n", domain))
}

// ehloReply builds the multi-line EHLO response. All lines but the last
// use the "250-" continuation marker.
func ehloReply(domain, client string) Reply {
	r := fmt.Sprintf("250-%s Hello %s\r\n", domain, client)
	for _, c := range capabilities {
		r += "250-" + c + "\r\n"
	}
	return Reply(r + "250 OK\r\n")
}
