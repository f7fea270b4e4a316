package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeInvite formats the UDP match invitation sent from the server to the
// challenged client: "<challenger>/<tcpPort>".
func EncodeInvite(challenger string, tcpPort int) []byte {
	return []byte(fmt.Sprintf("%s/%d", challenger, tcpPort))
}

// EncodeInviteTimeout formats the follow-up UDP datagram sent to the
// challenged client when the invitation expires unanswered.
func EncodeInviteTimeout(challenger string) []byte {
	return []byte("TIMEOUT/" + challenger)
}

// MatchFrame is one `<body>/<nick>` frame exchanged over a match TCP
// connection, disambiguated by the nickname of the player that produced (or,
// for server-sent frames, targets) it.
type MatchFrame struct {
	Body     string
	Nickname string
}

// DecodeMatchFrame splits a raw `<body>/<nick>` line into its components.
func DecodeMatchFrame(line string) (MatchFrame, error) {
	idx := strings.LastIndexByte(line, '/')
	if idx < 0 {
		return MatchFrame{}, fmt.Errorf("protocol: malformed match frame %q", line)
	}
	return MatchFrame{Body: line[:idx], Nickname: line[idx+1:]}, nil
}

// EncodeMatchFrame renders a MatchFrame back onto the wire.
func EncodeMatchFrame(f MatchFrame) []byte {
	return []byte(f.Body + "/" + f.Nickname)
}

// EncodeMatchEnd formats the terminal match-channel frame carrying the
// human-readable result text.
func EncodeMatchEnd(result string) []byte {
	return []byte("END/" + result)
}

// IsInviteAccepted reports whether a UDP invitation response byte is "Y".
func IsInviteAccepted(response string) bool {
	return response == "Y"
}

// IsInviteRefused reports whether a UDP invitation response byte is "N".
func IsInviteRefused(response string) bool {
	return response == "N"
}

// ParseAcceptedPort extracts the ephemeral TCP port from an accepted-match
// notice of the form "<nick> accepted your match invitation./<port>".
func ParseAcceptedPort(notice string) (int, error) {
	idx := strings.LastIndexByte(notice, '/')
	if idx < 0 {
		return 0, fmt.Errorf("protocol: malformed acceptance notice %q", notice)
	}
	return strconv.Atoi(notice[idx+1:])
}
