package peer

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Phase is the lifecycle position of a connection. It only moves forward.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseAwaitingHandshake
	PhaseEstablished
	PhaseDetaching
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseAwaitingHandshake:
		return "awaiting_handshake"
	case PhaseEstablished:
		return "established"
	case PhaseDetaching:
		return "detaching"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Flags are facts about the relationship that hold independently of Phase.
type Flags uint8

const (
	FlagHelloSent Flags = 1 << iota
	FlagMember
	FlagTrusted
	FlagNoLedgers
	FlagNoTransactions
	FlagDownlevel
)

func (f Flags) Has(x Flags) bool {
	return f&x == x
}

func (f Flags) String() string {
	names := []struct {
		flag Flags
		name string
	}{
		{FlagHelloSent, "hello_sent"},
		{FlagMember, "member"},
		{FlagTrusted, "trusted"},
		{FlagNoLedgers, "no_ledgers"},
		{FlagNoTransactions, "no_transactions"},
		{FlagDownlevel, "downlevel"},
	}
	var out []string
	for _, n := range names {
		if f.Has(n.flag) {
			out = append(out, n.name)
		}
	}
	return strings.Join(out, "|")
}

// Endpoint is a host and port pair.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

func (e Endpoint) String() string {
	if e.IsZero() {
		return ""
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
