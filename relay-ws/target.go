package relayws

import (
	"fmt"
	"strings"
)

const (
	MessagePrefix = '@'
	CommandPrefix = '#'

	// Everybody addresses every registered connection when used after '@'.
	Everybody = "everybody"
)

type Kind int

const (
	Invalid Kind = iota
	Broadcast
	Direct
	Command
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Broadcast:
		return "broadcast"
	case Direct:
		return "direct"
	case Command:
		return "command"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Target is a classified envelope target. Recipient is set for Direct and
// Command; Err is set for Invalid.
type Target struct {
	Kind      Kind
	Recipient string
	Err       error
}

func Classify(target string) Target {
	if target == "" {
		return Target{Kind: Invalid, Err: ErrTargetMissing}
	}

	prefix, recipient := target[0], target[1:]
	switch prefix {
	case MessagePrefix:
		if strings.EqualFold(recipient, Everybody) {
			return Target{Kind: Broadcast}
		}
		if recipient == "" {
			return Target{Kind: Invalid, Err: fmt.Errorf("%w: %q", ErrRecipientMissing, target)}
		}
		return Target{Kind: Direct, Recipient: recipient}

	case CommandPrefix:
		if recipient == "" {
			return Target{Kind: Invalid, Err: fmt.Errorf("%w: %q", ErrRecipientMissing, target)}
		}
		return Target{Kind: Command, Recipient: recipient}

	default:
		return Target{Kind: Invalid, Err: fmt.Errorf("%w: %q", ErrBadPrefix, target)}
	}
}
