package bus

import (
	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/domain"
)

// InboundMessage is a child command received from a broker. Callback names
// the channel the reply goes to; an empty callback means fire-and-forget.
type InboundMessage struct {
	Source        string      `json:"source,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Callback      string      `json:"callback,omitempty"`
	User          domain.User `json:"user"`
	Command       app.Command `json:"command"`
}

// OutboundMessage is the reply to an InboundMessage. Exactly one of Reply and
// Error is set.
type OutboundMessage struct {
	Callback      string     `json:"-"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Status        int        `json:"status"`
	Reply         *app.Reply `json:"reply,omitempty"`
	Error         string     `json:"error,omitempty"`
	Code          string     `json:"code,omitempty"`
}
