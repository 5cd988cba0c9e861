package gateway

import (
	"encoding/json"

	"charting-engine/internal/indicator"
)

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Server message types.
const (
	TypeSnapshot = "snapshot"
	TypeRecord   = "record"
	TypeError    = "error"
)

// ClientMessage is what a chart client sends over the socket. An empty
// Params selects the indicator's current defaults.
type ClientMessage struct {
	Action    string           `json:"action"`
	ReqID     string           `json:"reqId,omitempty"`
	Symbol    string           `json:"symbol"`
	Indicator string           `json:"indicator"`
	Params    indicator.Params `json:"params,omitempty"`
}

// ServerMessage is pushed to clients. Snapshot is set for TypeSnapshot,
// Index/Timestamp/Record for TypeRecord and Error for TypeError.
type ServerMessage struct {
	Type      string              `json:"type"`
	ReqID     string              `json:"reqId,omitempty"`
	Symbol    string              `json:"symbol,omitempty"`
	Indicator string              `json:"indicator,omitempty"`
	Params    indicator.Params    `json:"params,omitempty"`
	Snapshot  *indicator.Snapshot `json:"snapshot,omitempty"`
	Index     *int                `json:"index,omitempty"`
	Timestamp int64               `json:"ts,omitempty"`
	Record    indicator.Record    `json:"record,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func encode(msg ServerMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		data, _ = json.Marshal(ServerMessage{Type: TypeError, ReqID: msg.ReqID, Error: err.Error()})
	}
	return data
}

func errorMessage(req ClientMessage, err error) []byte {
	return encode(ServerMessage{
		Type:      TypeError,
		ReqID:     req.ReqID,
		Symbol:    req.Symbol,
		Indicator: req.Indicator,
		Error:     err.Error(),
	})
}
