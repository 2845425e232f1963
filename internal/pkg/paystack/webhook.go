package paystack

import (
	"encoding/json"
	"errors"
)

// Webhook event names the ledger reacts to.
const (
	EventChargeSuccess    = "charge.success"
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is a decoded webhook body. Data is kept raw so it can be stored
// as an audit payload without re-encoding.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EventData holds the fields shared by charge and transfer events.
type EventData struct {
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	AmountMinor  int64  `json:"amount"`
	TransferCode string `json:"transfer_code"`
	Reason       string `json:"reason"`
}

// ParseEvent decodes a webhook body. Call it only after VerifySignature.
func ParseEvent(rawBody []byte) (*Event, *EventData, error) {
	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, nil, errors.Join(ErrMalformedEvent, err)
	}
	if ev.Event == "" {
		return nil, nil, ErrMalformedEvent
	}

	var data EventData
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return nil, nil, errors.Join(ErrMalformedEvent, err)
		}
	}
	return &ev, &data, nil
}
