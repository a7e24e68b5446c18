package webhook

import "strings"

// InboundMessage is the gateway's webhook payload for one received WhatsApp
// message.
type InboundMessage struct {
	MessageID string `json:"messageId" validate:"required"`
	From      string `json:"from" validate:"required"`
	PushName  string `json:"pushName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// SenderPhone strips the gateway's JID suffix ("31612345678@s.whatsapp.net")
// down to the bare number.
func (m InboundMessage) SenderPhone() string {
	phone := m.From
	if idx := strings.IndexByte(phone, '@'); idx >= 0 {
		phone = phone[:idx]
	}
	return phone
}

// AckResponse is returned to the gateway; processing happens asynchronously.
type AckResponse struct {
	Status string `json:"status"`
}
