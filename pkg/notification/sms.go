package notification

import (
	"context"
	"strings"
)

// Carrier email-to-SMS gateway suffixes. A message addressed to
// <number>@<suffix> reaches the phone as a text.
var carrierGateways = map[string]string{
	"att":        "txt.att.net",
	"tmobile":    "tmomail.net",
	"verizon":    "vtext.com",
	"sprint":     "messaging.sprintpcs.com",
	"boost":      "sms.myboostmobile.com",
	"cricket":    "sms.cricketwireless.net",
	"metro":      "mymetropcs.com",
	"uscellular": "email.uscc.net",
	"virgin":     "vmobl.com",
}

// Unknown carrier: blast the three largest gateways and let the wrong ones
// bounce.
var fallbackCarriers = []string{"att", "tmobile", "verizon"}

const smsMaxLen = 160

// SendSMS routes a short message through a carrier email gateway. Same
// retry/backoff contract as Send.
func (m *Mailer) SendSMS(ctx context.Context, phone, carrier, message string) *Receipt {
	if phone == "" {
		return nil
	}
	var recipients []string
	if suffix, ok := carrierGateways[strings.ToLower(carrier)]; ok {
		recipients = []string{phone + "@" + suffix}
	} else {
		for _, c := range fallbackCarriers {
			recipients = append(recipients, phone+"@"+carrierGateways[c])
		}
	}
	if len(message) > smsMaxLen {
		message = message[:smsMaxLen]
	}
	return m.send(ctx, &Message{
		To:      recipients,
		Subject: "SOS ALERT",
		Text:    message,
	})
}
