// Package sms delivers commands as text messages through a Twilio-style
// REST gateway.
//
// The recipient number comes from the gateway device's metadata
// ("sms_phone" by default). Payloads are text, so SMS destinations pair
// with the JSON or expression encoders.
package sms
