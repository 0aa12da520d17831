// Package queue defines message payloads exchanged over the message broker.
package queue

// VerificationEmailQueue is the durable queue carrying verification
// email requests to whatever worker delivers them.
const VerificationEmailQueue = "email.verification"

// VerificationEmailEvent is published whenever an account needs its
// email address confirmed. It contains everything a downstream mailer
// needs without querying the primary database.
type VerificationEmailEvent struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	OTP       string `json:"otp"`
	IssuedAt  string `json:"issued_at"`
}
