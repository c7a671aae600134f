// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

// Recorder receives flow and token outcome events, typically for metrics.
type Recorder interface {
	FlowCompleted(flow, outcome string)
	TokenIssued(purpose string)
	TokenRedeemed(purpose, result string)
}

// Redemption results reported to Recorder.TokenRedeemed.
const (
	RedeemSuccess     = "success"
	RedeemNotFound    = "not_found"
	RedeemExpired     = "expired"
	RedeemAlreadyUsed = "already_used"
	RedeemError       = "error"
)

type nopRecorder struct{}

func (nopRecorder) FlowCompleted(string, string) {}
func (nopRecorder) TokenIssued(string)           {}
func (nopRecorder) TokenRedeemed(string, string) {}
