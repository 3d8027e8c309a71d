package notify

import (
	"context"

	"github.com/binwatch/internal/models"
)

// LiveBroadcast pushes an event to every connected live endpoint. The
// transport has no per-device targeting; a broadcast reaches all open
// connections.
type LiveBroadcast interface {
	SendToAll(event string, payload any) error
}

// PushGateway delivers a notification to devices without a live
// connection, addressed by opaque tokens.
type PushGateway interface {
	Send(ctx context.Context, title, body string, fillLevel float64, tokens []string) (PushReport, error)
}

// PushReport summarizes one gateway call.
type PushReport struct {
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
	Results      []PushResult `json:"results,omitempty"`
}

// PushResult is the outcome for a single token.
type PushResult struct {
	Token string `json:"token"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Sessions is the view of the session registry the router needs.
type Sessions interface {
	ListOpen() ([]string, error)
	ListClosed() ([]string, error)
	SessionTokens(deviceIDs []string) ([]string, error)
	AllTokens() ([]string, error)
}

// BinFullNotification builds the alert payload for a sample.
func BinFullNotification(s models.Sample) models.Notification {
	return models.Notification{
		Title:     "Bin alert",
		Body:      binFullBody(s.FillLevel),
		Type:      "bin_full",
		FillLevel: s.FillLevel,
		Timestamp: s.Timestamp,
	}
}
