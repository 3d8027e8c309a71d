package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/binwatch/internal/models"
)

const defaultDispatchTimeout = 10 * time.Second

// Router partitions known sessions into live and offline and dispatches a
// bin-full alert over the matching transports. Both deliveries are best
// effort: a failure on one transport is logged and never blocks or fails
// the other, and nothing propagates to the ingest caller.
type Router struct {
	sessions Sessions
	live     LiveBroadcast
	push     PushGateway
	timeout  time.Duration
}

// NewRouter wires a router. A timeout <= 0 selects a default bound on each
// transport dispatch.
func NewRouter(sessions Sessions, live LiveBroadcast, push PushGateway, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Router{sessions: sessions, live: live, push: push, timeout: timeout}
}

// RouteAlert fans the alert for sample out. Devices with an open session
// get the live event; closed devices get a push. With no sessions tracked
// at all, both transports broadcast to everything known.
func (r *Router) RouteAlert(sample models.Sample) {
	payload := BinFullNotification(sample)

	open, err := r.sessions.ListOpen()
	if err != nil {
		log.Printf("[Router] Listing open sessions: %v", err)
	}
	closed, err := r.sessions.ListClosed()
	if err != nil {
		log.Printf("[Router] Listing closed sessions: %v", err)
	}
	log.Printf("[Router] Routing bin alert: %d open, %d closed", len(open), len(closed))

	var wg sync.WaitGroup

	sendLive := len(open) > 0
	sendPush := len(closed) > 0
	var tokens []string

	if sendPush {
		tokens, err = r.sessions.SessionTokens(closed)
		if err != nil {
			log.Printf("[Router] Collecting tokens: %v", err)
			sendPush = false
		}
	}

	if len(open) == 0 && len(closed) == 0 {
		// Fallback broadcast: nobody is tracked, reach everything known.
		sendLive = true
		tokens, err = r.sessions.AllTokens()
		if err != nil {
			log.Printf("[Router] Collecting all tokens: %v", err)
		}
		sendPush = true
		log.Printf("[Router] No tracked sessions, broadcasting to all (%d tokens)", len(tokens))
	}

	if sendLive {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.live.SendToAll("bin_alert", payload); err != nil {
				log.Printf("[Router] Live broadcast failed: %v", err)
			}
		}()
	}

	if sendPush && len(tokens) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			report, err := r.push.Send(ctx, payload.Title, payload.Body, payload.FillLevel, tokens)
			if err != nil {
				log.Printf("[Router] Push dispatch failed: %v", err)
				return
			}
			log.Printf("[Router] Push delivered %d/%d", report.SuccessCount, len(tokens))
		}()
	}

	wg.Wait()
}

func binFullBody(fillLevel float64) string {
	return fmt.Sprintf("The bin is %.0f%% full", fillLevel)
}
