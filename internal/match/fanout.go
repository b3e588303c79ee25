package match

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/metrics"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/ws"
)

// fanOut pushes the notification to every connection except exclude, in
// parallel, and waits for all of them. Failures are logged and counted only.
func (s *Service) fanOut(ctx context.Context, action string, md *game.Metadata, connectionIDs []string, exclude string) {
	payload, err := json.Marshal(SocketMessage{Action: action, Metadata: md})
	if err != nil {
		log.Printf("[FANOUT] marshal %s: %v", action, err)
		return
	}

	seen := make(map[string]bool, len(connectionIDs))
	var wg sync.WaitGroup
	for _, id := range connectionIDs {
		if id == "" || id == exclude || seen[id] {
			continue
		}
		seen[id] = true

		wg.Add(1)
		go func(connectionID string) {
			defer wg.Done()
			pushCtx := ctx
			if s.opts.PushTimeout > 0 {
				var cancel context.CancelFunc
				pushCtx, cancel = context.WithTimeout(ctx, s.opts.PushTimeout)
				defer cancel()
			}

			err := s.pusher.Push(pushCtx, connectionID, payload)
			switch {
			case err == nil:
				s.metrics.Push(metrics.PushDelivered)
			case errors.Is(err, ws.ErrGone):
				s.metrics.Push(metrics.PushGone)
				log.Printf("[FANOUT] %s: connection %s is gone", action, connectionID)
			default:
				s.metrics.Push(metrics.PushFailed)
				log.Printf("[FANOUT] %s: push to %s failed: %v", action, connectionID, err)
			}
		}(id)
	}
	wg.Wait()
}
