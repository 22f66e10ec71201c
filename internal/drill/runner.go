package drill

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/guildboard/pkg/logger"
)

// Run executes the drill against cfg.BaseURL.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Stats, error) {
	cfg.withDefaults()
	if log == nil {
		log = logger.Discard()
	}
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting drill",
		logger.String("base_url", cfg.BaseURL),
		logger.String("kind", cfg.Kind),
		logger.Duration("duration", cfg.Duration),
		logger.Int("workers", cfg.Workers),
	)

	// Step 1: Check service health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Create the event
	var ev Event
	if err := c.do(ctx, http.MethodPost, "/events", map[string]string{
		"kind":     cfg.Kind,
		"duration": cfg.Duration.String(),
	}, &ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	stats.EventID = ev.ID
	log.Info(ctx, "event created", logger.String("event_id", ev.ID))

	// Step 3: Enroll players concurrently
	players := cfg.Players
	if len(players) == 0 {
		players = generatePlayers(cfg.NumPlayers)
	}
	if err := enroll(ctx, c, cfg.Workers, ev.ID, players); err != nil {
		return nil, err
	}
	stats.Enrolled = len(players)

	// Step 4: Enrolling the same player twice must conflict
	err := c.do(ctx, http.MethodPost, "/events/"+ev.ID+"/participants", map[string]string{"player_id": players[0]}, nil)
	if statusOf(err) != http.StatusConflict {
		return nil, fmt.Errorf("duplicate enrollment answered %v: %w", err, ErrVerification)
	}

	// Step 5: Activate, then end early
	if err := c.do(ctx, http.MethodPost, "/events/"+ev.ID+"/activate", nil, &ev); err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	log.Info(ctx, "event activated", logger.String("event_id", ev.ID))
	if err := c.do(ctx, http.MethodPost, "/events/"+ev.ID+"/end", nil, nil); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	// Step 6: Read back the roster; its positions decide ties
	var view Event
	if err := c.do(ctx, http.MethodGet, "/events/"+ev.ID, nil, &view); err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if len(view.Participants) != len(players) {
		return nil, fmt.Errorf("roster has %d of %d players: %w", len(view.Participants), len(players), ErrVerification)
	}

	// Step 7: Poll the result
	res, err := pollResult(ctx, c, ev.ID, cfg.PollInterval, cfg.ResultWait)
	if err != nil {
		return nil, err
	}

	// Step 8: Verify
	if err := Verify(res, view.Participants); err != nil {
		return nil, err
	}
	stats.Scored = len(res.Standings)
	stats.Unscored = len(res.Unscored)
	stats.Duration = time.Since(stats.StartTime)

	log.Info(ctx, "drill completed",
		logger.String("event_id", stats.EventID),
		logger.Int("enrolled", stats.Enrolled),
		logger.Int("scored", stats.Scored),
		logger.Int("unscored", stats.Unscored),
		logger.Duration("took", stats.Duration),
	)
	return stats, nil
}

func generatePlayers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = uuid.NewString()
	}
	return out
}

func enroll(ctx context.Context, c *client, workers int, eventID string, players []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range players {
		g.Go(func() error {
			body := map[string]string{"player_id": p, "display_name": fmt.Sprintf("player-%02d", i)}
			if err := c.do(gctx, http.MethodPost, "/events/"+eventID+"/participants", body, nil); err != nil {
				return fmt.Errorf("enroll %s: %w", p, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func pollResult(ctx context.Context, c *client, eventID string, every, wait time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		var res Result
		err := c.do(ctx, http.MethodGet, "/events/"+eventID+"/result", nil, &res)
		if err == nil {
			return res, nil
		}
		if statusOf(err) != http.StatusConflict {
			return Result{}, fmt.Errorf("result: %w", err)
		}
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("result not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
