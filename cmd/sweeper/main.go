// Sweeper is an optional companion process for the Marquee server.
// It sleeps until the next booking ends and then asks the server to sweep,
// so statuses flip close to the actual end time instead of on the next poll.
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/modules/booking"
)

type Config struct {
	ServerURL string        `env:",required"`
	KeyFile   string        `envDefault:"./api.pem"`
	MaxWait   time.Duration `envDefault:"5m"`
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic(err)
	}
	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "SWEEPER_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}

	issuer := engine.NewTokenIssuer(conf.KeyFile)
	client := booking.NewClient(conf.ServerURL, issuer.OAuth2(engine.ServiceClaims("sweeper", 10*time.Minute)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	run(ctx, client, conf.MaxWait)
}

type sweepClient interface {
	NextExpiry(ctx context.Context) (*time.Time, error)
	Sweep(ctx context.Context, asOf *time.Time) (int64, error)
}

func run(ctx context.Context, client sweepClient, maxWait time.Duration) {
	for ctx.Err() == nil {
		next, err := client.NextExpiry(ctx)
		if err != nil {
			slog.Error("failed to get next expiry from server", "error", err)
			jitterSleep(ctx, maxWait/10)
			continue
		}

		wait := maxWait
		if next != nil {
			wait = min(time.Until(*next), maxWait)
		}
		if wait > 0 {
			slog.Debug("waiting for next expiry", "next", next, "wait", wait)
			jitterSleep(ctx, wait)
			if next == nil || time.Now().Before(*next) {
				continue // woke up early, check again
			}
		}

		n, err := client.Sweep(ctx, nil)
		if err != nil {
			slog.Error("failed to sweep", "error", err)
			jitterSleep(ctx, maxWait/10)
			continue
		}
		slog.Info("swept expired bookings", "rows", n)
	}
}

// jitterSleep sleeps for roughly dur, returning early if ctx is done.
func jitterSleep(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur + time.Duration(float64(dur)*0.2*(rand.Float64()-0.5)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
