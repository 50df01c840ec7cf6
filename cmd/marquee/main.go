// Marquee is the main server.
// It owns the sqlite database and decides which bookings may occupy which rooms.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
	"github.com/marquee-cinema/marquee/modules/auth"
	"github.com/marquee-cinema/marquee/modules/booking"
	"github.com/marquee-cinema/marquee/modules/calendar"
	"github.com/marquee-cinema/marquee/modules/core"
	"github.com/marquee-cinema/marquee/modules/email"
	"github.com/marquee-cinema/marquee/modules/metrics"
	"github.com/marquee-cinema/marquee/modules/payment"
	"github.com/marquee-cinema/marquee/modules/publisher"
	"github.com/marquee-cinema/marquee/modules/pruning"
)

type Config struct {
	HttpAddr string `envDefault:":8080"`
	Dir      string

	// Timezone is used to interpret the dates and times of booking requests.
	Timezone      string        `envDefault:"America/Chicago"`
	SweepInterval time.Duration `envDefault:"1m"`

	StripeKey        string
	StripeWebhookKey string

	EmailFrom        string
	EmailDisplayName string `envDefault:"Marquee Cinema"`

	// AMQPURL enables publishing booking events to RabbitMQ.
	AMQPURL      string
	AMQPExchange string `envDefault:"marquee.bookings"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic(err)
	}
	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "MARQUEE_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		err := engine.CheckHealthProbe("http://localhost:8080/healthz") // assume server is running on the default port
		if err != nil {
			panic(err)
		}
		return
	}

	var sender email.Sender
	if conf.EmailFrom != "" {
		sender = email.NewGoogleSmtpSender(conf.EmailFrom, conf.EmailDisplayName)
	}

	app, _, err := newApp(conf, getSelfURL(conf), sender)
	if err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	app.Run(ctx)
}

func newApp(conf Config, self *url.URL, sender email.Sender) (*engine.App, *sql.DB, error) {
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("loading timezone: %w", err)
	}
	engine.SetLocation(loc)

	database, err := db.Open(filepath.Join(conf.Dir, "marquee.sqlite3"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	router := engine.NewRouter(nil)
	router.HandleFunc("GET", "/healthz", engine.ServeHealthProbe(database))
	a := engine.NewApp(conf.HttpAddr, router)

	issuer := engine.NewTokenIssuer(filepath.Join(conf.Dir, "api.pem"))
	events := engine.NewEventLogger(database)

	coreModule := core.New(database)
	authModule, err := auth.New(database, issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("creating auth module: %w", err)
	}
	a.Router.Authenticator = authModule // IMPORTANT: before any module attaches routes

	a.Add(coreModule)
	a.Add(email.New(database, sender))

	paymentModule := payment.New(database, self, conf.StripeKey, conf.StripeWebhookKey, events)
	a.Add(paymentModule)

	checkins := engine.NewValueSignerWithKey[int64](issuer.DeriveKey("checkin"))
	bookingModule := booking.New(database, loc, paymentModule, events, checkins)
	bookingModule.SweepInterval = conf.SweepInterval
	a.Add(bookingModule)

	var sink publisher.Sink
	if conf.AMQPURL != "" {
		amqpSink := publisher.NewAMQPSink(conf.AMQPURL, conf.AMQPExchange)
		a.ProcMgr.Add(func(ctx context.Context) error {
			<-ctx.Done()
			amqpSink.Close()
			return ctx.Err()
		})
		sink = amqpSink
	} else {
		slog.Info("booking events will be logged instead of published because an AMQP URL was not configured")
	}
	a.Add(publisher.New(database, sink))

	a.Add(calendar.New(database, self, bookingModule, loc))
	a.Add(metrics.New(database))
	a.Add(pruning.New(database))

	return a, database, nil
}

func getSelfURL(conf Config) *url.URL {
	str := os.Getenv("SELF_URL")
	if str == "" {
		conn, err := net.Dial("udp4", "8.8.8.8:53")
		if err != nil {
			panic(err)
		}
		conn.Close()

		_, port, _ := net.SplitHostPort(conf.HttpAddr)
		str = fmt.Sprintf("http://%s:%s", conn.LocalAddr().(*net.UDPAddr).IP, port)
		slog.Info("discovered self URL", "url", str)
	}

	self, err := url.Parse(str)
	if err != nil {
		panic(err)
	}
	return self
}
