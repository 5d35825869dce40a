package match

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	setups        metric.Int64Counter
	setupFailures metric.Int64Counter
	completed     metric.Int64Counter
	resets        metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	meter := mp.Meter("github.com/jensholdgaard/assault-pugbot/internal/match")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return noop.Int64Counter{}
		}
		return c
	}
	return &metrics{
		setups:        counter("pugbot.match.setups", "Matches provisioned on a game server"),
		setupFailures: counter("pugbot.match.setup_failures", "Match setups that failed after every attempt"),
		completed:     counter("pugbot.match.completed", "Matches played to the end"),
		resets:        counter("pugbot.match.resets", "Manual pug resets"),
	}
}
