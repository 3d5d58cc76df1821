package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SagaSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buddychat_saga_steps_total",
		Help: "Messaging saga steps by step name and outcome",
	}, []string{"step", "outcome"})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buddychat_ws_clients",
		Help: "Connected websocket clients",
	})

	WSTopics = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buddychat_ws_topics",
		Help: "Topics with an open store subscription",
	})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{SagaSteps, WSClients, WSTopics} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
