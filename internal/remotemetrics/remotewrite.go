package remotemetrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	obstracing "github.com/smallbiznis/duesledger/internal/observability/tracing"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const defaultPushTimeout = 5 * time.Second

// RemoteWritePusher sends one sample per treasury series to a Prometheus
// remote_write endpoint.
type RemoteWritePusher struct {
	endpoint       string
	authToken      string
	externalLabels map[string]string
	httpClient     *http.Client
	now            func() time.Time
}

// NewRemoteWritePusher adds externalLabels to every series that does not
// already carry them.
func NewRemoteWritePusher(endpoint, authToken string, externalLabels map[string]string) *RemoteWritePusher {
	labels := make(map[string]string, len(externalLabels))
	for k, v := range externalLabels {
		if k = strings.TrimSpace(k); k != "" && strings.TrimSpace(v) != "" {
			labels[k] = strings.TrimSpace(v)
		}
	}
	return &RemoteWritePusher{
		endpoint:       endpoint,
		authToken:      strings.TrimSpace(authToken),
		externalLabels: labels,
		httpClient:     obstracing.WrapHTTPClient(&http.Client{Timeout: defaultPushTimeout}),
		now:            time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather treasury gauges: %w", err)
	}
	series := buildRemoteWriteSeries(families, p.externalLabels, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	payload, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return fmt.Errorf("encode remote write: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("remote write returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func buildRemoteWriteSeries(families []*dto.MetricFamily, external map[string]string, timestampMs int64) []prompb.TimeSeries {
	var series []prompb.TimeSeries
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			value, ok := metricValue(family.GetType(), metric)
			if !ok {
				continue
			}
			seen := map[string]bool{"__name__": true}
			labels := []prompb.Label{{Name: "__name__", Value: family.GetName()}}
			for _, label := range metric.GetLabel() {
				seen[label.GetName()] = true
				labels = append(labels, prompb.Label{Name: label.GetName(), Value: label.GetValue()})
			}
			for name, v := range external {
				if !seen[name] {
					labels = append(labels, prompb.Label{Name: name, Value: v})
				}
			}
			sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })

			series = append(series, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: value, Timestamp: timestampMs}},
			})
		}
	}
	return series
}

// metricValue reads counters, gauges and untyped values. Histograms and
// summaries are not part of the treasury snapshot.
func metricValue(metricType dto.MetricType, metric *dto.Metric) (float64, bool) {
	if metric == nil {
		return 0, false
	}
	switch metricType {
	case dto.MetricType_COUNTER:
		if c := metric.GetCounter(); c != nil {
			return c.GetValue(), true
		}
	case dto.MetricType_GAUGE:
		if g := metric.GetGauge(); g != nil {
			return g.GetValue(), true
		}
	case dto.MetricType_UNTYPED:
		if u := metric.GetUntyped(); u != nil {
			return u.GetValue(), true
		}
	}
	return 0, false
}
