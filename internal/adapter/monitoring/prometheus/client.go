package prometheus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
)

// podLabel is the series label carrying the pod id
const podLabel = "pod"

// Usage queries, %s is a label matcher value for podLabel
const (
	cpuQuery    = `100 * sum by (pod) (rate(container_cpu_usage_seconds_total{pod=~"%s"}[1m]))`
	memoryQuery = `100 * sum by (pod) (container_memory_working_set_bytes{pod=~"%s"}) / sum by (pod) (container_spec_memory_limit_bytes{pod=~"%s"})`
	diskQuery   = `100 * sum by (pod) (container_fs_usage_bytes{pod=~"%s"}) / sum by (pod) (container_fs_limit_bytes{pod=~"%s"})`
)

type monitoringService struct {
	prometheusURL string
	client        *http.Client
	log           *zap.Logger
}

func NewMonitoringService(promURL string, timeout time.Duration, log *zap.Logger) port.MonitoringService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &monitoringService{
		prometheusURL: strings.TrimRight(promURL, "/"),
		client:        &http.Client{Timeout: timeout},
		log:           log,
	}
}

// Prometheus API response structure
type prometheusResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  interface{}       `json:"value"`
		} `json:"result"`
	} `json:"data"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
}

func (s *monitoringService) GetPodMetrics(ctx context.Context, podID string) (domain.ResourceUsage, error) {
	all, err := s.queryUsage(ctx, regexpQuote(podID))
	if err != nil {
		return domain.ResourceUsage{}, err
	}
	usage, ok := all[podID]
	if !ok {
		return domain.ResourceUsage{}, fmt.Errorf("no metrics for pod %s", podID)
	}
	return usage, nil
}

func (s *monitoringService) GetAllPodMetrics(ctx context.Context) (map[string]domain.ResourceUsage, error) {
	return s.queryUsage(ctx, ".+")
}

// queryUsage runs the three usage queries. CPU is required, memory and disk are
// filled in when available.
func (s *monitoringService) queryUsage(ctx context.Context, matcher string) (map[string]domain.ResourceUsage, error) {
	cpu, err := s.queryVector(ctx, fmt.Sprintf(cpuQuery, matcher))
	if err != nil {
		return nil, fmt.Errorf("cpu query: %w", err)
	}
	mem, err := s.queryVector(ctx, fmt.Sprintf(memoryQuery, matcher, matcher))
	if err != nil {
		s.log.Warn("Memory query failed, reporting cpu only", zap.Error(err))
	}
	disk, err := s.queryVector(ctx, fmt.Sprintf(diskQuery, matcher, matcher))
	if err != nil {
		s.log.Warn("Disk query failed, reporting without disk usage", zap.Error(err))
	}

	usage := make(map[string]domain.ResourceUsage, len(cpu))
	for pod, v := range cpu {
		usage[pod] = domain.ResourceUsage{
			CPUPercent:    v,
			MemoryPercent: mem[pod],
			DiskPercent:   disk[pod],
		}
	}
	return usage, nil
}

// queryVector runs an instant query and returns the samples keyed by pod label
func (s *monitoringService) queryVector(ctx context.Context, query string) (map[string]float64, error) {
	reqURL := fmt.Sprintf("%s/api/v1/query?query=%s", s.prometheusURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("prometheus returned status %d: %s", resp.StatusCode, string(body))
	}

	var result prometheusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("JSON decode failed: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("prometheus error: %s (%s)", result.Error, result.ErrorType)
	}

	samples := make(map[string]float64, len(result.Data.Result))
	for _, r := range result.Data.Result {
		pod := r.Metric[podLabel]
		if pod == "" {
			continue
		}
		v, err := parseValue(r.Value)
		if err != nil {
			s.log.Debug("Skipping unparsable sample", zap.String("pod", pod), zap.Error(err))
			continue
		}
		// 0/0 ratios come back as NaN, e.g. a container without a memory limit
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.log.Debug("Skipping non-finite sample", zap.String("pod", pod), zap.Float64("value", v))
			continue
		}
		samples[pod] = v
	}
	return samples, nil
}

// parseValue handles both [timestamp, "value"] pairs and bare numbers
func parseValue(value interface{}) (float64, error) {
	switch v := value.(type) {
	case []interface{}:
		if len(v) < 2 {
			return 0, fmt.Errorf("unexpected value array length: %d", len(v))
		}
		switch valRaw := v[1].(type) {
		case string:
			return strconv.ParseFloat(valRaw, 64)
		case float64:
			return valRaw, nil
		default:
			return 0, fmt.Errorf("unexpected value type in array: %T", valRaw)
		}
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unexpected value format: %T (%v)", value, value)
	}
}

// regexpQuote escapes a literal for use inside a PromQL =~ matcher
func regexpQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteString(`\\`)
		}
		b.WriteRune(r)
	}
	return b.String()
}
