package fleet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shopfleet/service_layer/internal/httputil"
)

// Target is a live fleet member to poll.
type Target struct {
	Name    string // service name, e.g. OrderService
	BaseURL string
}

// ProbeResult is what one member answered on the fleet paths.
type ProbeResult struct {
	Target         Target
	StatusCode     int
	State          string
	Message        string
	StatusFields   []string
	DescribeCode   int
	Operations     int
	DescribeFields []string
	Latency        time.Duration
	Err            error
}

// Healthy reports whether the member answered UP on both fleet paths.
func (r ProbeResult) Healthy() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK && r.State == "UP" && r.DescribeCode == http.StatusOK
}

// ProberConfig configures a Prober.
type ProberConfig struct {
	Timeout    time.Duration
	MaxRetries int
	Transport  http.RoundTripper
}

// Prober polls members through the fleet convention's paths only, so any
// conforming member can be polled without per-service configuration.
type Prober struct {
	conv Convention
	cfg  ProberConfig
}

// NewProber returns a prober for conv.
func NewProber(conv Convention, cfg ProberConfig) *Prober {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Prober{conv: conv.WithDefaults(), cfg: cfg}
}

// Probe polls every target concurrently. Results are returned in target order.
func (p *Prober) Probe(ctx context.Context, targets []Target) []ProbeResult {
	results := make([]ProbeResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results[i] = p.probeOne(ctx, target)
		}(i, target)
	}
	wg.Wait()
	return results
}

func (p *Prober) probeOne(ctx context.Context, target Target) ProbeResult {
	result := ProbeResult{Target: target}
	client := httputil.NewServiceClient(httputil.ServiceClientConfig{
		BaseURL:    target.BaseURL,
		Timeout:    p.cfg.Timeout,
		MaxRetries: p.cfg.MaxRetries,
		Transport:  p.cfg.Transport,
	})

	start := time.Now()
	code, body, err := fetch(ctx, client, p.conv.StatusPath)
	result.Latency = time.Since(start)
	if err != nil {
		result.Err = fmt.Errorf("status: %w", err)
		return result
	}
	result.StatusCode = code
	result.State = gjson.GetBytes(body, "state").String()
	result.Message = gjson.GetBytes(body, "message").String()
	result.StatusFields = topLevelKeys(body)

	code, body, err = fetch(ctx, client, p.conv.DescriptorPath(target.Name))
	if err != nil {
		result.Err = fmt.Errorf("describe: %w", err)
		return result
	}
	result.DescribeCode = code
	result.Operations = int(gjson.GetBytes(body, "operations.#").Int())
	result.DescribeFields = topLevelKeys(body)
	return result
}

func fetch(ctx context.Context, client *httputil.ServiceClient, path string) (int, []byte, error) {
	resp, err := client.Get(ctx, path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode == http.StatusOK && !gjson.ValidBytes(body) {
		return resp.StatusCode, body, errors.New("response is not valid JSON")
	}
	return resp.StatusCode, body, nil
}

func topLevelKeys(body []byte) []string {
	var keys []string
	gjson.ParseBytes(body).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	sort.Strings(keys)
	return keys
}

// CheckConsistency verifies probe results the way the fleet convention
// requires: every member is UP, names itself in its status message, and
// serves the same payload field sets as every other member.
func CheckConsistency(results []ProbeResult) error {
	var problems []error
	var refStatus, refDescribe []string
	var refName string

	for _, r := range results {
		name := r.Target.Name
		if r.Err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", name, r.Err))
			continue
		}
		if !r.Healthy() {
			problems = append(problems, fmt.Errorf("%s: status %d state %q, describe %d", name, r.StatusCode, r.State, r.DescribeCode))
			continue
		}
		if !strings.Contains(r.Message, name) {
			problems = append(problems, fmt.Errorf("%s: status message %q does not name the service", name, r.Message))
		}
		if refName == "" {
			refName, refStatus, refDescribe = name, r.StatusFields, r.DescribeFields
			continue
		}
		if !equalStrings(refStatus, r.StatusFields) {
			problems = append(problems, fmt.Errorf("%s: status fields %v differ from %s %v", name, r.StatusFields, refName, refStatus))
		}
		if !equalStrings(refDescribe, r.DescribeFields) {
			problems = append(problems, fmt.Errorf("%s: descriptor fields %v differ from %s %v", name, r.DescribeFields, refName, refDescribe))
		}
	}

	return errors.Join(problems...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
