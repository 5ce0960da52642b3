// fleetcheck verifies that every service in the catalog follows the fleet
// convention, and optionally polls running instances the way an orchestrator
// would.
//
// Without flags it builds each catalog service in memory (nothing listens)
// and validates their status paths, descriptor paths and payload schemas.
// With --probe it also queries live instances:
//
//	fleetcheck --probe order=http://localhost:8081,UserService=http://localhost:8083
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/shopfleet/service_layer/internal/config"
	"github.com/shopfleet/service_layer/internal/descriptor"
	"github.com/shopfleet/service_layer/internal/fleet"
	"github.com/shopfleet/service_layer/internal/logging"
	"github.com/shopfleet/service_layer/services"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		manifestPath string
		probes       map[string]string
		timeout      time.Duration
		retries      int
		printSchema  bool
	)

	flagSet := pflag.NewFlagSet("fleetcheck", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&manifestPath, "manifest", "config/services.yaml", "fleet manifest providing the convention")
	flagSet.StringToStringVar(&probes, "probe", nil, "live instances to poll, as name=base-url pairs")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout for --probe")
	flagSet.IntVar(&retries, "retries", 1, "retries per request for --probe")
	flagSet.BoolVar(&printSchema, "schema", false, "print the shared payload schemas and exit")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if printSchema {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(descriptor.SharedSchemas())
	}

	manifest, err := config.LoadServicesConfigOrDefault(manifestPath)
	if err != nil {
		return err
	}
	conv := manifest.FleetConvention()

	logger := logging.New("fleetcheck", logging.LoggingConfig{Level: "error", Output: "stderr"})
	members, err := services.Members(conv, logger)
	if err != nil {
		return err
	}
	if err := fleet.Validate(conv, members...); err != nil {
		return err
	}
	for _, m := range members {
		fmt.Fprintf(out, "ok    %-16s %s %s\n", m.Identity.Name(), m.StatusPath, m.DescriptorPath)
	}

	if len(probes) == 0 {
		return nil
	}
	return probe(conv, probes, timeout, retries, out)
}

func probe(conv fleet.Convention, probes map[string]string, timeout time.Duration, retries int, out io.Writer) error {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]fleet.Target, 0, len(names))
	for _, name := range names {
		target := fleet.Target{Name: name, BaseURL: probes[name]}
		// Catalog IDs are accepted in place of service names.
		if def, ok := services.Lookup(name); ok {
			target.Name = def.Name
		}
		targets = append(targets, target)
	}

	prober := fleet.NewProber(conv, fleet.ProberConfig{Timeout: timeout, MaxRetries: retries})
	ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(retries+1)*2)
	defer cancel()

	results := prober.Probe(ctx, targets)
	failed := 0
	for _, r := range results {
		if r.Healthy() {
			fmt.Fprintf(out, "up    %-16s %s ops=%d latency=%s\n", r.Target.Name, r.State, r.Operations, r.Latency.Round(time.Millisecond))
			continue
		}
		failed++
		reason := fmt.Sprintf("status=%d describe=%d", r.StatusCode, r.DescribeCode)
		if r.Err != nil {
			reason = r.Err.Error()
		}
		fmt.Fprintf(out, "down  %-16s %s\n", r.Target.Name, reason)
	}

	if err := fleet.CheckConsistency(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d instances failed", failed, len(results))
	}
	return nil
}
