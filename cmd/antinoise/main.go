// Command antinoise loopback-captures the system's default render endpoint,
// drives a narrow-band FFT/feedback loop against a single target frequency,
// and renders an anti-phase cosine back into the same endpoint.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hollowcode/antinoise/internal/config"
	"github.com/hollowcode/antinoise/internal/coordinator"
	"github.com/hollowcode/antinoise/internal/platform"
)

func main() {
	os.Exit(run())
}

func run() int {
	params, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Printf("❌ configuration error: %v", err)
		return 2
	}

	service, err := newEndpointService()
	if err != nil {
		log.Printf("❌ audio platform error: %v", err)
		return 1
	}

	if params.ListDevices {
		return listDevices(service)
	}

	log.Printf("🎚️ window=%d hop=%d band=[%.1f,%.1f]Hz target=%.1fHz workers=%d",
		params.WindowSize, params.HopSize, params.MinTargetFreqHz, params.MaxTargetFreqHz,
		params.TargetFreqHz, params.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("🛑 shutting down...")
		cancel()
	}()

	co := coordinator.New(params, service)

	done := make(chan error, 1)
	go func() { done <- co.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("❌ %v", err)
			return 1
		}
		log.Println("✅ stopped")
		return 0
	case <-time.After(maxRunDuration(params)):
		log.Println("⚠️ shutdown timeout, forcing exit")
		return 1
	}
}

// maxRunDuration bounds how long main waits for a graceful coordinator stop
// before giving up, independent of the pipeline's own RunDuration setting.
func maxRunDuration(p *config.Params) time.Duration {
	if p.RunDuration <= 0 {
		return 24 * time.Hour
	}
	return p.RunDuration + 10*time.Second
}

func listDevices(service platform.EndpointService) int {
	endpoints, err := service.ListRenderEndpoints(context.Background())
	if err != nil {
		log.Printf("❌ list-devices: %v", err)
		return 1
	}
	for _, ep := range endpoints {
		log.Printf("🔊 %s  (%s)", ep.Name, ep.ID)
	}
	return 0
}
