//go:build windows

package main

import "github.com/hollowcode/antinoise/internal/platform"

func newEndpointService() (platform.EndpointService, error) {
	return platform.NewEndpointService()
}
