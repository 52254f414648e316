package main

import (
	"fmt"
	"strings"

	"github.com/pkg/profile"
)

type ProfileCategory string

const (
	ProfileCPU  ProfileCategory = "cpu"
	ProfileHeap ProfileCategory = "heap"
)

var profiler interface {
	Stop()
}

func startProfiling(what ProfileCategory) error {
	switch ProfileCategory(strings.ToLower(string(what))) {
	case ProfileCPU:
		profiler = profile.Start(profile.ProfilePath("."))
	case ProfileHeap:
		profiler = profile.Start(profile.MemProfileHeap, profile.ProfilePath("."))
	default:
		return fmt.Errorf("unknown profile '%s'. Expected %s or %s", what, ProfileCPU, ProfileHeap)
	}
	return nil
}

func isProfiling() bool {
	return profiler != nil
}

func stopProfiling() {
	if isProfiling() {
		profiler.Stop()
		profiler = nil
	}
}
