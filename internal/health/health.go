// Package health samples resource usage of the running bridge process.
package health

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type Report struct {
	PID          int32     `json:"pid"`
	CPUPercent   float64   `json:"cpu_percent"`
	RSSBytes     uint64    `json:"rss_bytes"`
	Threads      int32     `json:"threads"`
	Goroutines   int       `json:"goroutines"`
	HostMemUsed  float64   `json:"host_mem_used_percent"`
	Uptime       string    `json:"uptime"`
	SampledAt    time.Time `json:"sampled_at"`
	SampleErrors []string  `json:"sample_errors,omitempty"`
}

// Sampler caches the process handle; gopsutil computes CPU percent from the
// delta between successive calls on the same handle.
type Sampler struct {
	mu      sync.Mutex
	proc    *process.Process
	started time.Time
}

func NewSampler() (*Sampler, error) {
	return newSampler(int32(os.Getpid()))
}

func newSampler(pid int32) (*Sampler, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("health: process %d: %w", pid, err)
	}
	return &Sampler{proc: p, started: time.Now()}, nil
}

// Sample collects a report. Individual probe failures are listed in
// SampleErrors rather than failing the whole sample.
func (s *Sampler) Sample() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{
		PID:        s.proc.Pid,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(s.started).Truncate(time.Second).String(),
		SampledAt:  time.Now().UTC(),
	}

	if cpu, err := s.proc.CPUPercent(); err == nil {
		r.CPUPercent = cpu
	} else {
		r.SampleErrors = append(r.SampleErrors, "cpu: "+err.Error())
	}
	if mi, err := s.proc.MemoryInfo(); err == nil {
		r.RSSBytes = mi.RSS
	} else {
		r.SampleErrors = append(r.SampleErrors, "rss: "+err.Error())
	}
	if n, err := s.proc.NumThreads(); err == nil {
		r.Threads = n
	} else {
		r.SampleErrors = append(r.SampleErrors, "threads: "+err.Error())
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		r.HostMemUsed = vm.UsedPercent
	} else {
		r.SampleErrors = append(r.SampleErrors, "host memory: "+err.Error())
	}
	return r
}
