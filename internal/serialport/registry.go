package serialport

import (
	"sort"
	"sync"

	"go.bug.st/serial/enumerator"
)

// Info describes one port offered to clients.
type Info struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Simulated    bool   `json:"simulated,omitempty"`
}

// Registry routes registered names to their own opener and everything else
// to the fallback.
type Registry struct {
	mu       sync.RWMutex
	named    map[string]Opener
	fallback Opener
	// enumerate lists OS ports; replaced in tests.
	enumerate func() ([]Info, error)
}

func NewRegistry(fallback Opener) *Registry {
	return &Registry{
		named:     make(map[string]Opener),
		fallback:  fallback,
		enumerate: systemPorts,
	}
}

func (r *Registry) Register(name string, o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = o
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.named, name)
}

func (r *Registry) Open(name string, baud int) (Port, error) {
	r.mu.RLock()
	o, ok := r.named[name]
	fallback := r.fallback
	r.mu.RUnlock()
	if ok {
		return o.Open(name, baud)
	}
	if fallback == nil {
		return nil, ErrInvalidPort
	}
	return fallback.Open(name, baud)
}

// List returns registered ports first, then OS ports. An enumeration failure
// still returns the registered ports alongside the error.
func (r *Registry) List() ([]Info, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.named))
	for name := range r.named {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]Info, 0, len(names))
	for _, name := range names {
		out = append(out, Info{Name: name, Simulated: true})
	}

	sys, err := r.enumerate()
	out = append(out, sys...)
	return out, err
}

func systemPorts() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(details))
	for _, d := range details {
		out = append(out, Info{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// BaudRates is the fixed list of rates the instruments support, fastest
// first.
func BaudRates() []int {
	return []int{921600, 460800, 230400, 115200, 38400, 19200, 9600, 4800, 2400}
}
