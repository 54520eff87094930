package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rowetechinc/river/internal/tui/app"
	"github.com/rowetechinc/river/internal/tui/client"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the river server")
	namespace := flag.String("namespace", "/rti", "only show events from this namespace (empty for all)")
	style := flag.String("style", "dark", "glamour style for the BREAK panel (dark, light, notty)")
	vmin := flag.Float64("vmin", 0, "voltage gauge minimum")
	vmax := flag.Float64("vmax", 24, "voltage gauge maximum")
	flag.Parse()

	ws := client.NewWSClient(*wsURL, *namespace)
	httpClient := client.NewHTTPClient(deriveHTTPBase(*wsURL))

	m := app.New(ws, httpClient, app.Options{
		GlamourStyle: *style,
		VoltageMin:   *vmin,
		VoltageMax:   *vmax,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
