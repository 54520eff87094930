package decoder

import (
	"fmt"
	"strings"
)

// BreakResult is the structured form of the banner an instrument prints in
// response to a BREAK.
type BreakResult struct {
	Banner       string   `json:"banner"`
	SerialNumber string   `json:"serial_number"`
	Firmware     string   `json:"firmware"`
	Mode         string   `json:"mode"`
	Lines        []string `json:"lines"`
	Raw          string   `json:"raw"`
}

// Empty reports whether nothing useful was captured.
func (r BreakResult) Empty() bool {
	return len(r.Lines) == 0
}

// ParseBreak extracts the banner line and the SN/FW/Mode fields. Unknown
// lines are kept in Lines.
func ParseBreak(text string) BreakResult {
	res := BreakResult{Raw: text, Lines: []string{}}
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		res.Lines = append(res.Lines, line)

		key, val, found := strings.Cut(line, ":")
		if found {
			val = strings.TrimSpace(val)
			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "SN":
				res.SerialNumber = val
				continue
			case "FW":
				res.Firmware = val
				continue
			case "MODE":
				res.Mode = val
				continue
			}
		}
		if res.Banner == "" {
			res.Banner = line
		}
	}
	return res
}

// FormatBreakBanner renders a banner ParseBreak understands.
func FormatBreakBanner(banner, serial, firmware, mode string) string {
	return fmt.Sprintf("\r\n%s\r\nCopyright (c) Rowe Technologies Inc. All rights reserved.\r\nSN: %s\r\nFW: %s\r\nMode: %s\r\n",
		banner, serial, firmware, mode)
}
