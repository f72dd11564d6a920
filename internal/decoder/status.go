// internal/decoder/status.go
package decoder

import "fmt"

var statusNames = map[int]string{
	0: "Waiting",
	1: "Normal",
	3: "Fault",
	5: "Standby",
}

// StatusName renders an inverter status code.
func StatusName(code int) string {
	if n, ok := statusNames[code]; ok {
		return n
	}
	return fmt.Sprintf("Unknown (%d)", code)
}
