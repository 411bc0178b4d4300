package keylight

import (
	"strconv"
	"strings"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
)

// Device temperature limits, in mireds
const (
	minMireds = 143
	maxMireds = 344
)

// boolToInt converts a bool to int (true=1, false=0)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// clampBrightness keeps brightness inside what the firmware accepts
func clampBrightness(brightness int) int {
	if brightness < config.MinBrightness {
		return config.MinBrightness
	}
	if brightness > config.MaxBrightness {
		return config.MaxBrightness
	}
	return brightness
}

// convertTemperatureToDevice converts Kelvin to device mireds
func convertTemperatureToDevice(kelvin int) int {
	if kelvin < config.MinTemperature {
		kelvin = config.MinTemperature
	} else if kelvin > config.MaxTemperature {
		kelvin = config.MaxTemperature
	}
	mireds := 1000000 / kelvin
	if mireds > maxMireds {
		mireds = maxMireds
	} else if mireds < minMireds {
		mireds = minMireds
	}
	return mireds
}

// ReportedBrightness returns the brightness a light reports after being set
// to brightness
func ReportedBrightness(brightness int) int {
	return clampBrightness(brightness)
}

// ReportedTemperature returns the Kelvin value a light reports after being
// set to kelvin. Kelvin travels as whole mireds, so most values come back
// slightly changed: 4500 reads back as 4504.
func ReportedTemperature(kelvin int) int {
	return ConvertDeviceToTemperature(convertTemperatureToDevice(kelvin))
}

// ConvertDeviceToTemperature converts device mireds to Kelvin
func ConvertDeviceToTemperature(mireds int) int {
	if mireds < minMireds {
		mireds = minMireds
	} else if mireds > maxMireds {
		mireds = maxMireds
	}
	return 1000000 / mireds
}

// UnescapeRFC6763Label unescapes a DNS-SD label per RFC 6763 section 6.4
func UnescapeRFC6763Label(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			// \DDD decimal escape
			if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
				val, err := strconv.Atoi(s[i+1 : i+4])
				if err == nil {
					b.WriteByte(byte(val))
					i += 3
					continue
				}
			}
			i++
			b.WriteByte(s[i])
		} else {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
