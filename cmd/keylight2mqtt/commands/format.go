package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// sortLights orders lights by serial number for stable output
func sortLights(lights []keylight.Light) {
	sort.Slice(lights, func(i, j int) bool {
		return strings.ToLower(lights[i].SerialNumber) < strings.ToLower(lights[j].SerialNumber)
	})
}

// LightsTableData returns a table with a bold header row and one row per light
func LightsTableData(lights []keylight.Light) pterm.TableData {
	data := pterm.TableData{{
		pterm.Bold.Sprint("Serial"),
		pterm.Bold.Sprint("Name"),
		pterm.Bold.Sprint("Product"),
		pterm.Bold.Sprint("Firmware"),
		pterm.Bold.Sprint("Address"),
	}}
	for _, l := range lights {
		data = append(data, []string{
			l.SerialNumber,
			l.Name,
			l.ProductName,
			fmt.Sprintf("%s (build %d)", l.FirmwareVersion, l.FirmwareBuild),
			l.Addr(),
		})
	}
	return data
}

// LightParseable returns the parseable key=value string for a light
func LightParseable(l keylight.Light) string {
	return fmt.Sprintf(
		"serialnumber=\"%s\" name=\"%s\" productname=\"%s\" firmwareversion=\"%s\" firmwarebuild=%d ip=\"%s\" port=%d",
		l.SerialNumber,
		l.Name,
		l.ProductName,
		l.FirmwareVersion,
		l.FirmwareBuild,
		l.IP,
		l.Port,
	)
}
