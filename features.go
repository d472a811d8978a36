package main

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const engineeringTableHeader = "gNodeB ID|Cell ID|Longitude|Latitude"

// ExtractFeatures turns raw question text into a feature vector. Fields
// that cannot be parsed are simply absent; a structurally unparseable
// question yields an empty vector, never an error.
func ExtractFeatures(q Question) FeatureVector {
	switch q.Kind {
	case KindStandard:
		return extractStandardFeatures(q.Text)
	case KindNonstandardTelco:
		return extractTelecomFeatures(q.Text)
	default:
		// Non-telecom questions may still carry a usable drive-test
		// fragment for case retrieval.
		return extractStandardFeatures(q.Text)
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// tableRow keeps the header slice alongside the cells so ambiguous header
// lookups resolve in column order, not map order.
type tableRow struct {
	headers []string
	cells   map[string]string
}

// parseTable reads pipe-delimited rows following the line containing
// headerMarker, stopping at the first non-table line.
func parseTable(lines []string, headerMarker string, stopMarkers ...string) []tableRow {
	start := -1
	var headers []string
	for i, line := range lines {
		if strings.Contains(line, headerMarker) {
			headers = splitPipe(line)
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var rows []tableRow
	for _, line := range lines[start:] {
		if !strings.Contains(line, "|") {
			break
		}
		stopped := false
		for _, marker := range stopMarkers {
			if strings.Contains(line, marker) {
				stopped = true
				break
			}
		}
		if stopped {
			break
		}
		parts := splitPipe(line)
		if len(parts) != len(headers) {
			continue
		}
		row := tableRow{headers: headers, cells: make(map[string]string, len(headers))}
		for j, h := range headers {
			row.cells[h] = parts[j]
		}
		rows = append(rows, row)
	}
	return rows
}

func splitPipe(line string) []string {
	parts := strings.Split(line, "|")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func (r tableRow) lookup(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := r.cells[name]; ok {
			return v, true
		}
	}
	// Fall back to substring match over headers; exported datasets rename
	// columns with unit suffixes. The scan goes in column order so the
	// first matching column always wins.
	for _, name := range names {
		for _, h := range r.headers {
			if strings.Contains(h, name) {
				return r.cells[h], true
			}
		}
	}
	return "", false
}

func extractStandardFeatures(question string) FeatureVector {
	lines := strings.Split(question, "\n")
	dtRecords := parseTable(lines, standardTableHeader, "gNodeB", "Engineering")
	engRecords := parseTable(lines, engineeringTableHeader)

	fv := make(FeatureVector)
	if len(dtRecords) == 0 {
		return fv
	}

	var speeds, rbs, rsrps []float64
	servingPCIs := make(map[int]bool)
	neighborPCIs := make(map[int]bool)
	handovers := 0
	prevPCI := -1
	sawPCI := false

	for _, r := range dtRecords {
		if s, ok := r.lookup("GPS Speed (km/h)", "GPS Speed"); ok {
			if v, ok := parseNumber(s); ok {
				speeds = append(speeds, v)
			}
		}
		if s, ok := r.lookup("5G KPI PCell RF Serving PCI", "Serving PCI"); ok {
			if v, ok := parseNumber(s); ok {
				pci := int(v)
				servingPCIs[pci] = true
				if sawPCI && prevPCI != pci {
					handovers++
				}
				prevPCI = pci
				sawPCI = true
			}
		}
		if s, ok := r.lookup("Top 1 PCI"); ok {
			if v, ok := parseNumber(s); ok {
				neighborPCIs[int(v)] = true
			}
		}
		if s, ok := r.lookup("5G KPI PCell Layer1 DL RB Num (Including 0)", "DL RB Num"); ok {
			if v, ok := parseNumber(s); ok {
				rbs = append(rbs, v)
			}
		}
		if s, ok := r.lookup("5G KPI PCell RF Serving SS-RSRP [dBm]", "Serving SS-RSRP", "Serving RSRP"); ok {
			if v, ok := parseNumber(s); ok {
				rsrps = append(rsrps, v)
			}
		}
	}

	if len(rsrps) > 0 {
		fv[FeatMinRSRP] = minOf(rsrps)
		fv[FeatAvgRSRP] = meanOf(rsrps)
	}
	if len(speeds) > 0 {
		fv[FeatMaxSpeed] = maxOf(speeds)
	}
	if len(rbs) > 0 {
		fv[FeatAvgRB] = meanOf(rbs)
	}
	if sawPCI {
		fv[FeatHandovers] = float64(handovers)
	}
	fv[FeatNumNeighbors] = float64(len(neighborPCIs))

	// Tilt features come from the engineering table, joined on serving PCI.
	tilts := cellTilts(engRecords, servingPCIs)
	if len(tilts) > 0 {
		fv[FeatMaxTilt] = maxOf(tilts)
		fv[FeatMinTilt] = minOf(tilts)
		fv[FeatTotalTilt] = sumOf(tilts)
	}

	// PCI mod 30 collision across serving and top-1 neighbor cells.
	if sawPCI || len(neighborPCIs) > 0 {
		seen := make(map[int]bool)
		conflict := 0.0
		for pci := range servingPCIs {
			if seen[pci%30] {
				conflict = 1
			}
			seen[pci%30] = true
		}
		for pci := range neighborPCIs {
			if servingPCIs[pci] {
				continue
			}
			if seen[pci%30] {
				conflict = 1
			}
			seen[pci%30] = true
		}
		fv[FeatPCIConflict] = conflict
	}

	return fv
}

// cellTilts returns mechanical + digital tilt per serving cell. A digital
// tilt of 255 is the vendor's "unset" sentinel and decodes to 6.
func cellTilts(engRecords []tableRow, servingPCIs map[int]bool) []float64 {
	var tilts []float64
	for _, eng := range engRecords {
		s, ok := eng.lookup("PCI")
		if !ok {
			continue
		}
		v, ok := parseNumber(s)
		if !ok || !servingPCIs[int(v)] {
			continue
		}
		md, mdOK := 0.0, false
		if s, ok := eng.lookup("Mechanical Downtilt"); ok {
			md, mdOK = parseNumber(s)
		}
		if !mdOK {
			continue
		}
		dt := 0.0
		if s, ok := eng.lookup("Digital Tilt"); ok {
			if s == "255" {
				dt = 6
			} else if v, ok := parseNumber(s); ok {
				dt = v
			}
		}
		tilts = append(tilts, md+dt)
	}
	return tilts
}

var a3OffsetRe = regexp.MustCompile(`(?i)a3[-_ ]?offset\D{0,10}?(-?\d+(?:\.\d+)?)`)

func extractTelecomFeatures(question string) FeatureVector {
	fv := make(FeatureVector)
	lines := strings.Split(question, "\n")

	// Telecom tables in this variant carry ad-hoc headers; accept any pipe
	// table whose header mentions time or UE.
	var headers []string
	var rows []tableRow
	for _, line := range lines {
		if !strings.Contains(line, "|") || strings.HasPrefix(strings.TrimSpace(line), "|:") {
			continue
		}
		parts := splitPipe(line)
		var filled []string
		for _, p := range parts {
			if p != "" {
				filled = append(filled, p)
			}
		}
		if headers == nil {
			if len(filled) > 3 && (strings.Contains(line, "Time") || strings.Contains(line, "Timestamp") || strings.Contains(line, "UE")) {
				headers = filled
			}
			continue
		}
		if len(filled) >= len(headers)-2 {
			row := tableRow{headers: headers, cells: make(map[string]string, len(headers))}
			for j := 0; j < len(headers) && j < len(filled); j++ {
				row.cells[headers[j]] = filled[j]
			}
			rows = append(rows, row)
		}
	}

	var rsrps, sinrs, cces, deltas []float64
	handovers := 0
	prevPCI := -1
	sawPCI := false

	for _, r := range rows {
		var serving float64
		servingOK := false
		if s, ok := r.lookup("Serving RSRP(dBm)", "Serving RSRP", "RSRP"); ok {
			if v, ok := parseNumber(s); ok {
				rsrps = append(rsrps, v)
				serving, servingOK = v, true
			}
		}
		if s, ok := r.lookup("Serving SINR(dB)", "Serving SINR", "SINR"); ok {
			if v, ok := parseNumber(s); ok {
				sinrs = append(sinrs, v)
			}
		}
		if s, ok := r.lookup("CCE Fail Rate", "CCE"); ok {
			if v, ok := parseNumber(s); ok {
				cces = append(cces, v)
			}
		}
		if s, ok := r.lookup("Neighbor RSRP(dBm)", "Neighbor RSRP"); ok {
			if v, ok := parseNumber(s); ok && servingOK {
				deltas = append(deltas, math.Abs(serving-v))
			}
		}
		if s, ok := r.lookup("Serving PCI", "PCI"); ok {
			if v, ok := parseNumber(s); ok {
				pci := int(v)
				if sawPCI && prevPCI != pci {
					handovers++
				}
				prevPCI = pci
				sawPCI = true
			}
		}
	}

	if len(rsrps) > 0 {
		fv[FeatMinRSRP] = minOf(rsrps)
	}
	if len(sinrs) > 0 {
		fv[FeatMeanSINR] = meanOf(sinrs)
	}
	if len(cces) > 0 {
		fv[FeatMaxCCE] = maxOf(cces)
	}
	if len(deltas) > 0 {
		fv[FeatNeighborDelta] = minOf(deltas)
	}
	if sawPCI {
		fv[FeatHandovers] = float64(handovers)
	}
	if m := a3OffsetRe.FindStringSubmatch(question); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			fv[FeatA3Offset] = v
		}
	}
	return fv
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func sumOf(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}

func meanOf(vals []float64) float64 {
	return sumOf(vals) / float64(len(vals))
}
