package ingest

import (
	"encoding/csv"
	"regexp"
	"strings"

	"homepulse/internal/normalize"
)

var reKV = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)

// Parser turns a line from a file replay or Kafka message into loose sample
// fields. JSON, CSV exports and key=value lines are all accepted; anything
// else is dropped by normalization downstream.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.SampleFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields := parsePlain(trim)
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parsePlain(line string) *normalize.SampleFields {
	fields := &normalize.SampleFields{Extras: map[string]string{}}
	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields.Timestamp = firstNonEmpty(kv, "timestamp", "time", "ts")
	fields.DeviceID = firstNonEmpty(kv, "device_id", "device", "deviceid", "sensor", "sensor_id")
	fields.Metric = firstNonEmpty(kv, "metric_name", "metric", "name", "channel")
	fields.Value = firstNonEmpty(kv, "value", "reading", "val")
	fields.Unit = firstNonEmpty(kv, "unit", "units", "uom")
	for k, v := range kv {
		fields.Extras[k] = v
	}
	return fields
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.SampleFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.SampleFields{Extras: map[string]string{}}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
	} else {
		// Positional fallback: timestamp, device, metric, value, unit.
		if len(record) >= 1 {
			fields.Timestamp = record[0]
		}
		if len(record) >= 2 {
			fields.DeviceID = record[1]
		}
		if len(record) >= 3 {
			fields.Metric = record[2]
		}
		if len(record) >= 4 {
			fields.Value = record[3]
		}
		if len(record) >= 5 {
			fields.Unit = record[4]
		}
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "timestamp", "time", "ts", "device", "device_id", "metric", "metric_name", "value", "unit":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.SampleFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "timestamp", "time", "ts":
		fields.Timestamp = value
	case "device", "device_id", "deviceid", "sensor", "sensor_id":
		fields.DeviceID = value
	case "metric", "metric_name", "name", "channel":
		fields.Metric = value
	case "value", "reading", "val":
		fields.Value = value
	case "unit", "units", "uom":
		fields.Unit = value
	default:
		if fields.Extras != nil {
			fields.Extras[name] = value
		}
	}
}
