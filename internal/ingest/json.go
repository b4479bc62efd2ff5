package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"homepulse/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.SampleFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap maps the loose field names seen across telemetry emitters
// onto SampleFields.
func ParseJSONMap(obj map[string]interface{}) *normalize.SampleFields {
	fields := &normalize.SampleFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields.Timestamp = firstNonEmpty(fields.Extras, "timestamp", "time", "ts")
	fields.DeviceID = firstNonEmpty(fields.Extras, "device_id", "device", "deviceid", "sensor", "sensor_id")
	fields.Metric = firstNonEmpty(fields.Extras, "metric_name", "metric", "name", "channel")
	fields.Value = firstNonEmpty(fields.Extras, "value", "reading", "val")
	fields.Unit = firstNonEmpty(fields.Extras, "unit", "units", "uom")
	return fields
}
