package homevolt

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// payload is the loosely parsed envelope of one host's ems.json response.
// The ems and sensor entries stay raw until after the multi host merge,
// so identity probing and deduplication never depend on the full typed
// model; the merged result is decoded exactly once.
type payload struct {
	Type       string            `json:"$type"`
	Ts         int64             `json:"ts"`
	Ems        []json.RawMessage `json:"ems"`
	Aggregated json.RawMessage   `json:"aggregated"`
	Sensors    []json.RawMessage `json:"sensors"`
}

func parsePayload(body []byte) (*payload, error) {
	parsed := &payload{}
	err := json.Unmarshal(body, parsed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ems payload")
	}

	return parsed, nil
}

// ecuId reports the ecu_id of a raw ems entry and whether the entry
// carries one at all. Entries without identity are never deduplicated.
func ecuId(raw json.RawMessage) (id int, present bool) {
	probe := struct {
		EcuId *int `json:"ecu_id"`
	}{}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.EcuId == nil {
		return 0, false
	}

	return *probe.EcuId, true
}

// euid reports the euid of a raw sensor entry and whether the entry
// carries one at all.
func euid(raw json.RawMessage) (id string, present bool) {
	probe := struct {
		Euid *string `json:"euid"`
	}{}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Euid == nil {
		return "", false
	}

	return *probe.Euid, true
}

// decodeData turns a merged envelope into the typed snapshot. Absent keys
// and empty objects decode to zero values throughout; only structurally
// invalid JSON produces an error.
func decodeData(merged *payload, schedule ScheduleSummary) (*Data, error) {
	data := &Data{
		Type:     merged.Type,
		Ts:       merged.Ts,
		Ems:      []EmsDevice{},
		Sensors:  []SensorData{},
		Schedule: schedule,
	}

	if len(merged.Aggregated) > 0 {
		err := json.Unmarshal(merged.Aggregated, &data.Aggregated)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode aggregated ems entry")
		}
	}

	for ix, raw := range merged.Ems {
		device := EmsDevice{}
		err := json.Unmarshal(raw, &device)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode ems entry %d", ix)
		}
		data.Ems = append(data.Ems, device)
	}

	for ix, raw := range merged.Sensors {
		sensor := SensorData{}
		err := json.Unmarshal(raw, &sensor)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode sensor entry %d", ix)
		}
		data.Sensors = append(data.Sensors, sensor)
	}

	return data, nil
}
