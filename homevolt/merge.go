package homevolt

import "encoding/json"

// hostPayload pairs a host identifier with the envelope fetched from it.
type hostPayload struct {
	host    string
	payload *payload
}

// mergePayloads combines the envelopes of every reachable host into one.
// The seed payload supplies the top level fields and the aggregated view
// and its own ems/sensor lists come first; the remaining hosts only
// contribute entries whose identity (ecu_id for units, euid for sensors)
// is not present yet. Entries without identity are always kept.
//
// The caller picks the seed: the main host's payload, or the first
// reachable host when the main host failed this cycle.
func mergePayloads(results []hostPayload, seed *payload) *payload {
	merged := &payload{
		Type:       seed.Type,
		Ts:         seed.Ts,
		Aggregated: seed.Aggregated,
		Ems:        append([]json.RawMessage{}, seed.Ems...),
		Sensors:    append([]json.RawMessage{}, seed.Sensors...),
	}

	knownUnits := map[int]struct{}{}
	for _, raw := range merged.Ems {
		if id, present := ecuId(raw); present {
			knownUnits[id] = struct{}{}
		}
	}

	knownSensors := map[string]struct{}{}
	for _, raw := range merged.Sensors {
		if id, present := euid(raw); present {
			knownSensors[id] = struct{}{}
		}
	}

	for _, result := range results {
		if result.payload == seed {
			// the seed's entries are already in, rescanning it would
			// duplicate its identity-less ones
			continue
		}

		for _, raw := range result.payload.Ems {
			id, present := ecuId(raw)
			if present {
				if _, known := knownUnits[id]; known {
					continue
				}
				knownUnits[id] = struct{}{}
			}
			merged.Ems = append(merged.Ems, raw)
		}

		for _, raw := range result.payload.Sensors {
			id, present := euid(raw)
			if present {
				if _, known := knownSensors[id]; known {
					continue
				}
				knownSensors[id] = struct{}{}
			}
			merged.Sensors = append(merged.Sensors, raw)
		}
	}

	return merged
}

// pickSeed returns the payload of mainHost, or the first result when the
// main host is missing from this cycle's results. The second return value
// reports whether the fallback was taken.
func pickSeed(results []hostPayload, mainHost string) (seed *payload, fellBack bool) {
	for _, result := range results {
		if result.host == mainHost {
			return result.payload, false
		}
	}

	return results[0].payload, true
}
