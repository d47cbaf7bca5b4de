package homevolt

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// Setpoint is either a numeric power reference or a sentinel placeholder
// the console prints verbatim, like "<max allowed>". Exactly one of the
// two is meaningful; check Numeric before reading Value.
type Setpoint struct {
	Value   int    `json:"value,omitempty"`
	Literal string `json:"literal,omitempty"`
	Numeric bool   `json:"numeric"`
}

func (sp Setpoint) String() string {
	if sp.Numeric {
		return strconv.Itoa(sp.Value)
	}
	return sp.Literal
}

// ScheduleEntry is one record of the console schedule listing. The id is
// only unique within a single listing. Optional fields stay nil when the
// record does not mention them; a missing offline key is not the same as
// offline being false.
type ScheduleEntry struct {
	Id           int       `json:"id"`
	Type         *string   `json:"type,omitempty"`
	FromTime     *string   `json:"from_time,omitempty"`
	ToTime       *string   `json:"to_time,omitempty"`
	Setpoint     *Setpoint `json:"setpoint,omitempty"`
	Offline      *bool     `json:"offline,omitempty"`
	MaxDischarge *string   `json:"max_discharge,omitempty"`
	MaxCharge    *string   `json:"max_charge,omitempty"`
}

// ScheduleSummary is the parsed sched_list response: the header counters
// plus every record line in source order. CurrentId names the active
// schedule and is free form, it is not a ScheduleEntry id.
type ScheduleSummary struct {
	Count     int             `json:"count"`
	CurrentId string          `json:"current_id"`
	Entries   []ScheduleEntry `json:"entries"`
}

var scheduleSummaryPattern = regexp.MustCompile(
	`^Schedule get: (\d+) schedules. Current ID: '([^']*)'`)

// ParseSchedule reads the plaintext response of the sched_list console
// command. The parser is lenient by design: lines that are neither the
// summary header nor a record line are ignored, record lines without a
// numeric id are skipped, and unparseable field values degrade to their
// raw string form. It never fails.
func ParseSchedule(text string) ScheduleSummary {
	summary := ScheduleSummary{Entries: []ScheduleEntry{}}

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if match := scheduleSummaryPattern.FindStringSubmatch(line); match != nil {
			summary.Count, _ = strconv.Atoi(match[1])
			summary.CurrentId = match[2]
			continue
		}

		if !strings.HasPrefix(line, "id:") {
			continue
		}

		entry, ok := parseScheduleLine(line)
		if ok {
			summary.Entries = append(summary.Entries, entry)
		}
	}

	return summary
}

// parseScheduleLine splits a record line into key: value fields. Only the
// first colon of a field separates key from value, so values containing
// colons survive intact.
func parseScheduleLine(line string) (entry ScheduleEntry, ok bool) {
	fields := map[string]string{}
	for _, part := range strings.Split(line, ",") {
		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	idValue, present := fields["id"]
	if !present {
		return
	}
	id, err := strconv.Atoi(idValue)
	if err != nil {
		return
	}
	entry.Id = id

	entry.Type = optionalField(fields, "type")
	entry.FromTime = optionalField(fields, "from")
	entry.ToTime = optionalField(fields, "to")
	entry.MaxDischarge = optionalField(fields, "max_discharge")
	entry.MaxCharge = optionalField(fields, "max_charge")

	if raw, found := fields["setpoint"]; found {
		setpoint := parseSetpoint(raw)
		entry.Setpoint = &setpoint
	}

	if raw, found := fields["offline"]; found {
		offline := raw == "true"
		entry.Offline = &offline
	}

	return entry, true
}

// parseSetpoint keeps sentinel values (leading '<' or '>') and anything
// that fails the integer parse as literals.
func parseSetpoint(raw string) Setpoint {
	if strings.HasPrefix(raw, "<") || strings.HasPrefix(raw, ">") {
		return Setpoint{Literal: raw}
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return Setpoint{Literal: raw}
	}

	return Setpoint{Value: value, Numeric: true}
}

func optionalField(fields map[string]string, key string) *string {
	value, found := fields[key]
	if !found {
		return nil
	}
	return &value
}
