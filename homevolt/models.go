package homevolt

import "encoding/json"

// Sensor types reported by external metering sensors. The well known
// values select a role for rendering; anything else passes through.
const (
	SensorTypeGrid  = "grid"
	SensorTypeSolar = "solar"
	SensorTypeLoad  = "load"
)

// BMS data list indices: per-unit payloads report the device pack first,
// the aggregated payload carries the whole-system pack at index 1.
const (
	BmsDataIndexDevice = 0
	BmsDataIndexTotal  = 1
)

// EmsInfo describes the firmware and rated capability of an EMS unit.
type EmsInfo struct {
	ProtocolVersion int    `json:"protocol_version"`
	FwVersion       string `json:"fw_version"`
	RatedCapacity   int    `json:"rated_capacity"`
	RatedPower      int    `json:"rated_power"`
}

// BmsInfo describes a single battery module.
type BmsInfo struct {
	FwVersion    string `json:"fw_version"`
	SerialNumber string `json:"serial_number"`
	RatedCap     int    `json:"rated_cap"`
	Id           int    `json:"id"`
}

// InvInfo describes the inverter of an EMS unit.
type InvInfo struct {
	FwVersion    string `json:"fw_version"`
	SerialNumber string `json:"serial_number"`
}

type EmsConfig struct {
	GridCodePreset    int    `json:"grid_code_preset"`
	GridCodePresetStr string `json:"grid_code_preset_str"`
	ControlTimeout    bool   `json:"control_timeout"`
}

type InvConfig struct {
	FfrFstartFreq int `json:"ffr_fstart_freq"`
}

// EmsControl holds the control parameters currently applied by the unit.
type EmsControl struct {
	ModeSel            int  `json:"mode_sel"`
	PwrRef             int  `json:"pwr_ref"`
	FreqResMode        int  `json:"freq_res_mode"`
	FreqResPwrFcrN     int  `json:"freq_res_pwr_fcr_n"`
	FreqResPwrFcrDUp   int  `json:"freq_res_pwr_fcr_d_up"`
	FreqResPwrFcrDDown int  `json:"freq_res_pwr_fcr_d_down"`
	FreqResPwrRefFfr   int  `json:"freq_res_pwr_ref_ffr"`
	ActPwrChLim        int  `json:"act_pwr_ch_lim"`
	ActPwrDiLim        int  `json:"act_pwr_di_lim"`
	ReactPwrPosLimit   int  `json:"react_pwr_pos_limit"`
	ReactPwrNegLimit   int  `json:"react_pwr_neg_limit"`
	FreqTestSeq        int  `json:"freq_test_seq"`
	DataUsage          int  `json:"data_usage"`
	AllowDfu           bool `json:"allow_dfu"`
}

// EmsData is the instantaneous telemetry block of an EMS unit. Alarm,
// warning and info carry a numeric code with a parallel string list.
type EmsData struct {
	TimestampMs    int64    `json:"timestamp_ms"`
	State          int      `json:"state"`
	StateStr       string   `json:"state_str"`
	Info           int      `json:"info"`
	InfoStr        []string `json:"info_str"`
	Warning        int      `json:"warning"`
	WarningStr     []string `json:"warning_str"`
	Alarm          int      `json:"alarm"`
	AlarmStr       []string `json:"alarm_str"`
	PhaseAngle     int      `json:"phase_angle"`
	Frequency      int      `json:"frequency"`
	PhaseSeq       int      `json:"phase_seq"`
	Power          int      `json:"power"`
	ApparentPower  int      `json:"apparent_power"`
	ReactivePower  int      `json:"reactive_power"`
	EnergyProduced int      `json:"energy_produced"`
	EnergyConsumed int      `json:"energy_consumed"`
	SysTemp        int      `json:"sys_temp"`
	AvailCap       int      `json:"avail_cap"`
	FreqResState   int      `json:"freq_res_state"`
	SocAvg         int      `json:"soc_avg"`
}

// BmsData is the live telemetry of one battery pack. Soc is reported in
// hundredths of a percent.
type BmsData struct {
	EnergyAvail int      `json:"energy_avail"`
	CycleCount  int      `json:"cycle_count"`
	Soc         int      `json:"soc"`
	State       int      `json:"state"`
	StateStr    string   `json:"state_str"`
	Alarm       int      `json:"alarm"`
	AlarmStr    []string `json:"alarm_str"`
	Tmin        int      `json:"tmin"`
	Tmax        int      `json:"tmax"`
}

type EmsPrediction struct {
	AvailChPwr          int `json:"avail_ch_pwr"`
	AvailDiPwr          int `json:"avail_di_pwr"`
	AvailChEnergy       int `json:"avail_ch_energy"`
	AvailDiEnergy       int `json:"avail_di_energy"`
	AvailInvChPwr       int `json:"avail_inv_ch_pwr"`
	AvailInvDiPwr       int `json:"avail_inv_di_pwr"`
	AvailGroupFuseChPwr int `json:"avail_group_fuse_ch_pwr"`
	AvailGroupFuseDiPwr int `json:"avail_group_fuse_di_pwr"`
}

type EmsVoltage struct {
	L1   int `json:"l1"`
	L2   int `json:"l2"`
	L3   int `json:"l3"`
	L1L2 int `json:"l1_l2"`
	L2L3 int `json:"l2_l3"`
	L3L1 int `json:"l3_l1"`
}

type EmsCurrent struct {
	L1 int `json:"l1"`
	L2 int `json:"l2"`
	L3 int `json:"l3"`
}

type EmsAggregate struct {
	ImportedKwh float64 `json:"imported_kwh"`
	ExportedKwh float64 `json:"exported_kwh"`
}

// PhaseData is a single phase reading of a metering sensor.
type PhaseData struct {
	Voltage float64 `json:"voltage"`
	Amp     float64 `json:"amp"`
	Power   float64 `json:"power"`
	Pf      float64 `json:"pf"`
}

// SensorData is the status of one external metering sensor. EUID is the
// merge identity; an empty EUID means the sensor carries no identity.
type SensorData struct {
	Type           string      `json:"type"`
	NodeId         int         `json:"node_id"`
	Euid           string      `json:"euid"`
	Interface      int         `json:"interface"`
	Available      bool        `json:"available"`
	Rssi           int         `json:"rssi"`
	AverageRssi    float64     `json:"average_rssi"`
	Pdr            float64     `json:"pdr"`
	Phase          []PhaseData `json:"phase"`
	Frequency      int         `json:"frequency"`
	TotalPower     int         `json:"total_power"`
	EnergyImported float64     `json:"energy_imported"`
	EnergyExported float64     `json:"energy_exported"`
	Timestamp      int64       `json:"timestamp"`
}

// UnmarshalJSON keeps the device convention of sensors being available
// unless the payload says otherwise.
func (sd *SensorData) UnmarshalJSON(raw []byte) error {
	type plain SensorData
	decoded := plain{Available: true}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*sd = SensorData(decoded)
	return nil
}

// EmsDevice is the full status of one EMS unit (or of the aggregated
// whole-system view). EcuId is the merge identity; zero means the unit
// did not identify itself.
type EmsDevice struct {
	EcuId         int           `json:"ecu_id"`
	EcuHost       string        `json:"ecu_host"`
	EcuVersion    string        `json:"ecu_version"`
	Error         int           `json:"error"`
	ErrorStr      string        `json:"error_str"`
	OpState       int           `json:"op_state"`
	OpStateStr    string        `json:"op_state_str"`
	EmsInfo       EmsInfo       `json:"ems_info"`
	BmsInfo       []BmsInfo     `json:"bms_info"`
	InvInfo       InvInfo       `json:"inv_info"`
	EmsConfig     EmsConfig     `json:"ems_config"`
	InvConfig     InvConfig     `json:"inv_config"`
	EmsControl    EmsControl    `json:"ems_control"`
	EmsData       EmsData       `json:"ems_data"`
	BmsData       []BmsData     `json:"bms_data"`
	EmsPrediction EmsPrediction `json:"ems_prediction"`
	EmsVoltage    EmsVoltage    `json:"ems_voltage"`
	EmsCurrent    EmsCurrent    `json:"ems_current"`
	EmsAggregate  EmsAggregate  `json:"ems_aggregate"`
	ErrorCnt      int           `json:"error_cnt"`
}

// Data is the unified snapshot of one poll cycle: every reachable unit,
// the aggregated whole-system view from the main host, every known
// metering sensor and the schedule listing. It is built fresh each cycle
// and never mutated afterwards.
type Data struct {
	Type       string          `json:"$type"`
	Ts         int64           `json:"ts"`
	Ems        []EmsDevice     `json:"ems"`
	Aggregated EmsDevice       `json:"aggregated"`
	Sensors    []SensorData    `json:"sensors"`
	Schedule   ScheduleSummary `json:"schedule"`
}

// Device returns the EMS unit at the given index, reporting absence
// instead of panicking on short lists.
func (d *Data) Device(index int) (EmsDevice, bool) {
	if index < 0 || index >= len(d.Ems) {
		return EmsDevice{}, false
	}
	return d.Ems[index], true
}

// SensorByType returns the first sensor of the given type (for example
// SensorTypeGrid).
func (d *Data) SensorByType(sensorType string) (SensorData, bool) {
	for _, sensor := range d.Sensors {
		if sensor.Type == sensorType {
			return sensor, true
		}
	}
	return SensorData{}, false
}

// BmsSoc returns the state of charge of the given pack index as a
// percentage, reporting absence when the pack is not present.
func (dev *EmsDevice) BmsSoc(index int) (float64, bool) {
	if index < 0 || index >= len(dev.BmsData) {
		return 0, false
	}
	return float64(dev.BmsData[index].Soc) / 100, true
}
