package emskit

import (
	"fmt"

	"github.com/hubertat/emskit/homevolt"
)

// ReadingKind selects which part of the snapshot a reading resolves
// against.
type ReadingKind int

const (
	// ReadingAggregated reads from the whole-system rollup view.
	ReadingAggregated ReadingKind = iota
	// ReadingDevice reads from one EMS unit, addressed by list index.
	ReadingDevice
	// ReadingSensor reads from the first metering sensor of a role
	// (grid, solar or load).
	ReadingSensor
)

// ReadingField names the extracted value.
type ReadingField int

const (
	FieldPower ReadingField = iota
	FieldEnergyProducedKwh
	FieldEnergyConsumedKwh
	FieldSoc
	FieldSensorPower
	FieldSensorEnergyImported
	FieldSensorEnergyExported
)

// ReadingSpec is one row of the readings catalog: what to extract, from
// which list and at which index or role. Specs are plain data resolved
// against the snapshot at render time, so nothing captures a list index
// by reference and a short list simply yields no value.
type ReadingSpec struct {
	Key   string
	Kind  ReadingKind
	Index int
	Role  string
	Field ReadingField
}

// Resolve extracts the reading from the snapshot. The second return
// value reports absence: a device index past the list, a missing sensor
// role or a battery pack the payload did not include.
func (rs ReadingSpec) Resolve(data *homevolt.Data) (float64, bool) {
	if data == nil {
		return 0, false
	}

	switch rs.Kind {
	case ReadingAggregated:
		return resolveDeviceField(data.Aggregated, rs.Field, homevolt.BmsDataIndexTotal)
	case ReadingDevice:
		device, found := data.Device(rs.Index)
		if !found {
			return 0, false
		}
		return resolveDeviceField(device, rs.Field, homevolt.BmsDataIndexDevice)
	case ReadingSensor:
		sensor, found := data.SensorByType(rs.Role)
		if !found {
			return 0, false
		}
		return resolveSensorField(sensor, rs.Field)
	}

	return 0, false
}

func resolveDeviceField(device homevolt.EmsDevice, field ReadingField, socPack int) (float64, bool) {
	switch field {
	case FieldPower:
		return float64(device.EmsData.Power), true
	case FieldEnergyProducedKwh:
		return float64(device.EmsData.EnergyProduced) / 1000, true
	case FieldEnergyConsumedKwh:
		return float64(device.EmsData.EnergyConsumed) / 1000, true
	case FieldSoc:
		return device.BmsSoc(socPack)
	}

	return 0, false
}

func resolveSensorField(sensor homevolt.SensorData, field ReadingField) (float64, bool) {
	switch field {
	case FieldSensorPower:
		return float64(sensor.TotalPower), true
	case FieldSensorEnergyImported:
		return sensor.EnergyImported, true
	case FieldSensorEnergyExported:
		return sensor.EnergyExported, true
	}

	return 0, false
}

// Readings builds the catalog for a snapshot with the given number of
// EMS units: the aggregated rollup, every unit by index and the three
// well known sensor roles.
func Readings(deviceCount int) []ReadingSpec {
	specs := []ReadingSpec{
		{Key: "power", Kind: ReadingAggregated, Field: FieldPower},
		{Key: "energy_produced", Kind: ReadingAggregated, Field: FieldEnergyProducedKwh},
		{Key: "energy_consumed", Kind: ReadingAggregated, Field: FieldEnergyConsumedKwh},
		{Key: "total_soc", Kind: ReadingAggregated, Field: FieldSoc},
	}

	for ix := 0; ix < deviceCount; ix++ {
		specs = append(specs,
			ReadingSpec{Key: fmt.Sprintf("device_%d_power", ix), Kind: ReadingDevice, Index: ix, Field: FieldPower},
			ReadingSpec{Key: fmt.Sprintf("device_%d_energy_produced", ix), Kind: ReadingDevice, Index: ix, Field: FieldEnergyProducedKwh},
			ReadingSpec{Key: fmt.Sprintf("device_%d_energy_consumed", ix), Kind: ReadingDevice, Index: ix, Field: FieldEnergyConsumedKwh},
			ReadingSpec{Key: fmt.Sprintf("device_%d_soc", ix), Kind: ReadingDevice, Index: ix, Field: FieldSoc},
		)
	}

	for _, role := range []string{homevolt.SensorTypeGrid, homevolt.SensorTypeSolar, homevolt.SensorTypeLoad} {
		specs = append(specs,
			ReadingSpec{Key: role + "_power", Kind: ReadingSensor, Role: role, Field: FieldSensorPower},
			ReadingSpec{Key: role + "_energy_imported", Kind: ReadingSensor, Role: role, Field: FieldSensorEnergyImported},
			ReadingSpec{Key: role + "_energy_exported", Kind: ReadingSensor, Role: role, Field: FieldSensorEnergyExported},
		)
	}

	return specs
}
