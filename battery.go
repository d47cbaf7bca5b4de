package emskit

import (
	"fmt"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/hubertat/emskit/homevolt"
)

const aggregatedBatteryIndex = -1
const lowBatteryThreshold = 20.0

// Battery exposes the state of charge of one EMS unit (or of the
// aggregated whole-system view) as a HomeKit battery accessory.
type Battery struct {
	Name        string
	DeviceIndex int

	hkAccessory *accessory.A
	hkBattery   *service.BatteryService
	hkFault     *characteristic.StatusFault
}

// NewAggregatedBattery builds the accessory for the whole-system rollup.
func NewAggregatedBattery(name string) *Battery {
	return &Battery{Name: name, DeviceIndex: aggregatedBatteryIndex}
}

func (ba *Battery) serial() string {
	if ba.DeviceIndex == aggregatedBatteryIndex {
		return "homevolt:aggregated"
	}
	return fmt.Sprintf("homevolt:ems:%02d", ba.DeviceIndex)
}

func (ba *Battery) Init() error {
	info := accessory.Info{
		Name:         ba.Name,
		SerialNumber: ba.serial(),
	}

	ba.hkAccessory = accessory.New(info, accessory.TypeSensor)
	ba.hkBattery = service.NewBatteryService()
	ba.hkFault = characteristic.NewStatusFault()
	ba.hkFault.SetValue(characteristic.StatusFaultGeneralFault)
	ba.hkBattery.AddC(ba.hkFault.C)
	ba.hkAccessory.AddS(ba.hkBattery.S)

	return nil
}

// Sync pushes the latest snapshot into the accessory. A missing device
// index or battery pack marks the accessory faulted instead of touching
// the stale values.
func (ba *Battery) Sync(data *homevolt.Data) {
	if ba.hkAccessory == nil {
		return
	}

	device, soc, found := ba.readDevice(data)
	if !found {
		ba.hkFault.SetValue(characteristic.StatusFaultGeneralFault)
		return
	}

	ba.hkFault.SetValue(characteristic.StatusFaultNoFault)
	ba.hkBattery.BatteryLevel.SetValue(int(soc))

	if soc < lowBatteryThreshold {
		ba.hkBattery.StatusLowBattery.SetValue(characteristic.StatusLowBatteryBatteryLevelLow)
	} else {
		ba.hkBattery.StatusLowBattery.SetValue(characteristic.StatusLowBatteryBatteryLevelNormal)
	}

	// negative power means the unit is taking energy in
	if device.EmsData.Power < 0 {
		ba.hkBattery.ChargingState.SetValue(characteristic.ChargingStateCharging)
	} else {
		ba.hkBattery.ChargingState.SetValue(characteristic.ChargingStateNotCharging)
	}
}

func (ba *Battery) readDevice(data *homevolt.Data) (device homevolt.EmsDevice, soc float64, found bool) {
	if data == nil {
		return
	}

	if ba.DeviceIndex == aggregatedBatteryIndex {
		device = data.Aggregated
		soc, found = device.BmsSoc(homevolt.BmsDataIndexTotal)
		return
	}

	device, found = data.Device(ba.DeviceIndex)
	if !found {
		return
	}
	soc, found = device.BmsSoc(homevolt.BmsDataIndexDevice)
	return
}

func (ba *Battery) GetHk() *accessory.A {
	return ba.hkAccessory
}

func (ba *Battery) GetUniqueId() uint64 {
	return uint64(0x0b000000) + uint64(ba.DeviceIndex+2)
}
