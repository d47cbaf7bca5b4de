package emskit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/hubertat/emskit/homevolt"
	"github.com/hubertat/emskit/mqtt"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeName = "emskit"
const homeKitBridgeAuthor = "github.com/hubertat"

const defaultScanIntervalSeconds = 30
const commandDispatchTimeout = 10 * time.Second

const mqttStatusTopic = "emskit/status"
const mqttCommandTopic = "emskit/cmd"

// EmsKit polls one or more Homevolt EMS units, keeps the merged snapshot
// of the last successful cycle and feeds it to whatever outer surfaces
// are configured: HomeKit accessories, the HTTP status API, MQTT and
// Influx. The struct doubles as the JSON configuration file layout.
type EmsKit struct {
	Name string

	// legacy single-unit configuration, normalized into the lists below
	Host     string
	Resource string

	Hosts     []string
	Resources []string
	MainHost  string

	Username      string
	Password      string
	SkipTlsVerify bool

	ScanIntervalSeconds int
	TimeoutSeconds      int

	HkPin       string
	HkDirectory string
	HkAddress   string
	HkDebug     bool

	MqttBroker string
	StatusAddr string

	Influx *InfluxExporter

	client     *homevolt.Client
	poller     *homevolt.Poller
	consoleURL string

	batteries    []*Battery
	statusServer *StatusServer
	mqttClient   *mqtt.MqttClient
	ticker       *time.Ticker
	logger       *log.Logger

	mu     sync.RWMutex
	latest *homevolt.Data
}

// normalize folds the legacy single-resource configuration into the
// multi-resource one, derives missing resource URLs from bare hosts and
// settles the main host, so everything past this point only ever sees
// the canonical list-of-(host, url) form.
func (kit *EmsKit) normalize() ([]homevolt.Resource, error) {
	hosts := append([]string{}, kit.Hosts...)
	resources := append([]string{}, kit.Resources...)

	if len(hosts) == 0 && len(kit.Host) > 0 {
		hosts = []string{kit.Host}
	}

	if len(resources) == 0 && len(kit.Resource) > 0 {
		resources = []string{kit.Resource}
		if len(hosts) == 0 {
			hosts = []string{hostFromResource(kit.Resource)}
		}
	}

	if len(hosts) == 0 {
		return nil, errors.New("no hosts configured")
	}

	if len(resources) == 0 {
		for _, host := range hosts {
			resources = append(resources, homevolt.ResourceURL(host))
		}
	}

	if len(resources) != len(hosts) {
		return nil, errors.Errorf("configured %d hosts but %d resources", len(hosts), len(resources))
	}

	seen := map[string]struct{}{}
	list := []homevolt.Resource{}
	for ix, host := range hosts {
		if len(strings.TrimSpace(host)) == 0 || strings.Contains(host, " ") {
			return nil, errors.Errorf("invalid host: %q", host)
		}
		if _, duplicate := seen[host]; duplicate {
			return nil, errors.Errorf("host %s configured twice", host)
		}
		seen[host] = struct{}{}
		list = append(list, homevolt.Resource{Host: host, URL: resources[ix]})
	}

	if len(kit.MainHost) == 0 {
		kit.MainHost = hosts[0]
	}
	if _, present := seen[kit.MainHost]; !present {
		return nil, errors.Errorf("main host %s is not among configured hosts", kit.MainHost)
	}

	kit.consoleURL = consoleURLFor(list, kit.MainHost)

	return list, nil
}

func hostFromResource(resource string) string {
	stripped := resource
	if _, rest, found := strings.Cut(resource, "://"); found {
		stripped = rest
	}
	host, _, _ := strings.Cut(stripped, "/")
	return host
}

// consoleURLFor derives the console endpoint from the main host's
// resource URL, keeping its scheme.
func consoleURLFor(resources []homevolt.Resource, mainHost string) string {
	for _, resource := range resources {
		if resource.Host == mainHost && strings.HasSuffix(resource.URL, "/ems.json") {
			return strings.TrimSuffix(resource.URL, "/ems.json") + "/console.json"
		}
	}

	return homevolt.ConsoleURL(mainHost)
}

// Init normalizes the configuration, builds the client and poller and
// runs the first refresh synchronously. A failure of that very first
// refresh is fatal: the kit refuses to start without ever having seen
// the system.
func (kit *EmsKit) Init(ctx context.Context) error {
	kit.logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "emskit: ",
		Level:  log.GetLevel(),
	})

	resources, err := kit.normalize()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	kit.client = &homevolt.Client{
		HTTPClient: homevolt.NewHTTPClient(kit.SkipTlsVerify),
		Username:   kit.Username,
		Password:   kit.Password,
	}

	kit.poller = homevolt.NewPoller(kit.client, resources, kit.MainHost, kit.consoleURL)
	if kit.TimeoutSeconds > 0 {
		kit.poller.Timeout = time.Duration(kit.TimeoutSeconds) * time.Second
	}

	err = kit.Refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "first refresh failed")
	}

	return kit.initBatteries()
}

func (kit *EmsKit) initBatteries() error {
	data := kit.Latest()

	name := kit.Name
	if len(name) == 0 {
		name = homeKitBridgeName
	}

	kit.batteries = []*Battery{NewAggregatedBattery(name + " total")}
	for ix := range data.Ems {
		kit.batteries = append(kit.batteries, &Battery{
			Name:        fmt.Sprintf("%s unit %d", name, ix),
			DeviceIndex: ix,
		})
	}

	for _, battery := range kit.batteries {
		err := battery.Init()
		if err != nil {
			return errors.Wrap(err, "failed to init battery accessory")
		}
		battery.Sync(data)
	}

	return nil
}

// Refresh runs one poll cycle and pushes the result to every configured
// sink. On a failed cycle the previous snapshot is kept and the error is
// returned; the next tick is the only retry.
func (kit *EmsKit) Refresh(ctx context.Context) error {
	data, err := kit.poller.Refresh(ctx)
	if err != nil {
		return err
	}

	kit.mu.Lock()
	kit.latest = data
	kit.mu.Unlock()

	for _, battery := range kit.batteries {
		battery.Sync(data)
	}

	kit.publishStatus(data)

	if kit.Influx != nil {
		err = kit.Influx.Write(ctx, data)
		if err != nil {
			kit.logger.Error("failed to export snapshot to influx", "err", err)
		}
	}

	return nil
}

// Latest returns the snapshot of the last successful poll cycle, nil
// before the first one finished.
func (kit *EmsKit) Latest() *homevolt.Data {
	kit.mu.RLock()
	defer kit.mu.RUnlock()

	return kit.latest
}

// StartTicker runs the poll loop until the context is cancelled. Cycles
// never overlap: the next tick is only consumed after the previous
// refresh settled.
func (kit *EmsKit) StartTicker(ctx context.Context) {
	interval := time.Duration(kit.ScanIntervalSeconds) * time.Second
	if kit.ScanIntervalSeconds <= 0 {
		interval = defaultScanIntervalSeconds * time.Second
	}

	kit.ticker = time.NewTicker(interval)

	for {
		select {
		case <-ctx.Done():
			kit.ticker.Stop()
			return
		case <-kit.ticker.C:
			err := kit.Refresh(ctx)
			if err != nil {
				kit.logger.Error("refresh cycle failed, keeping previous data", "err", err)
			}
		}
	}
}

// AddSchedule formats and dispatches a sched_add console command. Fire
// once, report, no retry.
func (kit *EmsKit) AddSchedule(ctx context.Context, mode string, setpoint int, fromTime, toTime string) error {
	command := fmt.Sprintf("sched_add %s --setpoint %d --from=%s --to=%s",
		mode, setpoint, fromTime, toTime)

	return kit.SendCommand(ctx, command)
}

// SendCommand posts a raw console command to the main host.
func (kit *EmsKit) SendCommand(ctx context.Context, command string) error {
	ctx, cancel := context.WithTimeout(ctx, commandDispatchTimeout)
	defer cancel()

	err := kit.client.SendCommand(ctx, kit.consoleURL, command)
	if err != nil {
		kit.logger.Error("failed to send console command",
			"host", kit.MainHost, "command", command, "err", err)
		return err
	}

	kit.logger.Info("console command sent", "host", kit.MainHost, "command", command)
	return nil
}

func (kit *EmsKit) getHkAccessories(firmwareVersion string) (acc []*accessory.A) {
	acc = []*accessory.A{}

	for _, battery := range kit.batteries {
		hkAcc := battery.GetHk()
		if hkAcc != nil {
			if hkAcc.Info != nil && hkAcc.Info.FirmwareRevision != nil {
				hkAcc.Info.FirmwareRevision.SetValue(firmwareVersion)
			}
			hkAcc.Id = battery.GetUniqueId()
			acc = append(acc, hkAcc)
		}
	}

	return
}

// StartHomeKit serves the battery accessories behind a HomeKit bridge
// until the context is cancelled or an interrupt arrives.
func (kit *EmsKit) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	hkName := kit.Name
	if len(hkName) < 1 {
		hkName = homeKitBridgeName
	}
	bridge := accessory.NewBridge(accessory.Info{
		Name:         hkName,
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(kit.HkDirectory) > 1 {
		store = hap.NewFsStore(kit.HkDirectory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, kit.getHkAccessories(firmwareVersion)...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = kit.HkPin
	if len(kit.HkAddress) > 0 {
		hkServer.Addr = kit.HkAddress
	}

	if kit.HkDebug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-c
		signal.Stop(c)
		cancel()
	}()

	return hkServer.ListenAndServe(ctx)
}

// StartStatusServer brings up the HTTP status API when an address is
// configured.
func (kit *EmsKit) StartStatusServer() error {
	if len(kit.StatusAddr) == 0 {
		return errors.New("status server address not set")
	}

	kit.statusServer = newStatusServer(kit, kit.StatusAddr)
	return kit.statusServer.Start()
}

// InitMqtt connects to the broker; the kit subscribes for console
// commands and publishes every refreshed snapshot.
func (kit *EmsKit) InitMqtt() (err error) {
	if len(kit.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}

	clientId := kit.Name
	if len(clientId) == 0 {
		clientId = homeKitBridgeName
	}

	mc, err := mqtt.NewMqttClient(kit.MqttBroker, clientId)
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	kit.mqttClient = mc

	err = mc.Connect([]mqtt.MqttHandler{kit})
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
	}

	return
}

// MqttSubscribeTopic implements mqtt.MqttHandler.
func (kit *EmsKit) MqttSubscribeTopic() string {
	return mqttCommandTopic
}

// MqttHandle forwards a console command received over MQTT verbatim.
func (kit *EmsKit) MqttHandle(pub *paho.Publish) {
	command := strings.TrimSpace(string(pub.Payload))
	if len(command) == 0 {
		return
	}

	err := kit.SendCommand(context.Background(), command)
	if err != nil {
		kit.logger.Error("mqtt command dispatch failed", "err", err)
	}
}

func (kit *EmsKit) publishStatus(data *homevolt.Data) {
	if kit.mqttClient == nil {
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		kit.logger.Error("failed to marshal snapshot for mqtt", "err", err)
		return
	}

	err = kit.mqttClient.Publish(mqttStatusTopic, body)
	if err != nil {
		kit.logger.Error("failed to publish snapshot", "err", err)
	}
}

// PrintStatus writes a short human readable summary of the latest
// snapshot.
func (kit *EmsKit) PrintStatus(writer io.Writer) {
	data := kit.Latest()

	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== emskit status ===")
	fmt.Fprintf(writer, "| main host: %s\n", kit.MainHost)
	if data == nil {
		fmt.Fprintln(writer, "| no data fetched yet")
		fmt.Fprintln(writer, "---------------------")
		return
	}

	fmt.Fprintf(writer, "| ts: %d, ems units: %d, sensors: %d\n",
		data.Ts, len(data.Ems), len(data.Sensors))
	fmt.Fprintf(writer, "| aggregated state: %s, power: %d W\n",
		data.Aggregated.EmsData.StateStr, data.Aggregated.EmsData.Power)
	if soc, found := data.Aggregated.BmsSoc(homevolt.BmsDataIndexTotal); found {
		fmt.Fprintf(writer, "| total soc: %.1f %%\n", soc)
	}
	fmt.Fprintf(writer, "| schedules: %d, current: %s\n",
		data.Schedule.Count, data.Schedule.CurrentId)
	fmt.Fprintln(writer, "---------------------")
	fmt.Fprintln(writer)
}

func (kit *EmsKit) Close() (err error) {
	if kit.ticker != nil {
		kit.ticker.Stop()
	}

	if kit.statusServer != nil {
		closeErr := kit.statusServer.Close()
		if closeErr != nil {
			err = errors.Wrap(closeErr, "failed to close status server")
		}
	}

	if kit.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		closeErr := kit.mqttClient.Disconnect(ctx)
		if closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "failed to disconnect mqtt client")
		}
	}

	return
}
