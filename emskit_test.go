package emskit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeHosts(t *testing.T) {
	kit := &EmsKit{Hosts: []string{"hv-main.local", "hv-second.local"}}

	resources, err := kit.normalize()
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if len(resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(resources))
	}
	if resources[0].URL != "https://hv-main.local/ems.json" {
		t.Errorf("unexpected derived url: %q", resources[0].URL)
	}
	if kit.MainHost != "hv-main.local" {
		t.Errorf("main host should default to the first host, got %q", kit.MainHost)
	}
	if kit.consoleURL != "https://hv-main.local/console.json" {
		t.Errorf("unexpected console url: %q", kit.consoleURL)
	}
}

func TestNormalizeLegacySingleHost(t *testing.T) {
	kit := &EmsKit{Host: "homevolt.local"}

	resources, err := kit.normalize()
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if len(resources) != 1 || resources[0].Host != "homevolt.local" {
		t.Errorf("unexpected resources: %+v", resources)
	}
	if kit.MainHost != "homevolt.local" {
		t.Errorf("unexpected main host: %q", kit.MainHost)
	}
}

func TestNormalizeLegacyResource(t *testing.T) {
	kit := &EmsKit{Resource: "http://192.168.1.20/ems.json"}

	resources, err := kit.normalize()
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if len(resources) != 1 {
		t.Fatalf("got %d resources, want 1", len(resources))
	}
	if resources[0].Host != "192.168.1.20" {
		t.Errorf("host should be derived from the resource url, got %q", resources[0].Host)
	}
	if kit.consoleURL != "http://192.168.1.20/console.json" {
		t.Errorf("console url should keep the resource's scheme, got %q", kit.consoleURL)
	}
}

func TestNormalizeExplicitMainHost(t *testing.T) {
	kit := &EmsKit{
		Hosts:    []string{"hv-a", "hv-b"},
		MainHost: "hv-b",
	}

	_, err := kit.normalize()
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if kit.MainHost != "hv-b" {
		t.Errorf("explicit main host must be kept, got %q", kit.MainHost)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name string
		kit  *EmsKit
	}{
		{"no hosts", &EmsKit{}},
		{"empty host", &EmsKit{Hosts: []string{""}}},
		{"host with space", &EmsKit{Hosts: []string{"hv host"}}},
		{"duplicate host", &EmsKit{Hosts: []string{"hv", "hv"}}},
		{"host resource mismatch", &EmsKit{Hosts: []string{"hv-a", "hv-b"}, Resources: []string{"https://hv-a/ems.json"}}},
		{"unknown main host", &EmsKit{Hosts: []string{"hv-a"}, MainHost: "hv-x"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.kit.normalize()
			if err == nil {
				t.Error("expected a configuration error")
			}
		})
	}
}

func TestHostFromResource(t *testing.T) {
	cases := []struct {
		resource string
		want     string
	}{
		{"https://homevolt.local/ems.json", "homevolt.local"},
		{"http://192.168.1.20/ems.json", "192.168.1.20"},
		{"homevolt.local/ems.json", "homevolt.local"},
	}

	for _, tc := range cases {
		got := hostFromResource(tc.resource)
		if got != tc.want {
			t.Errorf("hostFromResource(%q) = %q, want %q", tc.resource, got, tc.want)
		}
	}
}

func testKitHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ems.json":
			w.Write([]byte(`{"ts": 42,
				"aggregated": {"ecu_id": 1, "ems_data": {"power": -500}, "bms_data": [{"soc": 100}, {"soc": 5500}]},
				"ems": [{"ecu_id": 1, "bms_data": [{"soc": 5500}]}],
				"sensors": [{"euid": "s1", "type": "grid", "total_power": 230}]}`))
		case "/console.json":
			w.Write([]byte("Schedule get: 1 schedules. Current ID: 'manual'\nid: 1, type: Idle\n"))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

func newTestKit(t *testing.T) (*EmsKit, *httptest.Server) {
	server := httptest.NewServer(testKitHandler(t))

	kit := &EmsKit{
		Hosts:     []string{"test-host"},
		Resources: []string{server.URL + "/ems.json"},
	}

	err := kit.Init(context.Background())
	if err != nil {
		server.Close()
		t.Fatalf("Init failed: %v", err)
	}

	return kit, server
}

func TestKitInitAndRefresh(t *testing.T) {
	kit, server := newTestKit(t)
	defer server.Close()
	defer kit.Close()

	data := kit.Latest()
	if data == nil {
		t.Fatal("Init must run the first refresh synchronously")
	}
	if data.Ts != 42 || len(data.Ems) != 1 {
		t.Errorf("unexpected snapshot: %+v", data)
	}
	if data.Schedule.Count != 1 {
		t.Errorf("unexpected schedule: %+v", data.Schedule)
	}

	// one aggregated battery plus one per unit
	if len(kit.batteries) != 2 {
		t.Errorf("got %d batteries, want 2", len(kit.batteries))
	}
}

func TestKitInitFailsWithoutReachableHost(t *testing.T) {
	kit := &EmsKit{Hosts: []string{"127.0.0.1:1"}, TimeoutSeconds: 1}

	err := kit.Init(context.Background())
	if err == nil {
		t.Error("a failing first refresh must be fatal")
	}
}

func TestKitRefreshKeepsPreviousOnFailure(t *testing.T) {
	kit, server := newTestKit(t)
	defer kit.Close()

	before := kit.Latest()
	server.Close()

	err := kit.Refresh(context.Background())
	if err == nil {
		t.Error("refresh with every host down must fail")
	}
	if kit.Latest() != before {
		t.Error("a failed cycle must keep the previous snapshot")
	}
}

func TestKitAddSchedule(t *testing.T) {
	var gotCmd string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/console.json" && r.Method == http.MethodPost {
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if cmd := r.PostFormValue("cmd"); cmd != "sched_list" {
				gotCmd = cmd
			}
			w.Write([]byte("Command executed"))
			return
		}
		w.Write([]byte(`{"ems": [{"ecu_id": 1}]}`))
	}))
	defer server.Close()

	kit := &EmsKit{
		Hosts:     []string{"test-host"},
		Resources: []string{server.URL + "/ems.json"},
	}
	err := kit.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer kit.Close()

	err = kit.AddSchedule(context.Background(), "idle", -2500,
		"2025-08-24T00:00:00", "2025-08-24T01:00:00")
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	want := "sched_add idle --setpoint -2500 --from=2025-08-24T00:00:00 --to=2025-08-24T01:00:00"
	if gotCmd != want {
		t.Errorf("got command %q, want %q", gotCmd, want)
	}
}
