package homevolt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResourceURL(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"homevolt.local", "https://homevolt.local/ems.json"},
		{"https://homevolt.local", "https://homevolt.local/ems.json"},
		{"http://192.168.1.20", "http://192.168.1.20/ems.json"},
	}

	for _, tc := range cases {
		got := ResourceURL(tc.host)
		if got != tc.want {
			t.Errorf("ResourceURL(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}

func TestConsoleURL(t *testing.T) {
	got := ConsoleURL("homevolt.local")
	want := "https://homevolt.local/console.json"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFetchResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("got method %s, want GET", r.Method)
		}
		w.Write([]byte(`{"ts": 7, "ems": [{"ecu_id": 1}]}`))
	}))
	defer server.Close()

	cl := &Client{HTTPClient: server.Client()}
	parsed, err := cl.FetchResource(context.Background(), server.URL+emsResourcePath)
	if err != nil {
		t.Fatalf("FetchResource failed: %v", err)
	}
	if parsed.Ts != 7 || len(parsed.Ems) != 1 {
		t.Errorf("unexpected payload: %+v", parsed)
	}
}

func TestFetchResourceBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	cl := &Client{HTTPClient: server.Client()}
	_, err := cl.FetchResource(context.Background(), server.URL)
	if err == nil {
		t.Error("non-200 status should fail the fetch")
	}
}

func TestClientAuth(t *testing.T) {
	var gotUser, gotPass string
	var gotAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotAuth = r.BasicAuth()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	t.Run("both credentials set", func(t *testing.T) {
		cl := &Client{HTTPClient: server.Client(), Username: "admin", Password: "secret"}
		_, err := cl.FetchResource(context.Background(), server.URL)
		if err != nil {
			t.Fatal(err)
		}
		if !gotAuth || gotUser != "admin" || gotPass != "secret" {
			t.Errorf("expected basic auth admin/secret, got (%q, %q, %v)", gotUser, gotPass, gotAuth)
		}
	})

	t.Run("username only", func(t *testing.T) {
		cl := &Client{HTTPClient: server.Client(), Username: "admin"}
		_, err := cl.FetchResource(context.Background(), server.URL)
		if err != nil {
			t.Fatal(err)
		}
		if gotAuth {
			t.Error("username alone must not enable auth")
		}
	})

	t.Run("blank credentials", func(t *testing.T) {
		cl := &Client{HTTPClient: server.Client(), Username: "  ", Password: "secret"}
		_, err := cl.FetchResource(context.Background(), server.URL)
		if err != nil {
			t.Fatal(err)
		}
		if gotAuth {
			t.Error("whitespace-only username must not enable auth")
		}
	})
}

func TestFetchSchedule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostFormValue(commandField); got != scheduleListCommand {
			t.Errorf("got cmd %q, want %q", got, scheduleListCommand)
		}
		w.Write([]byte("Schedule get: 2 schedules. Current ID: 'manual'\nid: 1, type: Idle\nid: 2, type: Idle\n"))
	}))
	defer server.Close()

	cl := &Client{HTTPClient: server.Client()}
	summary, err := cl.FetchSchedule(context.Background(), server.URL+consoleResourcePath)
	if err != nil {
		t.Fatalf("FetchSchedule failed: %v", err)
	}
	if summary.Count != 2 || summary.CurrentId != "manual" || len(summary.Entries) != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestSendCommand(t *testing.T) {
	var gotCmd string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotCmd = r.PostFormValue(commandField)
		w.Write([]byte("Command executed"))
	}))
	defer server.Close()

	cl := &Client{HTTPClient: server.Client()}
	command := "sched_add idle --setpoint 0 --from=2025-08-24T00:00:00 --to=2025-08-24T01:00:00"
	err := cl.SendCommand(context.Background(), server.URL+consoleResourcePath, command)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if gotCmd != command {
		t.Errorf("got cmd %q, want %q", gotCmd, command)
	}
}

func TestSendCommandBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	cl := &Client{HTTPClient: server.Client()}
	err := cl.SendCommand(context.Background(), server.URL, "sched_list")
	if err == nil {
		t.Error("non-200 status should fail the command")
	}
}
