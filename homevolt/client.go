package homevolt

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	emsResourcePath     = "/ems.json"
	consoleResourcePath = "/console.json"
)

const commandField = "cmd"
const scheduleListCommand = "sched_list"

// ResourceURL derives the status endpoint URL from a bare host. Hosts
// without a scheme default to https.
func ResourceURL(host string) string {
	return baseURL(host) + emsResourcePath
}

// ConsoleURL derives the command console endpoint URL from a bare host.
func ConsoleURL(host string) string {
	return baseURL(host) + consoleResourcePath
}

func baseURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// NewHTTPClient builds the shared http client for a kit. The client is
// reused read-only across all fetches of a cycle and across cycles; the
// per-fetch deadline comes from the request context, not from here.
func NewHTTPClient(skipTLSVerify bool) *http.Client {
	client := &http.Client{}
	if skipTLSVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}

// Client talks to the HTTP API of Homevolt EMS units. Basic auth is only
// applied when both a username and a password are configured; either one
// alone disables it entirely.
type Client struct {
	HTTPClient *http.Client
	Username   string
	Password   string
}

func (cl *Client) httpClient() *http.Client {
	if cl.HTTPClient != nil {
		return cl.HTTPClient
	}
	return http.DefaultClient
}

func (cl *Client) applyAuth(req *http.Request) {
	username := strings.TrimSpace(cl.Username)
	password := strings.TrimSpace(cl.Password)
	if len(username) > 0 && len(password) > 0 {
		req.SetBasicAuth(username, password)
	}
}

// FetchResource GETs one resource URL and parses the JSON envelope. Any
// transport error, non-200 status or parse failure is reported to the
// caller; the poller treats those as a per-resource failure.
func (cl *Client) FetchResource(ctx context.Context, resource string) (*payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to prepare request for %s", resource)
	}
	cl.applyAuth(req)

	resp, err := cl.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", resource)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status code %d from %s", resp.StatusCode, resource)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response from %s", resource)
	}

	return parsePayload(body)
}

// FetchSchedule POSTs sched_list to the console endpoint and parses the
// plaintext listing.
func (cl *Client) FetchSchedule(ctx context.Context, consoleURL string) (ScheduleSummary, error) {
	body, err := cl.postCommand(ctx, consoleURL, scheduleListCommand)
	if err != nil {
		return ScheduleSummary{Entries: []ScheduleEntry{}}, err
	}

	return ParseSchedule(body), nil
}

// SendCommand POSTs a single console command, like the sched_add command
// built by the kit. Only the HTTP status decides success; there is no
// retry, the caller reports the failure and moves on.
func (cl *Client) SendCommand(ctx context.Context, consoleURL string, command string) error {
	_, err := cl.postCommand(ctx, consoleURL, command)
	return err
}

func (cl *Client) postCommand(ctx context.Context, consoleURL string, command string) (string, error) {
	form := url.Values{}
	form.Set(commandField, command)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, consoleURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrapf(err, "failed to prepare console request for %s", consoleURL)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	cl.applyAuth(req)

	resp, err := cl.httpClient().Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "console request to %s failed", consoleURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read console response from %s", consoleURL)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("console command on %s returned status %d", consoleURL, resp.StatusCode)
	}

	return string(body), nil
}
