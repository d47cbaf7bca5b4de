package homevolt

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds every fetch of a poll cycle; it mirrors the
// default scan interval's safety margin.
const DefaultTimeout = 30 * time.Second

// Resource is one configured unit to poll: its host identity plus the
// derived status URL.
type Resource struct {
	Host string
	URL  string
}

// Poller fetches every configured resource and the schedule listing
// concurrently and merges the results into one snapshot. One Refresh
// call is one cycle; the caller owns the cadence and must not overlap
// cycles.
type Poller struct {
	Client     *Client
	Resources  []Resource
	MainHost   string
	ConsoleURL string
	Timeout    time.Duration

	logger *log.Logger
}

func NewPoller(client *Client, resources []Resource, mainHost string, consoleURL string) *Poller {
	return &Poller{
		Client:     client,
		Resources:  resources,
		MainHost:   mainHost,
		ConsoleURL: consoleURL,
		Timeout:    DefaultTimeout,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "poller: ",
			Level:  log.GetLevel(),
		}),
	}
}

// Refresh runs one poll cycle. Per-resource failures are logged and the
// resource is left out of the merge; a schedule fetch failure degrades
// to an empty listing. Only the case of every resource failing is an
// error, which the caller surfaces as a stale/unavailable cycle.
func (po *Poller) Refresh(ctx context.Context) (*Data, error) {
	if len(po.Resources) == 0 {
		return nil, errors.New("no resources configured")
	}

	payloads := make([]*payload, len(po.Resources))
	fetchErrs := make([]error, len(po.Resources))

	var schedule ScheduleSummary
	var scheduleErr error

	var wg sync.WaitGroup
	for ix, resource := range po.Resources {
		wg.Add(1)
		go func(slot int, res Resource) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, po.timeout())
			defer cancel()
			payloads[slot], fetchErrs[slot] = po.Client.FetchResource(fetchCtx, res.URL)
		}(ix, resource)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, po.timeout())
		defer cancel()
		schedule, scheduleErr = po.Client.FetchSchedule(fetchCtx, po.ConsoleURL)
	}()

	wg.Wait()

	if scheduleErr != nil {
		po.logger.Error("failed to fetch schedule listing, continuing without it",
			"err", scheduleErr)
		schedule = ScheduleSummary{Entries: []ScheduleEntry{}}
	}

	// result order follows configuration order, the merge relies on it
	results := []hostPayload{}
	for ix, resource := range po.Resources {
		if fetchErrs[ix] != nil {
			po.logger.Error("failed to fetch resource",
				"host", resource.Host, "err", fetchErrs[ix])
			continue
		}
		results = append(results, hostPayload{host: resource.Host, payload: payloads[ix]})
	}

	if len(results) == 0 {
		return nil, errors.New("failed to fetch data from any resource")
	}

	seed, fellBack := pickSeed(results, po.MainHost)
	if fellBack {
		po.logger.Warn("main host data not available, using first reachable host",
			"main_host", po.MainHost, "used", results[0].host)
	}

	merged := mergePayloads(results, seed)

	data, err := decodeData(merged, schedule)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode merged data")
	}

	return data, nil
}

func (po *Poller) timeout() time.Duration {
	if po.Timeout > 0 {
		return po.Timeout
	}
	return DefaultTimeout
}
