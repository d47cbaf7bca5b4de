package emskit

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/pkg/errors"

	"github.com/hubertat/emskit/homevolt"
)

const influxWriteTimeout = 5 * time.Second

// InfluxExporter pushes the readings of every finished poll cycle as a
// single measurement point. It forwards the latest cycle only; history
// is Influx's business, not this kit's.
type InfluxExporter struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	Tags map[string]string
}

func (ie *InfluxExporter) measurement() string {
	if len(ie.Measurement) > 0 {
		return ie.Measurement
	}
	return "emskit"
}

// Write sends one point holding every reading resolvable from the
// snapshot. Unresolvable readings (short lists, missing sensor roles)
// are left out of the point instead of writing zeros.
func (ie *InfluxExporter) Write(ctx context.Context, data *homevolt.Data) error {
	fields := map[string]interface{}{}
	for _, spec := range Readings(len(data.Ems)) {
		value, found := spec.Resolve(data)
		if !found {
			continue
		}
		fields[spec.Key] = value
	}

	if len(fields) == 0 {
		return errors.New("snapshot yielded no resolvable readings")
	}

	client := influxdb2.NewClient(ie.Host, ie.Token)
	defer client.Close()

	writeCtx, cancel := context.WithTimeout(ctx, influxWriteTimeout)
	defer cancel()

	point := influxdb2.NewPoint(ie.measurement(), ie.Tags, fields, time.Now())
	err := client.WriteAPIBlocking(ie.Organization, ie.Bucket).WritePoint(writeCtx, point)
	if err != nil {
		return errors.Wrap(err, "failed to write point to influx")
	}

	return nil
}
