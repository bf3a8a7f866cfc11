package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rtm0/era5query/internal/grid"
)

// Client is a Victoria Metrics client capable of inserting query results
// via various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    *url.URL
	maxConns     int
	metricPrefix string
	apiParams    apiParamsFunc
	rowToText    rowToTextFunc
}

const metricPrefixRE = "^[a-zA-Z0-9]+$"

// NewClient creates a new VM client.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string) (*Client, error) {
	u, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.MatchString(metricPrefixRE, metricPrefix)
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}

	apiParams := apiParamsFuncs[u.Path]
	rowToText := rowToTextFuncs[u.Path]
	if apiParams == nil || rowToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	if maxConns < 1 {
		maxConns = 1
	}

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		insertURL:    u,
		maxConns:     maxConns,
		metricPrefix: metricPrefix,
		apiParams:    apiParams,
		rowToText:    rowToText,
	}, nil
}

// Export inserts all rows of the table in batches of at most batchSize rows,
// with up to maxConns requests in flight. It returns the number of rows
// sent; rows with missing values are skipped.
func (c *Client) Export(ctx context.Context, table *grid.Table, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = len(table.Rows)
	}
	rows := presentRows(table.Rows)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConns)
	for begin := 0; begin < len(rows); begin += batchSize {
		limit := min(begin+batchSize, len(rows))
		batch := rows[begin:limit]
		g.Go(func() error {
			return c.Insert(ctx, table.Variable, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	c.logger.Info("exported rows", "variable", table.Variable, "rows", len(rows), "skipped", len(table.Rows)-len(rows))
	return len(rows), nil
}

func presentRows(rows []grid.Row) []grid.Row {
	out := make([]grid.Row, 0, len(rows))
	for _, r := range rows {
		if !grid.Missing(r.Value) {
			out = append(out, r)
		}
	}
	return out
}

// Insert inserts rows of one variable into Victoria Metrics.
func (c *Client) Insert(ctx context.Context, variable string, rows []grid.Row) error {
	u := *c.insertURL
	q := u.Query()
	for name, value := range c.apiParams(c.metricPrefix, variable) {
		q.Add(name, value)
	}
	u.RawQuery = q.Encode()

	body := rowsToText(rows, c.metricPrefix, variable, c.rowToText)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("post data: %w", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Warn("Failed to drain response body", "error", err)
	}
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: res.StatusCode}
	}
	return nil
}

// StatusError is returned when Victoria Metrics rejects an insert.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vm: unexpected status %d", e.StatusCode)
}

type apiParamsFunc func(metricPrefix, variable string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

func influxDBAPIParams(_, _ string) map[string]string {
	return map[string]string{"precision": "ms"}
}

func csvAPIParams(metricPrefix, variable string) map[string]string {
	return map[string]string{
		"format": fmt.Sprintf(""+
			"1:time:unix_ms,"+
			"2:label:la,"+
			"3:label:lo,"+
			"4:label:approx_la,"+
			"5:label:approx_lo,"+
			"6:metric:%s_%s", metricPrefix, variable),
	}
}

type rowToTextFunc func(*strings.Builder, *grid.Row, string, string)

// rowsToText converts multiple rows to text.
func rowsToText(rows []grid.Row, metricPrefix, variable string, rowToText rowToTextFunc) io.Reader {
	var sb strings.Builder
	for i := range rows {
		rowToText(&sb, &rows[i], metricPrefix, variable)
		sb.WriteString("\n")
	}
	return strings.NewReader(sb.String())
}

var rowToTextFuncs = map[string]rowToTextFunc{
	"/influx/write":        rowToInfluxDB,
	"/influx/api/v2/write": rowToInfluxDB,
	"/write":               rowToInfluxDB,
	"/api/v2/write":        rowToInfluxDB,
	"/api/v1/import/csv":   rowToCSV,
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// rowToInfluxDB converts a row into InfluxDB line protocol and appends it to
// the string builder. The measurement is the metric prefix and the field is
// the variable, so VM stores it as <prefix>_<variable>.
func rowToInfluxDB(sb *strings.Builder, r *grid.Row, metricPrefix, variable string) {
	sb.WriteString(metricPrefix)
	sb.WriteString(",la=")
	sb.WriteString(num(r.Latitude))
	sb.WriteString(",lo=")
	sb.WriteString(num(r.Longitude))
	sb.WriteString(",approx_la=")
	sb.WriteString(num(r.ApproxLatitude))
	sb.WriteString(",approx_lo=")
	sb.WriteString(num(r.ApproxLongitude))
	sb.WriteString(" ")
	sb.WriteString(variable)
	sb.WriteString("=")
	sb.WriteString(num(r.Value))
	sb.WriteString(" ")
	sb.WriteString(strconv.FormatInt(r.Time.UnixMilli(), 10))
}

// rowToCSV converts a row into a CSV record and appends it to the string
// builder.
func rowToCSV(sb *strings.Builder, r *grid.Row, _, _ string) {
	sb.WriteString(strings.Join([]string{
		strconv.FormatInt(r.Time.UnixMilli(), 10),
		num(r.Latitude),
		num(r.Longitude),
		num(r.ApproxLatitude),
		num(r.ApproxLongitude),
		num(r.Value),
	}, ","))
}
