package reporting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mabletask/insights/sessions"
	"mabletask/insights/timerange"
)

type capture struct {
	path string
	body analyticsdata.RunReportRequest
}

func newTestClient(t *testing.T, status int, response string) (*Client, *capture) {
	t.Helper()
	got := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	svc, err := analyticsdata.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewClient(svc, "123", sessions.DefaultNormalizer(), 0), got
}

func bounds(t *testing.T) timerange.Bounds {
	b, err := timerange.GetRangeBounds(timerange.Range7d, time.Date(2025, 5, 8, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return b
}

func TestTopPagesNormalizesAndMerges(t *testing.T) {
	c, got := newTestClient(t, http.StatusOK, `{"rows":[
		{"dimensionValues":[{"value":"/posts/abc?ref=x"},{"value":"A post"}],"metricValues":[{"value":"10"},{"value":"4"}]},
		{"dimensionValues":[{"value":"https://app.example.com/posts/def/"},{"value":"(not set)"}],"metricValues":[{"value":"5"},{"value":"2"}]},
		{"dimensionValues":[{"value":"/explore"},{"value":""}],"metricValues":[{"value":"not-a-number"},{"value":"1"}]},
		{"dimensionValues":[{"value":"/pricing"},{"value":"Pricing"}],"metricValues":[{"value":"12"}]}
	]}`)

	rows, err := c.TopPages(context.Background(), bounds(t), 10)
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/properties/123:runReport", got.path)
	require.Len(t, got.body.DateRanges, 1)
	assert.Equal(t, "2025-05-01", got.body.DateRanges[0].StartDate)
	assert.Equal(t, "2025-05-08", got.body.DateRanges[0].EndDate)
	assert.Equal(t, int64(40), got.body.Limit)
	require.Len(t, got.body.OrderBys, 1)
	assert.Equal(t, "screenPageViews", got.body.OrderBys[0].Metric.MetricName)

	require.Len(t, rows, 3)
	assert.Equal(t, "/posts/[id]", rows[0].Path)
	assert.Equal(t, uint64(15), rows[0].Views)
	assert.Equal(t, uint64(6), rows[0].ActiveUsers)
	require.NotNil(t, rows[0].Title)
	assert.Equal(t, "A post", *rows[0].Title)

	assert.Equal(t, "/pricing", rows[1].Path)
	assert.Equal(t, uint64(12), rows[1].Views)
	assert.Equal(t, uint64(0), rows[1].ActiveUsers, "missing metric reads as 0")

	assert.Equal(t, "/explore", rows[2].Path)
	assert.Equal(t, uint64(0), rows[2].Views, "non-numeric metric reads as 0")
	assert.Nil(t, rows[2].Title)
}

func TestTopPagesCapsToLimit(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"rows":[
		{"dimensionValues":[{"value":"/a"},{"value":"A"}],"metricValues":[{"value":"3"},{"value":"1"}]},
		{"dimensionValues":[{"value":"/b"},{"value":"B"}],"metricValues":[{"value":"2"},{"value":"1"}]}
	]}`)
	rows, err := c.TopPages(context.Background(), bounds(t), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/a", rows[0].Path)
}

func TestTopLandingPages(t *testing.T) {
	c, got := newTestClient(t, http.StatusOK, `{"rows":[
		{"dimensionValues":[{"value":"/"}],"metricValues":[{"value":"6"},{"value":"6"}]},
		{"dimensionValues":[{"value":"/u/alice"}],"metricValues":[{"value":"3"},{"value":"3"}]},
		{"dimensionValues":[{"value":"/u/bob"}],"metricValues":[{"value":"4"},{"value":"2"}]}
	]}`)

	rows, err := c.TopLandingPages(context.Background(), bounds(t), 10)
	require.NoError(t, err)
	require.Len(t, got.body.Dimensions, 1)
	assert.Equal(t, "landingPage", got.body.Dimensions[0].Name)

	require.Len(t, rows, 2)
	assert.Equal(t, "/u/[handle]", rows[0].LandingPage)
	assert.Equal(t, uint64(7), rows[0].Sessions)
	assert.Equal(t, uint64(5), rows[0].ActiveUsers)
	assert.Equal(t, "/", rows[1].LandingPage)
}

func TestRunReportSurfacesAPIError(t *testing.T) {
	c, _ := newTestClient(t, http.StatusForbidden,
		`{"error":{"code":403,"message":"User does not have sufficient permissions for this property.","status":"PERMISSION_DENIED"}}`)

	_, err := c.TopPages(context.Background(), bounds(t), 10)
	require.Error(t, err)

	var gerr *googleapi.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusForbidden, gerr.Code)
}

func TestRunReportRequiresProperty(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{}`)
	c.propertyID = ""
	_, err := c.RunReport(context.Background(), "probe", Request{})
	assert.Error(t, err)
}

func TestPropertyName(t *testing.T) {
	assert.Equal(t, "properties/9", propertyName("9"))
	assert.Equal(t, "properties/9", propertyName("properties/9"))
}

func TestRowAccessorsTolerateShortRows(t *testing.T) {
	r := Row{Dimensions: []string{"/a"}}
	assert.Equal(t, "", r.Dimension(3))
	assert.Equal(t, uint64(0), r.Metric(0))
}
