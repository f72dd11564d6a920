package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/tamzrod/inverter-poller/internal/holding"
	"github.com/tamzrod/inverter-poller/internal/reading"
	"github.com/tamzrod/inverter-poller/internal/status"
)

type fakeDevice struct {
	id      string
	reading *reading.Reading
	setErr  error
	set     map[string]float64
}

func (f *fakeDevice) DeviceID() string { return f.id }

func (f *fakeDevice) Latest() (reading.Reading, bool) {
	if f.reading == nil {
		return reading.Reading{}, false
	}
	return *f.reading, true
}

func (f *fakeDevice) Status() status.Snapshot {
	return status.Snapshot{State: status.StateOnline}
}

func (f *fakeDevice) Settings() []holding.Setting {
	return []holding.Setting{{Name: "active_power_rate", Address: 3, Value: 80, Present: true, Unit: "%", Writable: true}}
}

func (f *fakeDevice) Set(ctx context.Context, name string, value float64) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.set[name] = value
	return nil
}

func newRouterForTesting(devs ...Device) *Router {
	return SetupRouter(chi.NewRouter(), devs, http.NotFoundHandler(), zerolog.Nop())
}

func testRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, err := http.NewRequest(method, ts.URL+path, body)
	is.NoErr(err)
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	return resp, string(respBody)
}

func roof() *fakeDevice {
	r := reading.NewBuilder(2).
		Set("pv1_power", reading.Number(1500, "W")).
		Set("status_text", reading.Text("Normal")).
		Build().
		WithTime(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), true)
	return &fakeDevice{id: "roof", reading: &r, set: map[string]float64{}}
}

func TestThatHealthEndpointReturns204(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(newRouterForTesting().Handler())
	defer ts.Close()

	resp, _ := testRequest(is, ts, "GET", "/health", nil)

	is.Equal(resp.StatusCode, http.StatusNoContent) // health endpoint status code not ok
}

func TestGetReading(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(newRouterForTesting(roof()).Handler())
	defer ts.Close()

	resp, body := testRequest(is, ts, "GET", "/devices/roof/reading", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	var got struct {
		ID      string `json:"id"`
		Status  struct{ State string }
		Reading struct {
			Online bool           `json:"online"`
			Values map[string]any `json:"values"`
		} `json:"reading"`
	}
	is.NoErr(json.Unmarshal([]byte(body), &got))
	is.Equal(got.ID, "roof")
	is.Equal(got.Status.State, "online")
	is.True(got.Reading.Online)
	is.Equal(got.Reading.Values["pv1_power"], 1500.0)
	is.Equal(got.Reading.Values["status_text"], "Normal")
}

func TestGetReadingBeforeFirstPoll(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(newRouterForTesting(&fakeDevice{id: "roof"}).Handler())
	defer ts.Close()

	resp, _ := testRequest(is, ts, "GET", "/devices/roof/reading", nil)
	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
}

func TestGetValue(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(newRouterForTesting(roof()).Handler())
	defer ts.Close()

	resp, body := testRequest(is, ts, "GET", "/devices/roof/reading/pv1_power", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, `"value":1500`))
	is.True(strings.Contains(body, `"unit":"W"`))

	resp, _ = testRequest(is, ts, "GET", "/devices/roof/reading/pv9_power", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound) // absent is not zero

	resp, _ = testRequest(is, ts, "GET", "/devices/garage/reading/pv1_power", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestGetSettings(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(newRouterForTesting(roof()).Handler())
	defer ts.Close()

	resp, body := testRequest(is, ts, "GET", "/devices/roof/settings", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, `"name":"active_power_rate"`))
}

func TestPutSetting(t *testing.T) {
	is := is.New(t)
	dev := roof()

	ts := httptest.NewServer(newRouterForTesting(dev).Handler())
	defer ts.Close()

	resp, _ := testRequest(is, ts, "PUT", "/devices/roof/settings/active_power_rate", strings.NewReader(`{"value": 50}`))
	is.Equal(resp.StatusCode, http.StatusNoContent)
	is.Equal(dev.set["active_power_rate"], 50.0)

	resp, _ = testRequest(is, ts, "PUT", "/devices/roof/settings/active_power_rate", strings.NewReader(`{}`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestPutSettingErrors(t *testing.T) {
	is := is.New(t)

	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: x", holding.ErrUnknownRegister), http.StatusBadRequest},
		{fmt.Errorf("%w: x", holding.ErrReadOnly), http.StatusBadRequest},
		{fmt.Errorf("%w: x", holding.ErrOutOfRange), http.StatusBadRequest},
		{fmt.Errorf("%w: timeout", holding.ErrWriteFailed), http.StatusBadGateway},
	}

	for _, tc := range cases {
		dev := roof()
		dev.setErr = tc.err
		ts := httptest.NewServer(newRouterForTesting(dev).Handler())

		resp, _ := testRequest(is, ts, "PUT", "/devices/roof/settings/x", strings.NewReader(`{"value": 1}`))
		is.Equal(resp.StatusCode, tc.code)

		ts.Close()
	}
}

func TestListDevices(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(newRouterForTesting(roof(), &fakeDevice{id: "garage"}).Handler())
	defer ts.Close()

	resp, body := testRequest(is, ts, "GET", "/devices/", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Index(body, "garage") < strings.Index(body, "roof"))
}
