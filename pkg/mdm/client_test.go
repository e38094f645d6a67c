package mdm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/mdm-poller/pkg/mdm"
)

const testAPIKey = "test-key"

func newTestClient(t *testing.T, handler http.HandlerFunc) *mdm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return mdm.NewClient(server.URL+"/", testAPIKey, 2*time.Second, zerolog.Nop())
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestClient_GetDeviceLocation_ParsesNumericStrings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/devices/2154382", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, testAPIKey, user)
		assert.Empty(t, pass)

		writeJSON(w, `{"data":{"id":2154382,"attributes":{
			"name":"Field iPad",
			"location_latitude":"37.7749",
			"location_longitude":"-122.4194",
			"location_accuracy":"10.4",
			"location_updated_at":"2024-05-01T12:30:00.000-07:00"}}}`)
	})

	location, err := client.GetDeviceLocation(context.Background(), "2154382")
	require.NoError(t, err)

	assert.Equal(t, "2154382", location.DeviceID)
	assert.Equal(t, "Field iPad", location.DeviceName)
	assert.Equal(t, "37.7749", location.Latitude.String())
	assert.Equal(t, "-122.4194", location.Longitude.String())
	require.NotNil(t, location.Accuracy)
	assert.Equal(t, 10, *location.Accuracy)
	require.NotNil(t, location.LocationUpdatedAt)
	assert.True(t, location.LocationUpdatedAt.Equal(time.Date(2024, 5, 1, 19, 30, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, location.LocationUpdatedAt.Location())
}

func TestClient_GetDeviceLocation_ParsesNumbers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":{"attributes":{
			"name":"Kiosk",
			"location_latitude":-33.86881234,
			"location_longitude":151.20929876,
			"location_accuracy":65}}}`)
	})

	location, err := client.GetDeviceLocation(context.Background(), "D1")
	require.NoError(t, err)

	assert.Equal(t, "-33.86881234", location.Latitude.String())
	assert.Equal(t, "151.20929876", location.Longitude.String())
	require.NotNil(t, location.Accuracy)
	assert.Equal(t, 65, *location.Accuracy)
	assert.Nil(t, location.LocationUpdatedAt)
}

func TestClient_GetDeviceLocation_ZeroIsAValidCoordinate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":{"attributes":{"name":"Buoy","location_latitude":0,"location_longitude":0.0}}}`)
	})

	location, err := client.GetDeviceLocation(context.Background(), "D1")
	require.NoError(t, err)

	assert.True(t, location.Latitude.IsZero())
	assert.True(t, location.Longitude.IsZero())
	assert.Nil(t, location.Accuracy)
}

func TestClient_GetDeviceLocation_DefaultsNameToDeviceID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":{"attributes":{"location_latitude":1.5,"location_longitude":2.5}}}`)
	})

	location, err := client.GetDeviceLocation(context.Background(), "D7")
	require.NoError(t, err)
	assert.Equal(t, "D7", location.DeviceName)
}

func TestClient_GetDeviceLocation_IgnoresNonPositiveAccuracy(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":{"attributes":{"location_latitude":1,"location_longitude":2,"location_accuracy":-1}}}`)
	})

	location, err := client.GetDeviceLocation(context.Background(), "D1")
	require.NoError(t, err)
	assert.Nil(t, location.Accuracy)
}

func TestClient_GetDeviceLocation_IgnoresUnparseableTimestamp(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":{"attributes":{"location_latitude":1,"location_longitude":2,"location_updated_at":"yesterday"}}}`)
	})

	location, err := client.GetDeviceLocation(context.Background(), "D1")
	require.NoError(t, err)
	assert.Nil(t, location.LocationUpdatedAt)
}

func TestClient_GetDeviceLocation_NoFix(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"both null", `{"data":{"attributes":{"name":"iPad","location_latitude":null,"location_longitude":null}}}`},
		{"latitude missing", `{"data":{"attributes":{"name":"iPad","location_longitude":"-122.4194"}}}`},
		{"longitude null", `{"data":{"attributes":{"name":"iPad","location_latitude":"37.7749","location_longitude":null}}}`},
		{"empty strings", `{"data":{"attributes":{"location_latitude":"","location_longitude":""}}}`},
		{"no attributes", `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.body)
			})

			location, err := client.GetDeviceLocation(context.Background(), "D2")
			assert.Nil(t, location)
			assert.ErrorIs(t, err, mdm.ErrNoFix)
		})
	}
}

func TestClient_GetDeviceLocation_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"title":"object not found"}]}`, http.StatusNotFound)
	})

	location, err := client.GetDeviceLocation(context.Background(), "D404")
	assert.Nil(t, location)

	var statusErr *mdm.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, http.MethodGet, statusErr.Method)
	assert.Contains(t, statusErr.URL, "/devices/D404")
	assert.False(t, errors.Is(err, mdm.ErrNoFix))
}

func TestClient_GetDeviceLocation_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":`)
	})

	location, err := client.GetDeviceLocation(context.Background(), "D1")
	assert.Nil(t, location)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, mdm.ErrNoFix)
}

func TestClient_GetDeviceLocation_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := mdm.NewClient(server.URL, testAPIKey, 50*time.Millisecond, zerolog.Nop())

	start := time.Now()
	_, err := client.GetDeviceLocation(context.Background(), "D1")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_GetDeviceLocation_EscapesDeviceID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/a%2Fb", r.URL.EscapedPath())
		writeJSON(w, `{"data":{"attributes":{"location_latitude":1,"location_longitude":2}}}`)
	})

	_, err := client.GetDeviceLocation(context.Background(), "a/b")
	assert.NoError(t, err)
}

func TestClient_RequestLocationUpdate_Accepted(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/devices/2162127/lost_mode/update_location", r.URL.Path)

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, testAPIKey, user)

		w.WriteHeader(http.StatusAccepted)
	})

	err := client.RequestLocationUpdate(context.Background(), "2162127")
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RequestLocationUpdate_NotAccepted(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(status)
			})

			err := client.RequestLocationUpdate(context.Background(), "D2")

			var statusErr *mdm.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, status, statusErr.StatusCode)
			assert.Equal(t, http.MethodPost, statusErr.Method)
			// no retry within a cycle
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_RequestLocationUpdate_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := mdm.NewClient(url, testAPIKey, time.Second, zerolog.Nop())
	err := client.RequestLocationUpdate(context.Background(), "D2")

	require.Error(t, err)
	var statusErr *mdm.StatusError
	assert.False(t, errors.As(err, &statusErr))
}
