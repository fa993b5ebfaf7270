package page

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/cswui/transport"
)

func TestHandlerServesRenderedPage(t *testing.T) {
	tr := transport.NewMemory()
	tr.Open()
	p := loadDocument(t, tr)
	_, err := tr.Publish("epics://foo?units=mA", map[string]any{"char_value": "ON"})
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(p, zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `<span class="csw-value">ON</span>`)

	missing, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHandlerReportsFieldState(t *testing.T) {
	tr := transport.NewMemory()
	p := loadDocument(t, tr)

	srv := httptest.NewServer(Handler(p, zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/fields")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload struct {
		Fields []struct {
			Topic string `json:"topic"`
			State string `json:"state"`
		} `json:"fields"`
		Rejected []struct {
			Kind  string `json:"kind"`
			Error string `json:"error"`
		} `json:"rejected"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Fields, 2)
	require.Equal(t, "transport_down", payload.Fields[0].State)
	require.Len(t, payload.Rejected, 1)
	require.Equal(t, "value", payload.Rejected[0].Kind)
	require.Equal(t, `The "rate" option must have a numeric value.`, payload.Rejected[0].Error)

	post, err := http.Post(srv.URL+"/api/fields", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestServeListensAndShutsDown(t *testing.T) {
	tr := transport.NewMemory()
	p := loadDocument(t, tr)

	srv, err := Serve("127.0.0.1:0", p, zerolog.Nop())
	require.NoError(t, err)
	require.NotEmpty(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/api/fields")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	srv.Close()
	_, err = http.Get("http://" + srv.Addr() + "/api/fields")
	require.Error(t, err)
}
