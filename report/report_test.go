// SPDX-License-Identifier: GPL-3.0-or-later

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidence(t *testing.T) {
	labels := map[Evidence]string{
		Ok:           "ok",
		Blocked:      "blocked",
		ConnectError: "connect_error",
		Error:        "unknown_error",
	}
	for ev, label := range labels {
		assert.Equal(t, label, ev.String())
	}

	t.Run("invalid values", func(t *testing.T) {
		_, err := Evidence(42).MarshalText()
		require.Error(t, err)
		var ev Evidence
		require.Error(t, ev.UnmarshalText([]byte("ok")))
	})

	t.Run("json uses the wire names", func(t *testing.T) {
		data, err := json.Marshal(map[string]Evidence{"example.com": ConnectError})
		require.NoError(t, err)
		assert.JSONEq(t, `{"example.com":"ConnectError"}`, string(data))
	})
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, map[string]Evidence{
		"youtube.com": Blocked,
		"example.com": Ok,
		"a,b.test":    Error,
		"vk.com":      ConnectError,
	})
	require.NoError(t, err)
	assert.Equal(t, "target,evidence\n"+
		"\"a,b.test\",unknown_error\n"+
		"example.com,ok\n"+
		"vk.com,connect_error\n"+
		"youtube.com,blocked\n", buf.String())

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, nil))
		assert.Equal(t, "target,evidence\n", buf.String())
	})
}

func testReport() *AgencyReport {
	return &AgencyReport{
		Version: "v0.1.0",
		Config: ReporterConfig{
			HTTP:        false,
			TxJunk:      true,
			IP:          "5.78.7.195",
			Path:        "100MB.bin",
			RetryCount:  2,
			TimeoutSecs: 5,
			ProbeCount:  1000,
		},
		Data: map[string]Evidence{"example.com": Ok, "youtube.com": Blocked},
	}
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(testReport())
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, cbor.Unmarshal(data, &generic))
	assert.Equal(t, "v0.1.0", generic["version"])
	assert.Equal(t, map[any]any{"example.com": "Ok", "youtube.com": "Blocked"}, generic["data"])
	config := generic["config"].(map[any]any)
	assert.Equal(t, "5.78.7.195", config["ip"])
	assert.Equal(t, uint64(1000), config["probe_count"])
	assert.Equal(t, true, config["tx_junk"])

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, testReport(), decoded)
}

func TestUpload(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		var got *AgencyReport
		var auth, ctype string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			ctype = r.Header.Get("Content-Type")
			body, _ := io.ReadAll(r.Body)
			got, _ = Unmarshal(body)
			w.Write([]byte(`{"ok":true,"id":17}`))
		}))
		defer srv.Close()

		msg, err := Upload(context.Background(), srv.Client(), srv.URL, "s3cret", testReport())
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true,"id":17}`, msg)
		assert.Equal(t, "Bearer s3cret", auth)
		assert.Equal(t, ContentType, ctype)
		assert.Equal(t, testReport(), got)
	})

	t.Run("without key", func(t *testing.T) {
		var hasAuth bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasAuth = r.Header["Authorization"]
		}))
		defer srv.Close()

		_, err := Upload(context.Background(), nil, srv.URL, "", testReport())
		require.NoError(t, err)
		assert.False(t, hasAuth)
	})

	t.Run("rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown agency", http.StatusUnauthorized)
		}))
		defer srv.Close()

		msg, err := Upload(context.Background(), srv.Client(), srv.URL, "bad", testReport())
		var uerr *UploadError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, "401 Unauthorized", uerr.Status)
		assert.Equal(t, "unknown agency\n", msg)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := Upload(context.Background(), nil, "http://127.0.0.1:1/report", "", testReport())
		require.Error(t, err)
	})
}
