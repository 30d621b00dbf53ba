package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, Credentials{HubID: "hub1", HubKey: "secretkey"})
	return srv, client
}

func TestGetFirmwareManifestParsesResponse(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/firmware" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("revision") != "1.2.3" {
			t.Fatalf("missing revision query param")
		}
		if _, _, ok := r.BasicAuth(); ok {
			t.Fatal("expected no standard-base64 Basic auth header; this client uses the b64j variant")
		}
		json.NewEncoder(w).Encode(FirmwareManifest{Revision: "1.2.4", FwURL: "https://example/fw.bin", FwMD5: "abc"})
	})

	manifest, status, err := client.GetFirmwareManifest(context.Background(), "1.2.3", "rev-a")
	if err != nil {
		t.Fatalf("GetFirmwareManifest: %v", err)
	}
	if status != StatusOK || manifest.Revision != "1.2.4" {
		t.Fatalf("unexpected result: %+v status=%v", manifest, status)
	}
}

func TestGetFirmwareManifestNonOKStatus(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, status, err := client.GetFirmwareManifest(context.Background(), "1.2.3", "rev-a")
	if err == nil || status != StatusNoResponse {
		t.Fatalf("expected StatusNoResponse, got status=%v err=%v", status, err)
	}
}

func TestGetHubActionsUnauthorizedMapsToErrUnauthorized(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, _, err := client.GetHubActions(context.Background())
	if err != errUnauthorized {
		t.Fatalf("expected errUnauthorized, got %v", err)
	}
}

func TestPostRegistrationSendsJSONBody(t *testing.T) {
	var gotBody Registration
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	reg := Registration{HubID: "hub1"}
	status, err := client.PostRegistration(context.Background(), reg)
	if err != nil || status != StatusOK {
		t.Fatalf("PostRegistration failed: status=%v err=%v", status, err)
	}
	if gotBody.HubID != "hub1" {
		t.Fatalf("server saw hub id %q, want hub1", gotBody.HubID)
	}
}

func TestDeleteRegistrationHitsHubIDPath(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v2/hubRegistration/hub1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if status, err := client.DeleteRegistration(context.Background(), "hub1"); err != nil || status != StatusOK {
		t.Fatalf("DeleteRegistration failed: status=%v err=%v", status, err)
	}
}

func TestPostLowBatteryNotificationEncodesCount(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("count") != "3" {
			t.Fatalf("count query = %q, want 3", r.URL.Query().Get("count"))
		}
		w.WriteHeader(http.StatusOK)
	})

	if status, err := client.PostLowBatteryNotification(context.Background(), 3); err != nil || status != StatusOK {
		t.Fatalf("PostLowBatteryNotification failed: status=%v err=%v", status, err)
	}
}

func TestBasicAuthHeaderUsesB64jNotStdlib(t *testing.T) {
	client := NewClient("https://example.invalid", Credentials{HubID: "hub1", HubKey: "k???"})
	header := client.basicAuthHeader()
	if header[:6] != "Basic " {
		t.Fatalf("header = %q, want Basic prefix", header)
	}
	// The b64j alphabet never emits '/'; stdlib base64 would for this input.
	encoded := header[6:]
	for _, c := range encoded {
		if c == '/' {
			t.Fatal("auth header contains '/' — expected the b64j JSON-safe alphabet")
		}
	}
}
