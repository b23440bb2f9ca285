package inference

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"oncopredict/internal/artifact"
)

func newTestServer(t *testing.T, setup func(store *artifact.Store)) *httptest.Server {
	t.Helper()
	svc := newTestService(t, serviceOpts{}, setup)
	ts := httptest.NewServer(NewServer(svc, 0).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func readyStore(t *testing.T) func(store *artifact.Store) {
	return func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
	}
}

func TestHandlePredict(t *testing.T) {
	ts := newTestServer(t, readyStore(t))

	resp := postJSON(t, ts.URL+"/predict", PredictRequest{
		Features: canonicalMalignantMap(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var res Result
	decodeBody(t, resp, &res)
	if res.Prediction != 1 || res.PredictionLabel != LabelMalignant {
		t.Errorf("expected malignant, got %+v", res)
	}
}

func TestHandlePredictOrderedValues(t *testing.T) {
	ts := newTestServer(t, readyStore(t))

	resp := postJSON(t, ts.URL+"/predict", PredictRequest{
		Values: canonicalMalignant,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var res Result
	decodeBody(t, resp, &res)
	if res.Prediction != 1 {
		t.Errorf("expected malignant, got %+v", res)
	}
}

func TestHandlePredictErrors(t *testing.T) {
	ts := newTestServer(t, readyStore(t))

	tests := []struct {
		name       string
		req        PredictRequest
		wantStatus int
	}{
		{
			name:       "empty request",
			req:        PredictRequest{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong vector length",
			req:        PredictRequest{Values: []float64{1, 2, 3}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown model",
			req:        PredictRequest{Model: "ghost", Features: canonicalMalignantMap()},
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/predict", tt.req)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			var body errorResponse
			decodeBody(t, resp, &body)
			if body.Error == "" {
				t.Error("expected an error message in the body")
			}
		})
	}
}

func TestHandlePredictMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, readyStore(t))

	resp, err := http.Get(ts.URL + "/predict")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHandlePredictServiceUnavailable(t *testing.T) {
	// No scaler artifact: the service is up but degraded.
	ts := newTestServer(t, func(store *artifact.Store) {
		areaWorstLogistic(t, store, "logistic_regression")
	})

	resp := postJSON(t, ts.URL+"/predict", PredictRequest{Features: canonicalMalignantMap()})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHandleBatch(t *testing.T) {
	ts := newTestServer(t, readyStore(t))

	resp := postJSON(t, ts.URL+"/predict/batch", BatchRequest{
		Inputs: []map[string]float64{canonicalMalignantMap(), {"area_worst": 100}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var items []BatchItem
	decodeBody(t, resp, &items)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Result.Prediction != 1 || items[1].Result.Prediction != 0 {
		t.Errorf("unexpected batch outcome: %+v", items)
	}
}

func TestHandleConsensus(t *testing.T) {
	ts := newTestServer(t, func(store *artifact.Store) {
		identityScaler(t, store)
		areaWorstLogistic(t, store, "logistic_regression")
		splitKNN(t, store, "knn")
	})

	resp := postJSON(t, ts.URL+"/predict/all", PredictRequest{Features: canonicalMalignantMap()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var cons Consensus
	decodeBody(t, resp, &cons)
	if cons.Prediction == nil || *cons.Prediction != 1 {
		t.Errorf("expected malignant consensus, got %+v", cons)
	}
	if len(cons.Results) != 2 {
		t.Errorf("expected 2 per-model results, got %d", len(cons.Results))
	}
}

func TestHandleModels(t *testing.T) {
	ts := newTestServer(t, readyStore(t))

	resp, err := http.Get(ts.URL + "/models")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string][]string
	decodeBody(t, resp, &body)
	if len(body["models"]) != 1 || body["models"][0] != "logistic_regression" {
		t.Errorf("expected [logistic_regression], got %v", body["models"])
	}
}

func TestHandleHealth(t *testing.T) {
	ready := newTestServer(t, readyStore(t))
	resp, err := http.Get(ready.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 when ready, got %d", resp.StatusCode)
	}

	degraded := newTestServer(t, nil)
	resp2, err := http.Get(degraded.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when degraded, got %d", resp2.StatusCode)
	}

	var h Health
	decodeBody(t, resp2, &h)
	if h.ScalerReady || h.ModelsReady {
		t.Errorf("expected degraded health body, got %+v", h)
	}
}
