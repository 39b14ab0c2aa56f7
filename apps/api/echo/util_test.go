package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/geofence"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/core/session"
	"github.com/trezcool/hazira/services/metrics"
	"github.com/trezcool/hazira/storage/database/inmem"
)

var (
	campus = geofence.MustNew(
		geofence.Point{Lat: 18.7765, Lng: 73.6944},
		geofence.Point{Lat: 18.7579, Lng: 73.6673},
		geofence.Point{Lat: 18.7438, Lng: 73.6876},
		geofence.Point{Lat: 18.7629, Lng: 73.7194},
	)

	mwalimu = identity.Requester{ID: "teacher-1", Name: "Mwalimu", Roles: []string{identity.RoleTeacher}}
	rafiki  = identity.Requester{ID: "teacher-2", Name: "Rafiki", Roles: []string{identity.RoleTeacher}}
	alice   = identity.Requester{ID: "student-1", Name: "Alice", Roles: []string{identity.RoleStudent}}
)

type testServer struct {
	*Server
	db       *inmemdb.DB
	registry *prometheus.Registry
}

func setup(t *testing.T) testServer {
	conf := &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Hazira",
		SecretKey: "secret",
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
		},
		Attendance: core.AttendanceConfig{
			SessionDuration: time.Hour,
			TokenTTL:        10 * time.Minute,
		},
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	session.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	db := inmemdb.Open()
	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	require.NoError(t, err)

	sessionSvc := session.NewService(inmemdb.NewSessionRepository(db), conf, nil, nil)
	attendanceSvc, err := attendance.NewService(attendance.Deps{
		Repo:       inmemdb.NewAttendanceRepository(db),
		Sessions:   sessionSvc,
		Policy:     attendance.DefaultPolicy(),
		Metrics:    collector,
		Validate:   validate,
		Translator: translator,
	})
	require.NoError(t, err)

	srv := NewServer(ServerDeps{
		Conf:          conf,
		SessionSvc:    sessionSvc,
		AttendanceSvc: attendanceSvc,
		Metrics:       collector,
		Validate:      validate,
		Translator:    translator,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return testServer{Server: srv, db: db, registry: registry}
}

func (ts testServer) openSession(t *testing.T, subject string) session.Session {
	body := marchallObj(t, echoMap{
		"classroom_name": "Lab 1",
		"subject_name":   subject,
		"geofence":       campus,
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", getToken(t, mwalimu, ts.Conf), body)
	ts.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sess session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess
}

type echoMap map[string]interface{}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, requester identity.Requester, conf *core.Config) string {
	token, err := GenerateToken(NewClaims(requester, conf), conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func errorBody(t *testing.T, kind, message string) []byte {
	return marchallObj(t, core.ErrorResponse{Kind: kind, Message: message})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorResponse {
	var resp core.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func samples(lat, lng float64, n int) []attendance.GeoSample {
	start := time.Now().UTC()
	res := make([]attendance.GeoSample, n)
	for i := range res {
		res[i] = attendance.GeoSample{
			Latitude:       lat,
			Longitude:      lng,
			AccuracyMeters: 12,
			CapturedAt:     start.Add(time.Duration(i) * 5 * time.Second),
		}
	}
	return res
}
