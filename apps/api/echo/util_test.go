package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/plp/edmodule/apps/api/echo"
	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/progress"
	"github.com/plp/edmodule/core/user"
	"github.com/plp/edmodule/testutil"
)

type (
	httpErr struct {
		Error string `json:"error"`
	}

	httpTest struct {
		name     string
		method   string
		path     string
		body     []byte
		token    string
		wantCode int
		wantData []byte
	}

	// fakeEDX serves canned progress.
	fakeEDX struct {
		mu    sync.Mutex
		data  map[string]map[string]interface{}
		err   error
		calls [][]string
	}

	testApp struct {
		Server
		conf   *core.Config
		svcs   *testutil.Services
		edx    *fakeEDX
		logger *testutil.Logger
	}
)

var (
	errMissingToken     = httpErr{Error: "missing or malformed jwt"}
	errNotAuthenticated = httpErr{Error: "user not authenticated"}
	errForbidden        = httpErr{Error: "permission denied"}
	errNotFound         = httpErr{Error: "not found"}
)

func (f *fakeEDX) GetCoursesProgress(_ context.Context, _ string, courseIDs []string) (map[string]map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, courseIDs)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := &core.Config{
		AppName:   "Edmodule",
		TestMode:  true,
		SecretKey: "t3st-s3cr3t",
		TimeZone:  "UTC",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
	}
	svcs := testutil.NewServices()
	edx := &fakeEDX{data: map[string]map[string]interface{}{}}
	logger := new(testutil.Logger)

	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		UserSvc:        svcs.Users,
		CourseSvc:      svcs.Courses,
		ModuleSvc:      svcs.Modules,
		PricingSvc:     svcs.Pricing,
		PromoSvc:       svcs.Promos,
		EnrollmentSvc:  svcs.Enrollments,
		RatingSvc:      svcs.Ratings,
		Syncer:         progress.NewSyncer(edx, svcs.Enrollments, svcs.Modules, svcs.Users, logger, 2),
	})
	return &testApp{Server: srv, conf: conf, svcs: svcs, edx: edx, logger: logger}
}

func (app *testApp) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
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

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(app.conf, GetUserClaims(usr, app.conf))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
