package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	echoapi "github.com/fantakombat/backend/apps/api/echo"
	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
	dummydb "github.com/fantakombat/backend/storage/database/dummy"
	testutil "github.com/fantakombat/backend/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server  *echoapi.Server
	tokens  *echoapi.TokenIssuer
	db      *dummydb.DB
	usrRepo user.Repository
	courses *course.Service
	scoring *scoring.Service
	logger  *testutil.Logger
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.Config()
	validate, translator := testutil.NewValidator()
	db := dummydb.Open()
	app := &testApp{
		db:      db,
		usrRepo: dummydb.NewUserRepository(db),
		logger:  testutil.NewLogger(),
		tokens:  echoapi.NewTokenIssuer(conf),
	}
	crsRepo := dummydb.NewCourseRepository(db)
	usrSvc := user.NewService(app.usrRepo)
	app.courses = course.NewService(crsRepo, app.usrRepo, db, validate, conf, app.logger)
	app.scoring = scoring.NewService(dummydb.NewScoringRepository(db), crsRepo, app.usrRepo, db, nil, validate, app.logger)
	usrSvc.OnChange(app.scoring.UsersChanging)

	app.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         app.logger,
		UserSvc:        usrSvc,
		CourseSvc:      app.courses,
		ScoringSvc:     app.scoring,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		Pingers:        map[string]core.Pinger{"database": db},
	})
	return app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.tokens.Token(app.tokens.Claims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

// do serves the request. body may be nil, a []byte or any value to marshal as JSON.
func (app *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		buf.Write(marshalObj(t, b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(t, method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

// decode checks the response code and unmarshals its body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, v interface{}) {
	t.Helper()
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
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
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
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

func TestServer_home(t *testing.T) {
	app := setup(t)
	rec := app.do(t, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "Welcome to Fantakombat API!" {
		t.Errorf("home() = %d %q", rec.Code, rec.Body.String())
	}

	app.run(t, []httpTest{
		{name: "health", path: "/health", wantCode: http.StatusOK, wantData: []byte(`{"database":"ok"}`)},
		{name: "unknown route", path: "/v2/nothing", wantCode: http.StatusNotFound, wantData: []byte(`{"error":"Not Found"}`)},
	})
}
