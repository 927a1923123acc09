package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/fantakombat/backend/apps/api/echo"
	"github.com/fantakombat/backend/core/user"
	testutil "github.com/fantakombat/backend/tests"
)

func TestUserAPI_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Anna", "anna", "anna@test.it", "kiai-kime", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.usrRepo, "Zeno", "zeno", "zeno@test.it", "kiai-kime", []string{user.RoleStudent}, false)

	app.run(t, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username":"this field is required","password":"this field is required"}`),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username":"bruno","password":"kiai-kime"}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username":"anna","password":"kiai"}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username":"zeno@test.it","password":"kiai-kime"}`),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	var res echoapi.LoginResponse
	decode(t, app.do(t, http.MethodPost, "/v1/users/login", "", []byte(`{"username":" ANNA ","password":"kiai-kime"}`)), http.StatusOK, &res)
	require.NotEmpty(t, res.Token)

	var me user.User
	decode(t, app.do(t, http.MethodGet, "/v1/users/me", res.Token, nil), http.StatusOK, &me)
	assert.Equal(t, "anna", me.Username)
	assert.NotNil(t, me.LastLogin)

	var refreshed echoapi.LoginResponse
	decode(t, app.do(t, http.MethodPost, "/v1/users/token-refresh", res.Token, nil), http.StatusOK, &refreshed)
	assert.NotEmpty(t, refreshed.Token)
}

func TestUserAPI_authRequired(t *testing.T) {
	app := setup(t)
	anna := testutil.CreateStudent(t, app.usrRepo, "Anna")
	zeno := testutil.CreateUser(t, app.usrRepo, "Zeno", "zeno", "zeno@test.it", "", []string{user.RoleStudent}, false)
	ghost := user.User{ID: "ghost", Roles: []string{user.RoleAdmin}}

	app.run(t, []httpTest{
		{name: "no token", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "bad token", path: "/v1/users/me", token: "not.a.token", wantCode: http.StatusUnauthorized},
		{name: "deleted user", path: "/v1/users/me", token: app.token(t, ghost), wantCode: http.StatusUnauthorized},
		{
			name: "deactivated user", path: "/v1/users/me", token: app.token(t, zeno),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "ok", path: "/v1/users/me", token: app.token(t, anna), wantCode: http.StatusOK, wantData: marshalObj(t, anna)},
	})
}

func TestUserAPI_query(t *testing.T) {
	app := setup(t)
	anna := testutil.CreateStudent(t, app.usrRepo, "Anna")
	bruno := testutil.CreateStudent(t, app.usrRepo, "Bruno")
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	teacherToken := app.token(t, sensei)

	path := func(search, ordering string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Set("search", search)
		}
		if ordering != "" {
			v.Set("ordering", ordering)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	app.run(t, []httpTest{
		{
			name: "staff required", path: "/v1/users", token: app.token(t, anna),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/v1/users", token: teacherToken, wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{anna, bruno, sensei})},
		{
			name: "students", path: path("", "", user.RoleStudent), token: teacherToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{anna, bruno}),
		},
		{
			name: "students by -name", path: path("", "-name", user.RoleStudent), token: teacherToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{bruno, anna}),
		},
		{name: "search", path: path("run", ""), token: teacherToken, wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{bruno})},
		{name: "search (unknown)", path: path("nobody", ""), token: teacherToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "roles", path: "/v1/users/roles", token: teacherToken, wantCode: http.StatusOK, wantData: marshalObj(t, user.Roles)},
	})
}

func TestUserAPI_register(t *testing.T) {
	app := setup(t)
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	testutil.CreateUser(t, app.usrRepo, "Bruno", "bruno", "bruno@test.it", "", []string{user.RoleStudent}, true)
	token := app.token(t, sensei)

	app.run(t, []httpTest{
		{
			name: "role above own", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: []byte(`{"name":"Boss","email":"boss@test.it","password":"kiai-kime","passwordConfirm":"kiai-kime","roles":["admin:"]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"roles":"not enough rights to set these roles"}`),
		},
		{
			name: "email taken", method: http.MethodPost, path: "/v1/users/register", token: token,
			body:     []byte(`{"name":"Other","email":"BRUNO@test.it","password":"kiai-kime","passwordConfirm":"kiai-kime"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"email":"a user with this email already exists"}`),
		},
	})

	var created user.User
	rec := app.do(t, http.MethodPost, "/v1/users/register", token,
		[]byte(`{"name":" Anna ","username":"anna","password":"kiai-kime","passwordConfirm":"kiai-kime"}`))
	decode(t, rec, http.StatusCreated, &created)
	assert.Equal(t, "Anna", created.Name)
	assert.Equal(t, []string{user.RoleStudent}, created.Roles)
	assert.True(t, created.IsActive)
}

func TestUserAPI_update(t *testing.T) {
	app := setup(t)
	anna := testutil.CreateStudent(t, app.usrRepo, "Anna")
	bruno := testutil.CreateStudent(t, app.usrRepo, "Bruno")
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.it", "", []string{user.RoleAdmin}, true)

	app.run(t, []httpTest{
		{name: "other user", path: "/v1/users/" + bruno.ID, token: app.token(t, anna), wantCode: http.StatusNotFound},
		{
			name: "own roles", method: http.MethodPut, path: "/v1/users/" + anna.ID, token: app.token(t, anna),
			body: []byte(`{"roles":["teacher:"]}`), wantCode: http.StatusForbidden,
		},
	})

	var updated user.User
	decode(t, app.do(t, http.MethodPut, "/v1/users/"+anna.ID, app.token(t, anna), []byte(`{"name":"Anna Rossi"}`)), http.StatusOK, &updated)
	assert.Equal(t, "Anna Rossi", updated.Name)
	assert.Equal(t, anna.Email, updated.Email)

	decode(t, app.do(t, http.MethodPut, "/v1/users/"+bruno.ID, app.token(t, admin), []byte(`{"isActive":false}`)), http.StatusOK, &updated)
	assert.False(t, updated.IsActive)
}

func TestUserAPI_changePassword(t *testing.T) {
	app := setup(t)
	anna := testutil.CreateUser(t, app.usrRepo, "Anna", "anna", "anna@test.it", "kiai-kime", []string{user.RoleStudent}, true)
	token := app.token(t, anna)

	app.run(t, []httpTest{
		{
			name: "wrong old password", method: http.MethodPut, path: "/v1/users/me/password", token: token,
			body:     []byte(`{"oldPassword":"kiai","password":"zenkutsu","passwordConfirm":"zenkutsu"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"oldPassword":"wrong password"}`),
		},
		{
			name: "ok", method: http.MethodPut, path: "/v1/users/me/password", token: token,
			body:     []byte(`{"oldPassword":"kiai-kime","password":"zenkutsu","passwordConfirm":"zenkutsu"}`),
			wantCode: http.StatusOK, wantData: marshalObj(t, echoapi.SuccessResponse{Success: "Password has been changed."}),
		},
	})

	rec := app.do(t, http.MethodPost, "/v1/users/login", "", []byte(`{"username":"anna","password":"zenkutsu"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserAPI_destroy(t *testing.T) {
	app := setup(t)
	anna := testutil.CreateStudent(t, app.usrRepo, "Anna")
	bruno := testutil.CreateStudent(t, app.usrRepo, "Bruno")
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	other := testutil.CreateTeacher(t, app.usrRepo, "Other")
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.it", "", []string{user.RoleAdmin}, true)
	token := app.token(t, sensei)

	app.run(t, []httpTest{
		{name: "student", method: http.MethodDelete, path: "/v1/users/" + anna.ID, token: app.token(t, bruno), wantCode: http.StatusForbidden},
		{name: "self", method: http.MethodDelete, path: "/v1/users/" + sensei.ID, token: token, wantCode: http.StatusForbidden},
		{name: "peer teacher", method: http.MethodDelete, path: "/v1/users/" + other.ID, token: token, wantCode: http.StatusForbidden},
		{name: "unknown", method: http.MethodDelete, path: "/v1/users/nobody", token: token, wantCode: http.StatusNotFound},
		{name: "ok", method: http.MethodDelete, path: "/v1/users/" + anna.ID, token: token, wantCode: http.StatusNoContent},
		{name: "gone", method: http.MethodDelete, path: "/v1/users/" + anna.ID, token: token, wantCode: http.StatusNotFound},
		{
			name: "bulk includes self", method: http.MethodDelete, path: "/v1/users?id=" + bruno.ID + "&id=" + admin.ID,
			token: app.token(t, admin), wantCode: http.StatusForbidden,
		},
		{
			name: "bulk", method: http.MethodDelete, path: "/v1/users?id=" + bruno.ID + "&id=" + other.ID,
			token: app.token(t, admin), wantCode: http.StatusNoContent,
		},
	})

	users, err := user.NewService(app.usrRepo).Query(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
