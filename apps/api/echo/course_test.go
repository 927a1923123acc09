package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/fantakombat/backend/apps/api/echo"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/user"
	testutil "github.com/fantakombat/backend/tests"
)

func TestCourseAPI_courses(t *testing.T) {
	app := setup(t)
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	other := testutil.CreateTeacher(t, app.usrRepo, "Other")
	anna := testutil.CreateStudent(t, app.usrRepo, "Anna")
	token := app.token(t, sensei)

	var crs course.Course
	decode(t, app.do(t, http.MethodPost, "/v1/courses", token, []byte(`{"name":"  Karate Kids "}`)), http.StatusCreated, &crs)
	assert.Equal(t, "Karate Kids", crs.Name)
	assert.Equal(t, sensei.ID, crs.OwnerID)
	assert.True(t, crs.IsActive)

	var detail echoapi.CourseDetail
	decode(t, app.do(t, http.MethodGet, "/v1/courses/"+crs.ID, token, nil), http.StatusOK, &detail)
	assert.Equal(t, crs.ID, detail.Course.ID)
	assert.Empty(t, detail.Years)
	require.Len(t, detail.Actions, len(course.AutomaticActionNames))
	for _, act := range detail.Actions {
		assert.True(t, act.IsAutomatic, act.Name)
		assert.True(t, course.IsAutomaticActionName(act.Name), act.Name)
	}

	app.run(t, []httpTest{
		{
			name: "name required", method: http.MethodPost, path: "/v1/courses", token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"this field is required"}`),
		},
		{
			name: "student", method: http.MethodPost, path: "/v1/courses", token: app.token(t, anna), body: []byte(`{"name":"Judo"}`),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "other teacher", path: "/v1/courses/" + crs.ID, token: app.token(t, other), wantCode: http.StatusNotFound},
		{name: "other teacher's list", path: "/v1/courses", token: app.token(t, other), wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "unknown", path: "/v1/courses/nope", token: token, wantCode: http.StatusNotFound},
		{name: "list", path: "/v1/courses", token: token, wantCode: http.StatusOK, wantData: marshalObj(t, []course.Course{crs})},
	})

	var updated course.Course
	rec := app.do(t, http.MethodPut, "/v1/courses/"+crs.ID, token, []byte(`{"name":"Karate","description":"Lunedì e giovedì"}`))
	decode(t, rec, http.StatusOK, &updated)
	assert.Equal(t, "Karate", updated.Name)
	assert.Equal(t, "Lunedì e giovedì", updated.Description)
}

func TestCourseAPI_years(t *testing.T) {
	app := setup(t)
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	anna := testutil.CreateStudent(t, app.usrRepo, "Anna")
	token := app.token(t, sensei)

	var crs course.Course
	decode(t, app.do(t, http.MethodPost, "/v1/courses", token, []byte(`{"name":"Karate"}`)), http.StatusCreated, &crs)
	yearsPath := "/v1/courses/" + crs.ID + "/years"

	var first, second course.AcademicYear
	decode(t, app.do(t, http.MethodPost, yearsPath, token, []byte(`{"name":"2025/2026","startDate":"2025-09-01T00:00:00Z"}`)), http.StatusCreated, &first)
	assert.True(t, first.IsActive)
	decode(t, app.do(t, http.MethodPost, yearsPath, token, []byte(`{"name":"2026/2027","startDate":"2026-09-01T00:00:00Z"}`)), http.StatusCreated, &second)
	assert.True(t, second.IsActive)

	var got course.AcademicYear
	decode(t, app.do(t, http.MethodGet, "/v1/years/"+first.ID, token, nil), http.StatusOK, &got)
	assert.False(t, got.IsActive, "a new year deactivates its siblings")

	decode(t, app.do(t, http.MethodPost, "/v1/years/"+first.ID+"/activate", token, nil), http.StatusOK, &got)
	assert.True(t, got.IsActive)
	decode(t, app.do(t, http.MethodGet, "/v1/years/"+second.ID, token, nil), http.StatusOK, &got)
	assert.False(t, got.IsActive)

	app.run(t, []httpTest{
		{
			name: "duplicate name", method: http.MethodPost, path: yearsPath, token: token,
			body:     []byte(`{"name":"2025/2026","startDate":"2025-09-01T00:00:00Z"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"an academic year with this name already exists for this course"}`),
		},
		{
			name: "student", path: "/v1/years/" + first.ID, token: app.token(t, anna),
			wantCode: http.StatusForbidden,
		},
		{name: "delete", method: http.MethodDelete, path: "/v1/years/" + second.ID, token: token, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/v1/years/" + second.ID, token: token, wantCode: http.StatusNotFound},
	})

	var years []course.AcademicYear
	decode(t, app.do(t, http.MethodGet, yearsPath, token, nil), http.StatusOK, &years)
	require.Len(t, years, 1)
	assert.Equal(t, first.ID, years[0].ID)
}

func TestCourseAPI_enrollments(t *testing.T) {
	app := setup(t)
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	anna := testutil.CreateStudent(t, app.usrRepo, "Anna")
	bruno := testutil.CreateStudent(t, app.usrRepo, "Bruno")
	token := app.token(t, sensei)

	var crs course.Course
	decode(t, app.do(t, http.MethodPost, "/v1/courses", token, []byte(`{"name":"Karate"}`)), http.StatusCreated, &crs)
	var year course.AcademicYear
	decode(t, app.do(t, http.MethodPost, "/v1/courses/"+crs.ID+"/years", token, []byte(`{"name":"2025/2026","startDate":"2025-09-01T00:00:00Z"}`)), http.StatusCreated, &year)
	path := "/v1/years/" + year.ID + "/enrollments"

	var enrollments []course.Enrollment
	decode(t, app.do(t, http.MethodPost, path, token, echoapi.EnrollRequest{UserIDs: []string{anna.ID, bruno.ID, anna.ID}}), http.StatusCreated, &enrollments)
	assert.Len(t, enrollments, 2)

	app.run(t, []httpTest{
		{
			name: "already enrolled", method: http.MethodPost, path: path, token: token,
			body:     marshalObj(t, echoapi.EnrollRequest{UserIDs: []string{anna.ID}}),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"userIds":"student already enrolled in this academic year"}`),
		},
		{
			name: "not a student", method: http.MethodPost, path: path, token: token,
			body:     marshalObj(t, echoapi.EnrollRequest{UserIDs: []string{sensei.ID}}),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"userIds":"only students can be enrolled"}`),
		},
		{
			name: "unknown user", method: http.MethodPost, path: path, token: token,
			body:     marshalObj(t, echoapi.EnrollRequest{UserIDs: []string{"nobody"}}),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "user not found"}),
		},
		{name: "no users", method: http.MethodPost, path: path, token: token, body: []byte(`{"userIds":[]}`), wantCode: http.StatusBadRequest},
		{name: "list", path: path, token: token, wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{anna, bruno})},
		{name: "unenroll", method: http.MethodDelete, path: path + "/" + bruno.ID, token: token, wantCode: http.StatusNoContent},
		{name: "unenroll (again)", method: http.MethodDelete, path: path + "/" + bruno.ID, token: token, wantCode: http.StatusNotFound},
		{name: "list after", path: path, token: token, wantCode: http.StatusOK, wantData: marshalObj(t, []user.User{anna})},
	})
}

func TestCourseAPI_lessons(t *testing.T) {
	app := setup(t)
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	token := app.token(t, sensei)

	var crs course.Course
	decode(t, app.do(t, http.MethodPost, "/v1/courses", token, []byte(`{"name":"Karate"}`)), http.StatusCreated, &crs)
	var year course.AcademicYear
	decode(t, app.do(t, http.MethodPost, "/v1/courses/"+crs.ID+"/years", token, []byte(`{"name":"2025/2026","startDate":"2025-09-01T00:00:00Z"}`)), http.StatusCreated, &year)
	path := "/v1/years/" + year.ID + "/lessons"

	var l1, l2 course.Lesson
	decode(t, app.do(t, http.MethodPost, path, token, []byte(`{"date":"2025-09-08T18:00:00Z","title":" Kihon "}`)), http.StatusCreated, &l1)
	assert.Equal(t, "Kihon", l1.Title)
	decode(t, app.do(t, http.MethodPost, path, token, []byte(`{"date":"2025-09-11T18:00:00Z","title":"Kata"}`)), http.StatusCreated, &l2)

	var lessons []course.Lesson
	decode(t, app.do(t, http.MethodGet, path, token, nil), http.StatusOK, &lessons)
	require.Len(t, lessons, 2)
	assert.Equal(t, l2.ID, lessons[0].ID, "most recent first")

	app.run(t, []httpTest{
		{
			name: "date required", method: http.MethodPost, path: path, token: token, body: []byte(`{"title":"Kumite"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"date":"this field is required"}`),
		},
		{name: "delete", method: http.MethodDelete, path: "/v1/lessons/" + l1.ID, token: token, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/v1/lessons/" + l1.ID, token: token, wantCode: http.StatusNotFound},
	})
}

func TestCourseAPI_actions(t *testing.T) {
	app := setup(t)
	sensei := testutil.CreateTeacher(t, app.usrRepo, "Sensei")
	other := testutil.CreateTeacher(t, app.usrRepo, "Other")
	token := app.token(t, sensei)

	var crs course.Course
	decode(t, app.do(t, http.MethodPost, "/v1/courses", token, []byte(`{"name":"Karate"}`)), http.StatusCreated, &crs)
	path := "/v1/courses/" + crs.ID + "/actions"

	var kata course.Action
	decode(t, app.do(t, http.MethodPost, path, token, []byte(`{"name":"Kata","description":"Kata eseguito bene","points":1}`)), http.StatusCreated, &kata)
	assert.False(t, kata.IsAutomatic)
	assert.True(t, kata.IsActive)

	var actions []course.Action
	decode(t, app.do(t, http.MethodGet, path, token, nil), http.StatusOK, &actions)
	require.Len(t, actions, 5)
	var presence course.Action
	for _, act := range actions {
		if act.Name == course.ActionPresence {
			presence = act
		}
	}
	require.NotEmpty(t, presence.ID)

	app.run(t, []httpTest{
		{
			name: "reserved name", method: http.MethodPost, path: path, token: token, body: []byte(`{"name":"Presenza","points":1}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"this name is reserved for automatic actions"}`),
		},
		{
			name: "duplicate name", method: http.MethodPost, path: path, token: token, body: []byte(`{"name":"kata","points":2}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"an action with this name already exists for this course"}`),
		},
		{
			name: "rename automatic", method: http.MethodPut, path: "/v1/actions/" + presence.ID, token: token, body: []byte(`{"name":"Presente"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"automatic actions cannot be renamed"}`),
		},
		{
			name: "delete automatic", method: http.MethodDelete, path: "/v1/actions/" + presence.ID, token: token,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "automatic actions cannot be deleted"}),
		},
		{
			name: "other teacher", method: http.MethodPut, path: "/v1/actions/" + kata.ID, token: app.token(t, other), body: []byte(`{"points":3}`),
			wantCode: http.StatusNotFound,
		},
	})

	var updated course.Action
	decode(t, app.do(t, http.MethodPut, "/v1/actions/"+presence.ID, token, []byte(`{"points":2}`)), http.StatusOK, &updated)
	assert.Equal(t, 2.0, updated.Points)
	assert.Equal(t, course.ActionPresence, updated.Name)

	rec := app.do(t, http.MethodDelete, "/v1/actions/"+kata.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
