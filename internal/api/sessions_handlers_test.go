package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func sessionsPath(userID string) string {
	return "/api/v1/users/" + userID + "/sessions/"
}

func createSession(t *testing.T, h *Handler, userID, body string) string {
	t.Helper()
	rec := serve(t, h, http.MethodPost, sessionsPath(userID), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, ok := decodeObject(t, rec)["insertedId"].(string)
	require.True(t, ok)
	return id
}

func sessionNames(t *testing.T, h *Handler, path string) []string {
	t.Helper()
	rec := serve(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	names := []string{}
	for _, session := range decodeArray(t, rec) {
		names = append(names, session["sessionName"].(string))
	}
	return names
}

func TestCreateSessionStampsOwnerAndDates(t *testing.T) {
	h, clock := newTestHandler(t)
	userID := createUser(t, h, `{"name":"Ada"}`)
	other := primitive.NewObjectID().Hex()

	sessionID := createSession(t, h, userID, `{"sessionName":"Friday","date":"2024-01-10","userId":"`+other+`","cash":true}`)

	rec := serve(t, h, http.MethodGet, sessionsPath(userID)+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	session := decodeObject(t, rec)
	assert.Equal(t, sessionID, session["_id"])
	assert.Equal(t, userID, session["userId"])
	assert.Equal(t, "2024-01-10T00:00:00Z", session["date"])
	assert.Equal(t, clock.now.Format("2006-01-02T15:04:05Z07:00"), session["createdDate"])
	assert.Equal(t, true, session["cash"])
}

func TestCreateSessionWithoutUserDocument(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := primitive.NewObjectID().Hex()
	sessionID := createSession(t, h, userID, `{"sessionName":"orphan","date":"not a date"}`)

	session := decodeObject(t, serve(t, h, http.MethodGet, sessionsPath(userID)+sessionID, ""))
	assert.Contains(t, session, "date")
	assert.Nil(t, session["date"])
}

func TestGetSessionScopedToOwner(t *testing.T) {
	h, _ := newTestHandler(t)
	owner := createUser(t, h, `{"name":"owner"}`)
	intruder := createUser(t, h, `{"name":"intruder"}`)
	sessionID := createSession(t, h, owner, `{"sessionName":"s"}`)

	rec := serve(t, h, http.MethodGet, sessionsPath(intruder)+sessionID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session not found", decodeObject(t, rec)["error"])
}

func TestListSessionsFilters(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := createUser(t, h, `{"name":"Ada"}`)
	otherID := createUser(t, h, `{"name":"Bea"}`)

	createSession(t, h, userID, `{"sessionName":"early","date":"2023-12-20","location":"a","cash":true}`)
	createSession(t, h, userID, `{"sessionName":"january","date":"2024-01-12","location":"b","cash":false}`)
	createSession(t, h, userID, `{"sessionName":"late","date":"2024-02-03","location":"c","cash":true}`)
	createSession(t, h, userID, `{"sessionName":"stringly","date":"2024-01-20","location":"a","cash":"true"}`)
	createSession(t, h, otherID, `{"sessionName":"foreign","date":"2024-01-12","location":"a","cash":true}`)

	base := sessionsPath(userID)
	assert.ElementsMatch(t, []string{"early", "january", "late", "stringly"}, sessionNames(t, h, base))
	assert.ElementsMatch(t, []string{"january", "stringly"}, sessionNames(t, h, base+"?startDate=2024-01-01&endDate=2024-01-31"))
	assert.ElementsMatch(t, []string{"early", "january", "stringly"}, sessionNames(t, h, base+"?location=a,b"))
	assert.ElementsMatch(t, []string{"early", "late"}, sessionNames(t, h, base+"?cash=true"))
	assert.ElementsMatch(t, []string{"january"}, sessionNames(t, h, base+"?cash=false"))
	assert.ElementsMatch(t, []string{"late", "stringly"}, sessionNames(t, h, base+"?startName=l&endName=t"))
	assert.Empty(t, sessionNames(t, h, base+"?location=a,%20b&cash=false"))
	assert.Empty(t, sessionNames(t, h, base+"?startDate=2024-02-01&endDate=2024-01-01"))
}

func TestPatchSessionConvertsDate(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := createUser(t, h, `{"name":"Ada"}`)
	sessionID := createSession(t, h, userID, `{"sessionName":"s","date":"2024-01-10"}`)

	rec := serve(t, h, http.MethodPatch, sessionsPath(userID)+sessionID, `{"date":"2024-03-05T18:30:00Z","sessionName":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeObject(t, rec)["modifiedCount"])

	session := decodeObject(t, serve(t, h, http.MethodGet, sessionsPath(userID)+sessionID, ""))
	assert.Equal(t, "2024-03-05T18:30:00Z", session["date"])
	assert.Equal(t, "renamed", session["sessionName"])

	rec = serve(t, h, http.MethodGet, sessionsPath(userID)+"?startDate=2024-03-01", "")
	assert.Len(t, decodeArray(t, rec), 1)
}

func TestPatchSessionOfAnotherUserMatchesNothing(t *testing.T) {
	h, _ := newTestHandler(t)
	owner := createUser(t, h, `{"name":"owner"}`)
	intruder := createUser(t, h, `{"name":"intruder"}`)
	sessionID := createSession(t, h, owner, `{"sessionName":"s"}`)

	rec := serve(t, h, http.MethodPatch, sessionsPath(intruder)+sessionID, `{"sessionName":"stolen"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeObject(t, rec)["matchedCount"])
}

func TestDeleteSessionScopedToOwner(t *testing.T) {
	h, _ := newTestHandler(t)
	owner := createUser(t, h, `{"name":"owner"}`)
	intruder := createUser(t, h, `{"name":"intruder"}`)
	sessionID := createSession(t, h, owner, `{"sessionName":"s"}`)

	rec := serve(t, h, http.MethodDelete, sessionsPath(intruder)+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"acknowledged": true, "deletedCount": float64(0)}, decodeObject(t, rec))
	assert.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, sessionsPath(owner)+sessionID, "").Code)

	rec = serve(t, h, http.MethodDelete, sessionsPath(owner)+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeObject(t, rec)["deletedCount"])
}

func TestMalformedSessionIDIsInternalError(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := createUser(t, h, `{"name":"Ada"}`)
	assertInternalError(t, serve(t, h, http.MethodGet, sessionsPath(userID)+"zzz", ""))
	assertInternalError(t, serve(t, h, http.MethodGet, sessionsPath("zzz"), ""))
}
