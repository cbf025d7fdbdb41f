package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/scheduling"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

func newClientFixture(t *testing.T) (*fixture, *Client) {
	t.Helper()
	f := newFixture(nil)
	ts := httptest.NewServer(f.server.Routes())
	t.Cleanup(ts.Close)
	return f, NewClient(ts.URL+"/", ts.Client())
}

func TestClient_ScheduleNotification(t *testing.T) {
	f, c := newClientFixture(t)
	f.sched.On("Schedule", mock.Anything, mock.MatchedBy(func(r scheduling.Request) bool { return r.Recipient == "E1" })).
		Return(scheduling.Result{Accepted: true, JobID: "j1"}, nil)

	resp, err := c.ScheduleNotification(context.Background(), ScheduleNotificationRequest{EmpID: "E1", EmailAddress: "e1@example.com", Message: "Hi"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "j1", resp.JobID)
}

func TestClient_SubmitChatEvent(t *testing.T) {
	f, c := newClientFixture(t)
	f.jobs.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	score := 55
	resp, err := c.SubmitChatEvent(context.Background(), SubmitChatEventRequest{EmpID: "E1", WellnessScore: &score})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)

	_, err = c.SubmitChatEvent(context.Background(), SubmitChatEventRequest{EmpID: "E1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestClient_ErrorKinds(t *testing.T) {
	f, c := newClientFixture(t)
	f.engine.On("CheckIn", mock.Anything, "ghost", mock.Anything).Return(apperr.PermanentRecipient("unknown employee ghost", nil))
	f.engine.On("CheckIn", mock.Anything, "busy", mock.Anything).Return(apperr.Conflict("gave up"))

	err := c.CheckIn(context.Background(), CheckInRequest{EmpID: "ghost"})
	assert.True(t, apperr.Is(err, apperr.KindPermanentRecipient))

	err = c.CheckIn(context.Background(), CheckInRequest{EmpID: "busy"})
	assert.True(t, apperr.Retryable(err))

	err = c.CheckIn(context.Background(), CheckInRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = c.RecordActivity(context.Background(), ActivityRequest{EmpID: "E1", EmailsSent: -1})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestClient_RegisterEmployee(t *testing.T) {
	f, c := newClientFixture(t)
	p := wellness.Profile{EmpID: "E1", Name: "Asha"}
	f.engine.On("Register", mock.Anything, p).Return(true, nil).Once()
	f.engine.On("Register", mock.Anything, p).Return(false, nil).Once()

	created, err := c.RegisterEmployee(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.RegisterEmployee(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestClient_GetJob(t *testing.T) {
	f, c := newClientFixture(t)
	id := "9b2f3c1e-0c2a-4c59-9d7e-0f4b6d1a2e10"
	f.jobs.On("Get", mock.Anything, id).Return(&job.Job{ID: id, State: job.StateAbandoned, LastError: "invalid address"}, nil)

	j, err := c.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateAbandoned, j.State)
	assert.Equal(t, "invalid address", j.LastError)

	_, err = c.GetJob(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := NewClient(url, nil).CheckIn(context.Background(), CheckInRequest{EmpID: "E1"})
	assert.True(t, apperr.Is(err, apperr.KindTransientDependency))
}
