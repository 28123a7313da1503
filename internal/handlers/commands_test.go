package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"printlapse/internal/models"
	"printlapse/internal/service"
	"printlapse/internal/timelapse"
)

func newCommandRouterService(cmds *mockCommands) *service.Service {
	return &service.Service{
		Authorization: &mockAuth{},
		Commands:      cmds,
		Monitoring: &mockMonitoring{status: models.Status{
			Session: models.Session{ID: "abc", State: models.SessionRunning, FrameCount: 3},
		}},
	}
}

func postCommand(r http.Handler, name, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/commands/"+name, nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/commands/"+name, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)
	return w
}

func TestRunCommand_SuccessIncludesStatus(t *testing.T) {
	cmds := &mockCommands{result: "timelapse session started"}
	r := newTestRouter(newCommandRouterService(cmds))

	w := postCommand(r, "start", `{"args":"benchy.gcode"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if cmds.lastName != "start" || cmds.lastArgs != "benchy.gcode" {
		t.Fatalf("dispatch: name=%q args=%q", cmds.lastName, cmds.lastArgs)
	}

	var resp struct {
		Result string        `json:"result"`
		Status models.Status `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Result != "timelapse session started" {
		t.Fatalf("result=%q", resp.Result)
	}
	if resp.Status.Session.ID != "abc" || resp.Status.Session.FrameCount != 3 {
		t.Fatalf("status snapshot missing: %+v", resp.Status)
	}
}

func TestRunCommand_EmptyBodyAllowed(t *testing.T) {
	cmds := &mockCommands{result: "frame captured"}
	r := newTestRouter(newCommandRouterService(cmds))

	w := postCommand(r, "photo", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if cmds.lastArgs != "" {
		t.Fatalf("args must default to empty, got %q", cmds.lastArgs)
	}
}

func TestRunCommand_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown command", fmt.Errorf("%w: %q", service.ErrUnknownCommand, "nope"), http.StatusNotFound},
		{"bad argument", fmt.Errorf("%w: bogus", service.ErrInvalidArgument), http.StatusBadRequest},
		{"invalid transition", fmt.Errorf("%w: create from running", timelapse.ErrInvalidTransition), http.StatusConflict},
		{"render busy", timelapse.ErrRenderBusy, http.StatusConflict},
		{"no session", timelapse.ErrNoSession, http.StatusConflict},
		{"other failure", fmt.Errorf("camera unreachable"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmds := &mockCommands{err: tc.err}
			r := newTestRouter(newCommandRouterService(cmds))

			w := postCommand(r, "create", "")
			if w.Code != tc.want {
				t.Fatalf("status=%d, want %d, body=%s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestRunCommand_MalformedBodyRejected(t *testing.T) {
	cmds := &mockCommands{}
	r := newTestRouter(newCommandRouterService(cmds))

	w := postCommand(r, "start", `{"args":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if cmds.calls != 0 {
		t.Fatalf("malformed body must not reach the command service")
	}
}

func TestRunCommand_RequiresAuth(t *testing.T) {
	cmds := &mockCommands{}
	s := &service.Service{
		Authorization: &mockAuth{parseErr: fmt.Errorf("bad token")},
		Commands:      cmds,
		Monitoring:    &mockMonitoring{},
	}
	r := newTestRouter(s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/stop", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", w.Code)
	}
	if cmds.calls != 0 {
		t.Fatalf("unauthorized request must not reach the command service")
	}
}

func TestGetStatus(t *testing.T) {
	s := newCommandRouterService(&mockCommands{})
	r := newTestRouter(s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var st models.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Session.State != models.SessionRunning {
		t.Fatalf("snapshot: %+v", st)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}
