package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/edukit/classsync/internal/domain"
)

func envelopeOK(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"code":0,"msg":"","data":%s}`, raw)
}

func newLoginServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/config", func(w http.ResponseWriter, r *http.Request) {
		envelopeOK(t, w, map[string]string{"appId": "app-1"})
	})
	mux.HandleFunc("/v1/apps/app-1/room/entry", func(w http.ResponseWriter, r *http.Request) {
		var params EntryParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("entry body: %v", err)
		}
		if params.UserName != "bob" {
			t.Errorf("userName = %q", params.UserName)
		}
		envelopeOK(t, w, map[string]string{"roomId": "room-1", "userToken": "tok-1"})
	})
	mux.HandleFunc("/v1/apps/app-1/room/room-1", func(w http.ResponseWriter, r *http.Request) {
		envelopeOK(t, w, map[string]any{
			"room": map[string]any{
				"roomId": "room-1", "roomName": "math", "channelName": "ch-1",
				"courseState": 1, "muteAllChat": 0, "onlineUsers": 2,
				"coVideoUsers": []map[string]any{
					{"uid": 1, "userId": "u-1", "userName": "alice", "role": 1,
						"enableVideo": 1, "enableAudio": 1, "enableChat": 1},
				},
			},
			"user": map[string]any{
				"uid": 5, "userId": "u-5", "userName": "bob", "role": 2,
				"enableVideo": 1, "enableAudio": 1, "enableChat": 1,
				"rtcToken": "rtc-1", "rtmToken": "rtm-1",
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestLoginSequence(t *testing.T) {
	srv := newLoginServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "auth-key")
	res, err := c.Login(context.Background(), EntryParams{UserName: "bob", RoomName: "math", Role: domain.RoleStudent})
	if err != nil {
		t.Fatal(err)
	}

	if res.Me.UID != 5 || res.Me.RTCToken != "rtc-1" || res.Me.ChannelName != "ch-1" {
		t.Errorf("me not assembled: %+v", res.Me)
	}
	if res.Course.RoomName != "math" || res.Course.CourseState != domain.On {
		t.Errorf("course not assembled: %+v", res.Course)
	}
	if len(res.Users) != 1 || res.Users["1"].Account != "alice" {
		t.Errorf("users not assembled: %+v", res.Users)
	}
	if res.OnlineUsers != 2 {
		t.Errorf("onlineUsers = %d", res.OnlineUsers)
	}
	if c.RoomID() != "room-1" {
		t.Errorf("roomID = %q", c.RoomID())
	}
}

func TestAPIErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"code":1403,"msg":"room full"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	err := c.Config(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 1403 || apiErr.Msg != "room full" {
		t.Fatalf("want APIError 1403, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("API-level errors must not retry, calls=%d", n)
	}
}

func TestNetworkFailureRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		envelopeOK(t, w, map[string]string{"appId": "app-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if err := c.Config(context.Background()); err != nil {
		t.Fatalf("third attempt should have succeeded: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if err := c.Config(context.Background()); err == nil {
		t.Fatal("want error after exhausted retries")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Basic secret" {
			t.Errorf("Authorization = %q", got)
		}
		envelopeOK(t, w, map[string]string{"appId": "app-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	if err := c.Config(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestUserTokenPropagates(t *testing.T) {
	srv := newLoginServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.Login(context.Background(), EntryParams{UserName: "bob"}); err != nil {
		t.Fatal(err)
	}

	check := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("token"); got != "tok-1" {
			t.Errorf("token header = %q", got)
		}
		fmt.Fprint(w, `{"code":0}`)
	}))
	defer check.Close()

	c.baseURL = check.URL
	if err := c.UpdateUser(context.Background(), UserUpdate{UserID: "u-5", CoVideo: domain.Ptr(1)}); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateUserOmitsUnsetFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		fmt.Fprint(w, `{"code":0}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	v := 0
	if err := c.UpdateUser(context.Background(), UserUpdate{UserID: "u-5", EnableAudio: &v}); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["enableAudio"]; !ok {
		t.Error("set field must be sent")
	}
	if _, ok := body["enableVideo"]; ok {
		t.Error("unset fields must be omitted")
	}
	if _, ok := body["UserID"]; ok {
		t.Error("userId travels in the path, not the body")
	}
}
