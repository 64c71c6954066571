package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/blocknode/business/web/errs"
	"github.com/ardanlabs/blocknode/business/web/mid"
	"github.com/ardanlabs/blocknode/foundation/web"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Errors(t *testing.T) {
	type table struct {
		name    string
		handler web.Handler
		status  int
		message string
	}

	tt := []table{
		{
			name: "trusted",
			handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				return errs.NewNotFound("block %s not found", "0x01")
			},
			status:  http.StatusNotFound,
			message: "block 0x01 not found",
		},
		{
			name: "untrusted",
			handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				return errors.New("disk on fire")
			},
			status:  http.StatusInternalServerError,
			message: http.StatusText(http.StatusInternalServerError),
		},
		{
			name: "panic",
			handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				panic("boom")
			},
			status:  http.StatusInternalServerError,
			message: http.StatusText(http.StatusInternalServerError),
		},
	}

	t.Log("Given the need to render handler errors.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				log := zap.NewNop().Sugar()

				shutdown := make(chan os.Signal, 1)
				app := web.NewApp(shutdown, mid.Logger(log), mid.Errors(log), mid.Metrics(), mid.Panics())
				app.Handle(http.MethodGet, "v1", "/test", tst.handler)

				r := httptest.NewRequest(http.MethodGet, "/v1/test", nil)
				w := httptest.NewRecorder()
				app.ServeHTTP(w, r)

				if w.Code != tst.status {
					t.Fatalf("\t%s\tTest %d:\tShould get status %d, got %d.", failed, testID, tst.status, w.Code)
				}
				t.Logf("\t%s\tTest %d:\tShould get status %d.", success, testID, tst.status)

				var er errs.Response
				if err := json.NewDecoder(w.Body).Decode(&er); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to decode the response: %v", failed, testID, err)
				}
				if er.Error != tst.message || er.TraceID == "" {
					t.Fatalf("\t%s\tTest %d:\tShould get the message and a trace id: %+v", failed, testID, er)
				}
				t.Logf("\t%s\tTest %d:\tShould get the message and a trace id.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Cors(t *testing.T) {
	type table struct {
		name    string
		allowed string
		origin  string
		exp     string
	}

	tt := []table{
		{name: "any", allowed: "*", origin: "http://viewer.local", exp: "*"},
		{name: "listed", allowed: "http://a.local, http://viewer.local", origin: "http://viewer.local", exp: "http://viewer.local"},
		{name: "unlisted", allowed: "http://a.local", origin: "http://viewer.local", exp: ""},
		{name: "no origin", allowed: "http://a.local", origin: "", exp: ""},
	}

	t.Log("Given the need to allow browser viewers from configured origins.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				shutdown := make(chan os.Signal, 1)
				app := web.NewApp(shutdown, mid.Cors(tst.allowed))
				app.Handle(http.MethodGet, "v1", "/test", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					return web.Respond(ctx, w, nil, http.StatusNoContent)
				})

				r := httptest.NewRequest(http.MethodGet, "/v1/test", nil)
				if tst.origin != "" {
					r.Header.Set("Origin", tst.origin)
				}
				w := httptest.NewRecorder()
				app.ServeHTTP(w, r)

				if got := w.Header().Get("Access-Control-Allow-Origin"); got != tst.exp {
					t.Fatalf("\t%s\tTest %d:\tShould allow origin %q, got %q.", failed, testID, tst.exp, got)
				}
				t.Logf("\t%s\tTest %d:\tShould allow origin %q.", success, testID, tst.exp)
			}

			t.Run(tst.name, f)
		}
	}
}
