package sandbox_test

import (
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"

	"github.com/andreyvit/stdb/hostsim"
	"github.com/andreyvit/stdb/internal/demomodule"
	"github.com/andreyvit/stdb/sandbox"
)

type JSON = map[string]any

func TestAcceptance(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		h, err := hostsim.New(hostsim.Options{
			Logger: slog.New(slog.DiscardHandler),
			Now:    func() time.Time { return now },
		})
		biff.AssertNil(err)
		defer h.Close()
		biff.AssertNil(h.Load(demomodule.Define()))

		s := sandbox.New(h, slog.New(slog.DiscardHandler))
		api := apitest.NewWithHandler(s.Build("test"))

		a.Alternative("Release", func(a *biff.A) {
			resp := api.Request("GET", "/release").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), "test")
		})

		a.Alternative("List tables", func(a *biff.A) {
			resp := api.Request("GET", "/v1/tables").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{
				{"name": "person", "id": 1, "rows": 0, "public": true},
				{"name": "online", "id": 2, "rows": 0, "public": false},
				{"name": "roll", "id": 3, "rows": 0, "public": true},
			})
		})

		a.Alternative("Describe module", func(a *biff.A) {
			resp := api.Request("GET", "/v1/module").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			body := resp.BodyJsonMap()
			reducers := map[string]bool{}
			for _, r := range body["reducers"].([]any) {
				reducers[r.(JSON)["name"].(string)] = true
			}
			biff.AssertTrue(reducers["add_person"])
			biff.AssertTrue(reducers["remind"])
			biff.AssertEqual(len(body["tables"].([]any)), 3)
		})

		a.Alternative("Unknown table", func(a *biff.A) {
			resp := api.Request("GET", "/v1/tables/nope").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Unknown path", func(a *biff.A) {
			resp := api.Request("GET", "/v1/nothing/here").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Unknown reducer", func(a *biff.A) {
			resp := api.Request("POST", "/v1/reducers/nope").WithBodyJson(JSON{}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Lifecycle reducer", func(a *biff.A) {
			resp := api.Request("POST", "/v1/reducers/__init__").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Malformed args", func(a *biff.A) {
			resp := api.Request("POST", "/v1/reducers/add_person").WithBodyString(`{"name":`).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Wrong args", func(a *biff.A) {
			resp := api.Request("POST", "/v1/reducers/add_person").
				WithBodyJson(JSON{"name": "Ann", "age": 1000}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Add person", func(a *biff.A) {
			resp := api.Request("POST", "/v1/reducers/add_person").
				WithBodyJson(JSON{"name": " Ann ", "age": 10}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			a.Alternative("List rows", func(a *biff.A) {
				resp := api.Request("GET", "/v1/tables/person").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), []JSON{
					{"id": 1, "name": "Ann", "age": 10},
				})
			})

			a.Alternative("Failing reducer", func(a *biff.A) {
				resp := api.Request("POST", "/v1/reducers/rename").
					WithBodyJson(JSON{"id": 9, "name": "Zed"}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusUnprocessableEntity)
				msg := resp.BodyJsonMap()["error"].(JSON)["message"].(string)
				biff.AssertTrue(strings.Contains(msg, demomodule.ErrNoSuchPerson.Error()))
			})

			a.Alternative("Console", func(a *biff.A) {
				resp := api.Request("POST", "/v1/reducers/say_hello").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				resp = api.Request("GET", "/v1/console").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				var msgs []string
				for _, l := range resp.BodyJson().([]any) {
					msg, _, _ := strings.Cut(l.(JSON)["message"].(string), " reducer=")
					msgs = append(msgs, msg)
				}
				biff.AssertEqual(msgs, []string{"module initialized", "added person", "Hello, Ann!", "Hello, World!"})
			})
		})

		a.Alternative("Connect", func(a *biff.A) {
			identity := strings.Repeat("ab", 32)
			resp := api.Request("POST", "/v1/connections").
				WithBodyJson(JSON{"identity": identity}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusCreated)
			conn := resp.BodyJsonMap()
			biff.AssertEqual(conn["identity"], identity)
			connID := conn["connection_id"].(string)

			resp = api.Request("GET", "/v1/tables").Do()
			biff.AssertEqualJson(resp.BodyJson().([]any)[1].(JSON)["rows"], 1)

			a.Alternative("Call as connection", func(a *biff.A) {
				resp := api.Request("POST", "/v1/reducers/roll_dice").
					WithHeader(sandbox.ConnectionIDHeader, connID).
					WithBodyJson(JSON{"who": "ab", "sides": 6}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
			})

			a.Alternative("Foreign identity", func(a *biff.A) {
				resp := api.Request("POST", "/v1/reducers/say_hello").
					WithHeader(sandbox.ConnectionIDHeader, connID).
					WithHeader(sandbox.IdentityHeader, strings.Repeat("cd", 32)).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
			})

			a.Alternative("Disconnect", func(a *biff.A) {
				resp := api.Request("DELETE", "/v1/connections/"+connID).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				resp = api.Request("GET", "/v1/tables").Do()
				biff.AssertEqualJson(resp.BodyJson().([]any)[1].(JSON)["rows"], 0)

				resp = api.Request("DELETE", "/v1/connections/"+connID).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})

		a.Alternative("Schedule", func(a *biff.A) {
			resp := api.Request("POST", "/v1/reducers/remind").
				WithBodyJson(JSON{"message": "tea", "delay": JSON{"__time_duration_micros__": 0}}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = api.Request("GET", "/v1/schedule").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{
				{"id": 1, "at": "2024-03-01T12:00:00.000001Z", "reducer": "log_message"},
			})

			resp = api.Request("POST", "/v1/schedule:runDue").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{"ran": 1})

			resp = api.Request("GET", "/v1/schedule").Do()
			biff.AssertEqualJson(resp.BodyJson(), []JSON{})
		})
	})
}
