package httpapi_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconciler/internal/contact"
	"reconciler/internal/contact/handler"
	httpapi "reconciler/internal/http"
	"reconciler/internal/platform/config"
	"reconciler/internal/platform/metrics"
	"reconciler/pkg/testutil"
)

func newScenarioRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := contact.OpenBackend(context.Background(), config.StoreConfig{
		Backend:   config.BackendMemory,
		TxTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	svc, err := contact.NewService(backend.Tx)
	require.NoError(t, err)

	return httpapi.NewRouter(
		logger,
		metrics.New(prometheus.NewRegistry()),
		[]httpapi.Check{{Name: "store", Ping: backend.Ping}},
		contact.NewHandler(svc, logger),
	)
}

func identify(t *testing.T, router http.Handler, body string) handler.ContactResponse {
	t.Helper()
	rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/identify", body))
	testutil.AssertStatusOK(t, rr)
	return testutil.UnmarshalResponse[handler.ContactEnvelope](t, rr).Contact
}

func TestIdentifyScenario(t *testing.T) {
	router := newScenarioRouter(t)

	testutil.Given(t, "two unrelated primaries", func(t *testing.T) {
		first := identify(t, router, `{"email":"george@hillvalley.edu","phoneNumber":"919191"}`)
		second := identify(t, router, `{"email":"biffsucks@hillvalley.edu","phoneNumber":"717171"}`)
		require.NotEqual(t, first.PrimaryContactID, second.PrimaryContactID)

		testutil.When(t, "a request links them", func(t *testing.T) {
			merged := identify(t, router, `{"email":"george@hillvalley.edu","phoneNumber":"717171"}`)

			testutil.Then(t, "the older primary absorbs the newer group", func(t *testing.T) {
				assert.Equal(t, first.PrimaryContactID, merged.PrimaryContactID)
				assert.Equal(t, []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"}, merged.Emails)
				assert.Equal(t, []string{"919191", "717171"}, merged.PhoneNumbers)
				assert.Equal(t, []int64{second.PrimaryContactID}, merged.SecondaryContactIDs)
			})

			testutil.Then(t, "the absorbed id resolves to the same identity", func(t *testing.T) {
				path := "/contacts/" + strconv.FormatInt(second.PrimaryContactID, 10)
				rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, path))
				testutil.AssertStatusOK(t, rr)
				got := testutil.UnmarshalResponse[handler.ContactEnvelope](t, rr).Contact
				assert.Equal(t, merged, got)
			})
		})
	})

	testutil.Given(t, "an empty observation", func(t *testing.T) {
		testutil.Then(t, "it is rejected before touching the store", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/identify", `{}`))
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
		})
	})

	testutil.Given(t, "an unknown contact id", func(t *testing.T) {
		testutil.Then(t, "lookup reports not found", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/contacts/999999"))
			testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
		})
	})

	testutil.Given(t, "a healthy memory store", func(t *testing.T) {
		testutil.Then(t, "health reports ok", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
			testutil.AssertStatusOK(t, rr)
			assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok"}}`, rr.Body.String())
		})
	})
}
