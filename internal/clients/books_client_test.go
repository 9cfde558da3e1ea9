package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

type fakeBooks struct {
	invoices map[string]*Invoice
	deleted  []string
	queries  []string
	creates  int
}

func newFakeBooks(t *testing.T) (*httptest.Server, *fakeBooks) {
	t.Helper()

	state := &fakeBooks{invoices: make(map[string]*Invoice)}
	r := mux.NewRouter()

	r.HandleFunc("/oauth/token", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, req.ParseForm())

		if req.PostForm.Get("refresh_token") != "old-refresh" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(authResponse{
			AccessToken:  "access-1",
			RefreshToken: "new-refresh",
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v3/company/realm-1/{entity:item|class|customer|term}/{id}",
		func(w http.ResponseWriter, req *http.Request) {
			vars := mux.Vars(req)
			json.NewEncoder(w).Encode(map[string]namedEntity{
				vars["entity"]: {ID: vars["id"], Name: "name-" + vars["id"]},
			})
		}).Methods(http.MethodGet)

	r.HandleFunc("/v3/company/realm-1/query", func(w http.ResponseWriter, req *http.Request) {
		state.queries = append(state.queries, req.URL.Query().Get("query"))

		var result invoiceQueryResponse

		for _, inv := range state.invoices {
			result.QueryResponse.Invoice = append(result.QueryResponse.Invoice, *inv)
		}

		json.NewEncoder(w).Encode(result)
	}).Methods(http.MethodGet)

	r.HandleFunc("/v3/company/realm-1/invoice", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("operation") == "delete" {
			var payload map[string]string
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			state.deleted = append(state.deleted, payload["Id"])
			w.WriteHeader(http.StatusOK)
			return
		}

		var inv Invoice
		require.NoError(t, json.NewDecoder(req.Body).Decode(&inv))

		state.creates++
		inv.ID = "inv-1"
		inv.SyncToken = "0"
		state.invoices[inv.DocNumber] = &inv

		json.NewEncoder(w).Encode(invoiceWrapper{Invoice: inv})
	}).Methods(http.MethodPost)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, state
}

func newBooksClient(t *testing.T) (*BooksClient, *fakeBooks) {
	server, state := newFakeBooks(t)

	client := NewBooksClient(
		server.URL, server.URL+"/oauth/token",
		"client-id", "client-secret", "realm-1",
		logger.NewLogger("error"))

	rotated, err := client.Authenticate(context.Background(), "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "new-refresh", rotated, "rotated token is reported for persistence")

	return client, state
}

func TestBooksRefLookups(t *testing.T) {
	client, _ := newBooksClient(t)

	item, err := client.GetItemRef(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, Ref{Value: "2", Name: "name-2"}, item)

	class, err := client.GetClassRef(context.Background(), "1111")
	require.NoError(t, err)
	assert.Equal(t, "1111", class.Value)

	customer, err := client.GetCustomerRef(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, "77", customer.Value)

	term, err := client.GetTermRef(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, "4", term.Value)
}

func TestBooksInvoiceLifecycle(t *testing.T) {
	client, state := newBooksClient(t)

	missing, err := client.FindInvoice(context.Background(), "AAGA1001")
	require.NoError(t, err)
	assert.Nil(t, missing, "no invoice exists yet")

	created, err := client.CreateInvoice(context.Background(), &Invoice{
		DocNumber:   "AAGA1001",
		CustomerRef: Ref{Value: "77"},
		Line: []InvoiceLine{{
			Amount:     decimal.NewFromInt(20),
			DetailType: "SalesItemLineDetail",
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, "inv-1", created.ID)
	assert.Equal(t, 1, state.creates)

	found, err := client.FindInvoice(context.Background(), "AAGA1001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "AAGA1001", found.DocNumber)

	require.NoError(t, client.DeleteInvoice(context.Background(), found))
	assert.Equal(t, []string{"inv-1"}, state.deleted)
}

func TestFindInvoiceEscapesQuotes(t *testing.T) {
	client, state := newBooksClient(t)

	missing, err := client.FindInvoice(context.Background(), "O'BRIEN1001")

	require.NoError(t, err)
	assert.Nil(t, missing)

	require.Len(t, state.queries, 1)
	assert.Equal(t, "SELECT * FROM Invoice WHERE DocNumber = 'O''BRIEN1001'", state.queries[0])
}
