package issue

import (
	"bytes"
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slotca/issuer"
	"slotca/pkg/helper"
	"slotca/pkg/helper/x509x"
	"slotca/pkg/testutils"
	"slotca/sigfmt"
	"slotca/signer"
	"slotca/store"
)

func newTestServer(ctx context.Context, t *testing.T) (*httptest.Server, *x509.Certificate) {
	testdb := testutils.DBName(t.Name())
	os.RemoveAll(testdb + ".db")

	mem := signer.NewMemory()
	handle := testutils.Must1(mem.Generate("9c", signer.ECDSA, 256))
	pub := testutils.Must1(mem.Public(handle))

	caCert := testutils.Must1(issuer.New(mem).Issue(ctx, &issuer.Request{
		Subject:   pkix.Name{CommonName: "test root"},
		PublicKey: pub,
		Key:       handle,
		Scheme:    sigfmt.ECDSA,
		Hash:      "SHA256",
		NotBefore: helper.AfterNow(0, -1, 0),
		NotAfter:  helper.AfterNow(10, 0, 0),
		IsCA:      true,
	}, nil))
	parsed := testutils.Must1(x509.ParseCertificate(caCert.Raw))

	endpoint := testutils.Must1(New(Config{
		Signer: mem,
		Store:  store.NewSQL("sqlite://" + testdb + ".db"),
		CACert: parsed,
		CAKey:  handle,
	}))

	ts := httptest.NewServer(testutils.NewEndpointHandler(endpoint))
	go func() {
		<-ctx.Done()
		ts.Close()
		os.RemoveAll(testdb + ".db")
	}()

	return ts, parsed
}

func postJSON(t *testing.T, url string, req interface{}, out interface{}) *http.Response {
	body := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(body).Encode(req))

	resp, err := http.Post(url, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestIssueEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts, caCert := newTestServer(ctx, t)

	_, csrPEM, _, err := x509x.CreateCertificateRequest(&x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: "server.example.com"},
		DNSNames:           []string{"server.example.com"},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	})
	require.NoError(t, err)

	var created CertificateResource
	resp := postJSON(t, ts.URL+"/issue", &IssueRequest{
		CSR:    string(csrPEM),
		Scheme: "ecdsa",
		Hash:   "SHA256",
		Days:   30,
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NotEmpty(t, created.ID)
	require.Equal(t, "server.example.com", created.CommonName)
	require.NotEmpty(t, created.Fingerprint)

	cert, err := x509x.ParseCertificate([]byte(created.Certificate))
	require.NoError(t, err)
	require.NoError(t, cert.CheckSignatureFrom(caCert))
	require.Equal(t, created.Serial, cert.SerialNumber.String())
	require.WithinDuration(t, time.Now().AddDate(0, 0, 30), cert.NotAfter, time.Minute)

	t.Run("get", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/certs/" + created.ID)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got CertificateResource
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Equal(t, created.Fingerprint, got.Fingerprint)
	})

	t.Run("list by serial", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/certs?serial=" + created.Serial)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got CertificateList
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got.Items, 1)
		require.Equal(t, created.ID, got.Items[0].ID)
	})

	t.Run("get not found", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/certs/no-such-id")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestIssueEndpointBadRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts, _ := newTestServer(ctx, t)

	type args struct {
		req *IssueRequest
	}
	tests := [...]struct {
		name     string
		args     args
		wantCode int
	}{
		{`missing csr`, args{&IssueRequest{Scheme: "ecdsa", Hash: "SHA256"}}, http.StatusBadRequest},
		{`garbage csr`, args{&IssueRequest{CSR: "not a csr", Scheme: "ecdsa", Hash: "SHA256"}}, http.StatusBadRequest},
		{`unknown scheme`, args{&IssueRequest{CSR: "x", Scheme: "dsa", Hash: "SHA256"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/issue", tt.args.req, nil)
			require.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}
