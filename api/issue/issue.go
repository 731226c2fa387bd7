package issue

import (
	"crypto/x509"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"
	"gorm.io/gorm"

	"slotca/api/endpoints"
	"slotca/issuer"
	"slotca/pkg/helper"
	"slotca/pkg/helper/x509x"
	"slotca/sigfmt"
	"slotca/signer"
	"slotca/store"
)

// Config issuing authority the endpoint serves
type Config struct {
	Signer signer.Interface `validate:"required"`
	Store  store.Interface  `validate:"required"`

	CACert *x509.Certificate `validate:"required"`
	CAKey  signer.KeyHandle  `validate:"required"`

	Policy *issuer.Policy

	CAIssuersURL string `validate:"omitempty,url"`
	CRLURL       string `validate:"omitempty,url"`
}

type issueAPI struct {
	assembler *issuer.Assembler
	config    Config
}

var _ endpoints.Endpoint = (*issueAPI)(nil)

func New(config Config) (*issueAPI, error) {
	if err := helper.ValidateStruct(&config); err != nil {
		return nil, errors.Wrap(err, "invalid issue endpoint config")
	}

	return &issueAPI{
		assembler: issuer.New(config.Signer),
		config:    config,
	}, nil
}

func (app *issueAPI) PathAndName() (string, string) { return "/v1", "issue handler" }

func (app *issueAPI) Route(e *echo.Group) {
	e.Use(handleError)

	e.POST("/issue", app.issueCertificate)
	e.GET("/certs", app.listCertificate)
	e.GET("/certs/:id", app.getCertificate)
}

func handleError(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err == nil {
			return err
		}

		if _, ok := err.(*echo.HTTPError); ok {
			return err
		}

		code := http.StatusInternalServerError

		switch {
		case errors.Is(err, issuer.ErrInvalidRequest),
			errors.Is(err, sigfmt.ErrUnsupportedAlgorithm),
			errors.Is(err, sigfmt.ErrUnsupportedDigest),
			errors.Is(err, sigfmt.ErrUnsupportedKeySize):
			code = http.StatusBadRequest
		case errors.Is(err, signer.ErrUserDeclined):
			code = http.StatusForbidden
		case errors.Is(err, signer.ErrDeviceUnavailable):
			code = http.StatusServiceUnavailable
		case errors.Is(err, gorm.ErrRecordNotFound):
			code = http.StatusNotFound
		case helper.IsValidationError(err):
			code = http.StatusBadRequest
		default:
			log.Debugf("unhandled err=%T %v", err, err)
		}

		return echo.NewHTTPError(code, err.Error())
	}
}

// IssueRequest certificate issue request
type IssueRequest struct {
	CSR    string `json:"csr" validate:"required"` // PEM encoded
	Scheme string `json:"scheme" validate:"required"`
	Hash   string `json:"hash" validate:"required"`

	NotBefore time.Time `json:"not_before,omitempty"`
	NotAfter  time.Time `json:"not_after,omitempty"`
	Days      int       `json:"days,omitempty"` // used when not_after is zero
}

type CertificateResource struct {
	ID          string    `json:"id,omitempty"`
	Serial      string    `json:"serial"`
	CommonName  string    `json:"common_name"`
	Fingerprint string    `json:"fingerprint"`
	Certificate string    `json:"certificate"` // PEM encoded
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
}

type CertificateList struct {
	Items []*CertificateResource `json:"items"`
}

func (app *issueAPI) issueCertificate(c echo.Context) error {
	var req IssueRequest

	if err := helper.Bind(c, &req); err != nil {
		return err
	}

	csr, err := x509x.ParseCSR([]byte(req.CSR))
	if err != nil {
		return errors.Wrap(issuer.ErrInvalidRequest, err.Error())
	}

	scheme, err := sigfmt.ParseScheme(req.Scheme)
	if err != nil {
		return err
	}

	notBefore := req.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now()
	}

	notAfter := req.NotAfter
	if notAfter.IsZero() {
		days := req.Days
		if days == 0 {
			days = 365
		}
		notAfter = notBefore.AddDate(0, 0, days)
	}

	ctx := c.Request().Context()
	cert, err := app.assembler.Issue(ctx, &issuer.Request{
		CSR:          csr,
		Key:          app.config.CAKey,
		Scheme:       scheme,
		Hash:         req.Hash,
		Policy:       app.config.Policy,
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		CAIssuersURL: app.config.CAIssuersURL,
		CRLURL:       app.config.CRLURL,
	}, app.config.CACert)
	if err != nil {
		return err
	}

	rec, err := app.config.Store.CreateRecord(ctx, &store.Record{
		Serial:      cert.SerialNumber.String(),
		CommonName:  csr.Subject.CommonName,
		Fingerprint: cert.Fingerprint,
		Slot:        app.config.CAKey.Slot,
		DNSNames:    csr.DNSNames,
		Cert:        x509x.EncodeCertificateToPEM(cert.Raw),
		NotBefore:   notBefore,
		NotAfter:    notAfter,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, recordToResource(rec))
}

func (app *issueAPI) listCertificate(c echo.Context) error {
	items, err := app.config.Store.ListRecord(c.Request().Context(), store.RecordListOpt{
		Serial:     c.QueryParam("serial"),
		CommonName: c.QueryParam("cn"),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &CertificateList{
		Items: fx.Map(items, recordToResource),
	})
}

func (app *issueAPI) getCertificate(c echo.Context) error {
	rec, err := app.config.Store.GetRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, recordToResource(rec))
}

func recordToResource(rec *store.Record) *CertificateResource {
	return &CertificateResource{
		ID:          rec.ID,
		Serial:      rec.Serial,
		CommonName:  rec.CommonName,
		Fingerprint: rec.Fingerprint,
		Certificate: string(rec.Cert),
		NotBefore:   rec.NotBefore,
		NotAfter:    rec.NotAfter,
	}
}
