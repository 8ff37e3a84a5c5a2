package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/go-playground/form/v4"
)

// API is the REST collaborator of the facture page. The cookie jar carries
// the session cookie, so the export request is authorized the same way the
// regular API calls are.
type API struct {
	// BaseURL is the backend root, e.g. "https://admin.example.fr".
	BaseURL string
	// ZipBase is the root of the export endpoints. Defaults to
	// BaseURL + "/export" when empty.
	ZipBase string

	httpClient *http.Client
}

var queryEncoder = form.NewEncoder()

// NewAPI builds an API client with a fresh cookie jar.
func NewAPI(baseURL string) *API {
	jar, _ := cookiejar.New(nil)
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Jar: jar,
			// no overall timeout, the progress stream and the
			// archive download are long-lived
		},
	}
}

func (a *API) zipBase() string {
	if a.ZipBase != "" {
		return strings.TrimRight(a.ZipBase, "/")
	}
	return a.BaseURL + "/export"
}

func (a *API) client() *http.Client {
	if a.httpClient == nil {
		a.httpClient = &http.Client{}
	}
	return a.httpClient
}

func (a *API) doJSON(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login authenticates the session; the cookie jar keeps the session cookie
// for every later call.
func (a *API) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return a.doJSON(ctx, http.MethodPost, a.BaseURL+"/login", body, nil)
}

// FetchFactures loads the full collection.
func (a *API) FetchFactures(ctx context.Context) ([]Facture, error) {
	var out struct {
		Factures []Facture `json:"factures"`
	}
	if err := a.doJSON(ctx, http.MethodGet, a.BaseURL+"/factures", nil, &out); err != nil {
		return nil, err
	}
	return out.Factures, nil
}

// GetCounter reads the year counter.
func (a *API) GetCounter(ctx context.Context, year int) (Counter, error) {
	var c Counter
	url := fmt.Sprintf("%s/factures/counter/%d", a.BaseURL, year)
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &c); err != nil {
		return Counter{}, err
	}
	return c, nil
}

// SetCounter persists a manual counter override.
func (a *API) SetCounter(ctx context.Context, year, seq int) error {
	url := fmt.Sprintf("%s/factures/counter/%d", a.BaseURL, year)
	return a.doJSON(ctx, http.MethodPut, url, map[string]int{"seq": seq}, nil)
}

// UpdateStatus persists a single facture's status change.
func (a *API) UpdateStatus(ctx context.Context, id uint, status string) error {
	url := fmt.Sprintf("%s/factures/updateStatus/%d", a.BaseURL, id)
	return a.doJSON(ctx, http.MethodPut, url, map[string]string{"status": status}, nil)
}

// DeleteFactures requests deletion and returns the renumbering payload.
// Callers must check Ok: the server reports logical failure in the body,
// not in the HTTP status.
func (a *API) DeleteFactures(ctx context.Context, ids []uint) (*DeleteResponse, error) {
	var out DeleteResponse
	err := a.doJSON(ctx, http.MethodPost, a.BaseURL+"/factures/delete",
		map[string][]uint{"ids": ids}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadPDF fetches one facture's rendered PDF by reference. The caller
// owns the returned reader.
func (a *API) DownloadPDF(ctx context.Context, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/pdf/invoice/"+ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download pdf %s: status %d", ref, resp.StatusCode)
	}
	return resp.Body, nil
}

type zipQuery struct {
	Month      string `form:"month"`
	Status     string `form:"status,omitempty"`
	ProgressID string `form:"progressId"`
}

// errBodyLimit bounds how much of an error body is read for diagnostics.
const errBodyLimit = 512

// RequestZip asks the server to build the monthly archive. On success it
// returns the suggested filename (from Content-Disposition, with a
// synthesized fallback) and the archive body; the caller owns the reader.
func (a *API) RequestZip(ctx context.Context, month, status, progressID string) (string, io.ReadCloser, error) {
	vals, err := queryEncoder.Encode(&zipQuery{Month: month, Status: status, ProgressID: progressID})
	if err != nil {
		return "", nil, err
	}
	url := a.zipBase() + "/invoices/zip?" + vals.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		resp.Body.Close()
		return "", nil, fmt.Errorf("export zip: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	filename := "FACTURES-" + month + ".zip"
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				filename = name
			}
		}
	}
	return filename, resp.Body, nil
}
