package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Sternrassler/stat-client/internal/testutil"
	"github.com/Sternrassler/stat-client/pkg/client"
	"github.com/Sternrassler/stat-client/pkg/request"
)

const (
	testBase = "http://stat.test/api/v2"
	testKey  = "KEY"
)

// stubFetcher answers page requests from a URL-keyed table.
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]*client.Response
	errs      map[string]error
	calls     []string
}

func newStub() *stubFetcher {
	return &stubFetcher{
		responses: make(map[string]*client.Response),
		errs:      make(map[string]error),
	}
}

func (s *stubFetcher) page(url string, status int, body string) {
	s.responses[url] = &client.Response{StatusCode: status, Body: []byte(body)}
}

func (s *stubFetcher) Do(_ context.Context, pr request.PageRequest) (*client.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, pr.URL)
	if err, ok := s.errs[pr.URL]; ok {
		return nil, err
	}
	if resp, ok := s.responses[pr.URL]; ok {
		return resp, nil
	}
	return &client.Response{StatusCode: 404}, nil
}

func newTestPager(t *testing.T, f Fetcher, cfg Config) *Pager {
	t.Helper()
	b, err := request.NewBuilder(testBase, testKey)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return NewPager(f, b, cfg)
}

func records(ids ...int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf(`{"Id":"%d"}`, id)
	}
	return out
}

func ids(t *testing.T, recs []RawRecord) []string {
	t.Helper()
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r["Id"].(string)
	}
	return out
}

const firstURL = testBase + "/" + testKey + "/keywords/list?format=json&start=0&results=2&site_id=1"

func TestPager_TwoPagesPlusOne(t *testing.T) {
	mock := testutil.NewMockSTAT(testKey)
	defer mock.Close()
	mock.SetPaged("/keywords/list", records(1, 2, 3), 2)

	c, err := client.New(client.Config{UserAgent: "test"})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	b, _ := request.NewBuilder(mock.URL(), testKey)
	pager := NewPager(c, b, DefaultConfig())

	res, err := pager.FetchPages(context.Background(), request.Keywords("1").WithPage(0, 2))
	if err != nil {
		t.Fatalf("FetchPages() error = %v", err)
	}

	if got := strings.Join(ids(t, res.Records), ","); got != "1,2,3" {
		t.Errorf("records = %s, want 1,2,3", got)
	}
	if res.Pages != 2 {
		t.Errorf("Pages = %d, want 2", res.Pages)
	}
	if res.Rejection != nil {
		t.Errorf("Rejection = %+v, want nil", res.Rejection)
	}

	reqs := mock.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %v, want 2", reqs)
	}
	if want := "/" + testKey + "/keywords/list?format=json&start=0&results=2&site_id=1"; reqs[0] != want {
		t.Errorf("first request = %q, want %q", reqs[0], want)
	}
	if !strings.Contains(reqs[1], "start=2") {
		t.Errorf("second request = %q, want start=2", reqs[1])
	}
}

func TestPager_ManyPagesKeepOrder(t *testing.T) {
	stub := newStub()
	const pages = 7
	url := firstURL
	for p := 0; p < pages; p++ {
		next := ""
		if p < pages-1 {
			next = fmt.Sprintf("/keywords/list?start=%d", (p+1)*2)
		}
		stub.page(url, 200, testutil.Envelope(records(p*2, p*2+1), next))
		url = testBase + "/" + testKey + next
	}

	pager := newTestPager(t, stub, DefaultConfig())
	recs, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != pages*2 {
		t.Fatalf("len = %d, want %d", len(recs), pages*2)
	}
	for i, id := range ids(t, recs) {
		if id != fmt.Sprint(i) {
			t.Errorf("record %d has Id %s", i, id)
		}
	}
}

func TestPager_FirstPageRejected(t *testing.T) {
	stub := newStub()
	stub.page(firstURL, 403, `{"Response":{"Error":"forbidden"}}`)

	pager := newTestPager(t, stub, DefaultConfig())
	res, err := pager.FetchPages(context.Background(), request.Keywords("1").WithPage(0, 2))
	if err != nil {
		t.Fatalf("FetchPages() error = %v, want nil", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("records = %v, want empty", res.Records)
	}
	if res.Rejection == nil || res.Rejection.StatusCode != 403 || res.Rejection.Page != 1 {
		t.Errorf("Rejection = %+v, want status 403 on page 1", res.Rejection)
	}
}

func TestPager_MidSessionRejectionKeepsPartial(t *testing.T) {
	stub := newStub()
	stub.page(firstURL, 200, testutil.Envelope(records(1, 2), "/keywords/list?start=2"))
	stub.page(testBase+"/"+testKey+"/keywords/list?start=2", 500, "oops")

	pager := newTestPager(t, stub, DefaultConfig())
	recs, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := strings.Join(ids(t, recs), ","); got != "1,2" {
		t.Errorf("records = %s, want 1,2", got)
	}
}

func TestPager_RepeatedContinuation(t *testing.T) {
	stub := newStub()
	stub.page(firstURL, 200, testutil.Envelope(records(1), "/keywords/list?start=1"))
	stub.page(testBase+"/"+testKey+"/keywords/list?start=1", 200, testutil.Envelope(records(2), "/keywords/list?start=1"))

	pager := newTestPager(t, stub, DefaultConfig())
	_, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
	if !errors.Is(err, ErrUnboundedPagination) {
		t.Fatalf("Fetch() error = %v, want ErrUnboundedPagination", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Page != 3 {
		t.Errorf("error = %#v, want page 3", perr)
	}
	if len(stub.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(stub.calls))
	}
}

func TestPager_MaxPages(t *testing.T) {
	stub := newStub()
	url := firstURL
	for p := 1; p <= 5; p++ {
		next := fmt.Sprintf("/keywords/list?start=%d", p)
		stub.page(url, 200, testutil.Envelope(records(p), next))
		url = testBase + "/" + testKey + next
	}

	pager := newTestPager(t, stub, Config{MaxPages: 3})
	_, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
	if !errors.Is(err, ErrUnboundedPagination) {
		t.Fatalf("Fetch() error = %v, want ErrUnboundedPagination", err)
	}
	if len(stub.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(stub.calls))
	}
}

func TestPager_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>maintenance</html>"},
		{"missing Response", `{"Other":{}}`},
		{"missing Result", `{"Response":{"responsecode":"200"}}`},
		{"scalar items", `{"Response":{"Result":[1,2]}}`},
		{"null item", `{"Response":{"Result":[null]}}`},
		{"numeric nextpage", `{"Response":{"Result":[],"nextpage":5}}`},
		{"absolute nextpage", `{"Response":{"Result":[],"nextpage":"http://evil.test/x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			stub.page(firstURL, 200, tt.body)

			pager := newTestPager(t, stub, DefaultConfig())
			_, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Fetch() error = %v, want ErrMalformedPayload", err)
			}
			if err != nil && strings.Contains(err.Error(), "/"+testKey+"/") {
				t.Errorf("error leaks api key: %v", err)
			}
		})
	}
}

func TestPager_ResultShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"single object", `{"Response":{"Result":{"Id":"9"}}}`, 1},
		{"null result", `{"Response":{"Result":null}}`, 0},
		{"empty list", `{"Response":{"Result":[]}}`, 0},
		{"null nextpage", `{"Response":{"Result":[{"Id":"1"}],"nextpage":null}}`, 1},
		{"empty nextpage", `{"Response":{"Result":[{"Id":"1"}],"nextpage":""}}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			stub.page(firstURL, 200, tt.body)

			pager := newTestPager(t, stub, DefaultConfig())
			recs, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(recs) != tt.want {
				t.Errorf("len = %d, want %d", len(recs), tt.want)
			}
		})
	}
}

func TestPager_NumbersKeptExact(t *testing.T) {
	stub := newStub()
	stub.page(firstURL, 200, `{"Response":{"Result":[{"Id":12345678901234567890}]}}`)

	pager := newTestPager(t, stub, DefaultConfig())
	recs, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	n, ok := recs[0]["Id"].(json.Number)
	if !ok || n.String() != "12345678901234567890" {
		t.Errorf("Id = %#v, want exact json.Number", recs[0]["Id"])
	}
}

func TestPager_TransportFailure(t *testing.T) {
	stub := newStub()
	cause := errors.New("connection refused")
	stub.errs[firstURL] = cause

	pager := newTestPager(t, stub, DefaultConfig())
	_, err := pager.Fetch(context.Background(), request.Keywords("1").WithPage(0, 2))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Fetch() error = %v, want ErrTransport", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Fetch() error = %v, want cause wrapped", err)
	}
}

func TestPager_ContextCancelled(t *testing.T) {
	stub := newStub()
	stub.page(firstURL, 200, testutil.Envelope(records(1), ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pager := newTestPager(t, stub, DefaultConfig())
	_, err := pager.Fetch(ctx, request.Keywords("1").WithPage(0, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
	if len(stub.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(stub.calls))
	}
}

func TestPager_BuildError(t *testing.T) {
	pager := newTestPager(t, newStub(), DefaultConfig())
	_, err := pager.Fetch(context.Background(), request.Keywords(""))
	if !errors.Is(err, request.ErrMissingScope) {
		t.Errorf("Fetch() error = %v, want ErrMissingScope", err)
	}
}

func TestPager_FetchRaw(t *testing.T) {
	stub := newStub()
	projects := testBase + "/" + testKey + "/projects/list?format=json&start=0&results=1000"
	stub.page(projects, 200, `{"Response":{"responsecode":"200","Result":[{"Id":"1","Name":"P"}],"nextpage":"/projects/list?start=1000"}}`)

	pager := newTestPager(t, stub, DefaultConfig())
	env, err := pager.FetchRaw(context.Background(), request.Projects())
	if err != nil {
		t.Fatalf("FetchRaw() error = %v", err)
	}
	resp, ok := env["Response"].(map[string]any)
	if !ok {
		t.Fatalf("envelope = %#v, want Response object", env)
	}
	if resp["nextpage"] != "/projects/list?start=1000" {
		t.Errorf("nextpage = %v, want it left verbatim", resp["nextpage"])
	}
	if len(stub.calls) != 1 {
		t.Errorf("calls = %d, want 1 (raw mode does not paginate)", len(stub.calls))
	}

	rejected := newStub()
	rejected.page(projects, 401, "")
	env, err = newTestPager(t, rejected, DefaultConfig()).FetchRaw(context.Background(), request.Projects())
	if err != nil || env != nil {
		t.Errorf("FetchRaw() = %v, %v; want nil, nil", env, err)
	}
}
