package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"

	"github.com/angeloszaimis/failover/internal/endpoint"
	"github.com/angeloszaimis/failover/internal/failover"
	"github.com/angeloszaimis/failover/internal/transport"
)

type attempt struct {
	endpoint endpoint.Endpoint
	status   int
	err      bool
}

type recordingObserver struct {
	mutex    sync.Mutex
	attempts []attempt
}

func (o *recordingObserver) ObserveAttempt(e endpoint.Endpoint, statusCode int, _ time.Duration, err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.attempts = append(o.attempts, attempt{endpoint: e, status: statusCode, err: err != nil})
}

// backend is a test server that answers with a fixed status and echoes the
// request body.
type backend struct {
	server *httptest.Server
	status atomic.Int32
	hits   atomic.Int32
	bodies chan string
}

func newBackend(status int) *backend {
	b := &backend{bodies: make(chan string, 16)}
	b.status.Store(int32(status))
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		select {
		case b.bodies <- r.Method + " " + r.URL.RequestURI() + " " + string(body):
		default:
		}
		w.WriteHeader(int(b.status.Load()))
		w.Write([]byte(b.server.URL))
	}))
	return b
}

func (b *backend) endpoint() endpoint.Endpoint {
	return endpoint.FromURL(mustParseURL(b.server.URL))
}

func deadEndpoint() endpoint.Endpoint {
	srv := httptest.NewServer(http.NotFoundHandler())
	e := endpoint.FromURL(mustParseURL(srv.URL))
	srv.Close()
	return e
}

func newRequest(ctx context.Context, method string, target endpoint.Endpoint, body io.Reader) *http.Request {
	req, err := http.NewRequestWithContext(ctx, method, "http://"+target.String()+"/v1/kv/app?recurse=true", body)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("X-Consul-Token", "secret")
	return req
}

var _ = Describe("Transport", func() {
	var (
		healthy  *backend
		failing  *backend
		observer *recordingObserver
	)

	BeforeEach(func() {
		healthy = newBackend(http.StatusOK)
		failing = newBackend(http.StatusInternalServerError)
		observer = &recordingObserver{}
	})

	AfterEach(func() {
		healthy.server.Close()
		failing.server.Close()
	})

	newTransport := func(maxAttempts int, cooldown time.Duration, targets ...endpoint.Endpoint) (*transport.Transport, *failover.Decider) {
		decider := failover.New(targets, cooldown)
		return transport.New(transport.Options{
			Decider:     decider,
			MaxAttempts: maxAttempts,
			Observer:    observer,
		}), decider
	}

	It("should return a successful response from the first endpoint", func() {
		t, decider := newTransport(3, time.Minute, healthy.endpoint(), failing.endpoint())

		resp, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, healthy.endpoint(), nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decider.IsBlacklisted(healthy.endpoint())).To(BeFalse())
		Expect(observer.attempts).To(HaveLen(1))
	})

	It("should fail over from a failing endpoint to the next in pool order", func() {
		t, decider := newTransport(3, time.Minute, failing.endpoint(), healthy.endpoint())

		resp, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, failing.endpoint(), nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal(healthy.server.URL))
		Expect(decider.IsBlacklisted(failing.endpoint())).To(BeTrue())
		Expect(observer.attempts).To(Equal([]attempt{
			{endpoint: failing.endpoint(), status: http.StatusInternalServerError},
			{endpoint: healthy.endpoint(), status: http.StatusOK},
		}))
	})

	It("should preserve method, path, query and body across failover", func() {
		t, _ := newTransport(3, time.Minute, failing.endpoint(), healthy.endpoint())

		req := newRequest(context.Background(), http.MethodPut, failing.endpoint(), strings.NewReader(`{"key":"value"}`))
		resp, err := t.RoundTrip(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(<-healthy.bodies).To(Equal(`PUT /v1/kv/app?recurse=true {"key":"value"}`))
	})

	It("should buffer bodies that cannot be reopened", func() {
		t, _ := newTransport(3, time.Minute, failing.endpoint(), healthy.endpoint())

		req := newRequest(context.Background(), http.MethodPost, failing.endpoint(), io.NopCloser(strings.NewReader("opaque")))
		Expect(req.GetBody).To(BeNil())

		resp, err := t.RoundTrip(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(<-failing.bodies).To(HaveSuffix(" opaque"))
		Expect(<-healthy.bodies).To(HaveSuffix(" opaque"))
	})

	It("should blacklist endpoints that cannot be reached", func() {
		dead := deadEndpoint()
		t, decider := newTransport(3, time.Minute, dead, healthy.endpoint())

		resp, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, dead, nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decider.IsBlacklisted(dead)).To(BeTrue())
		Expect(observer.attempts[0].err).To(BeTrue())
	})

	It("should pass a 404 through without failing over", func() {
		notFound := newBackend(http.StatusNotFound)
		defer notFound.server.Close()

		t, decider := newTransport(3, time.Minute, notFound.endpoint(), healthy.endpoint())

		resp, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, notFound.endpoint(), nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(decider.IsBlacklisted(notFound.endpoint())).To(BeFalse())
		Expect(healthy.hits.Load()).To(BeZero())
	})

	It("should report exhaustion when every endpoint fails", func() {
		other := newBackend(http.StatusBadGateway)
		defer other.server.Close()

		t, _ := newTransport(10, time.Minute, failing.endpoint(), other.endpoint())

		resp, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, failing.endpoint(), nil))
		Expect(err).To(MatchError(transport.ErrExhausted))
		Expect(resp).To(BeNil())
		Expect(failing.hits.Load()).To(Equal(int32(1)))
		Expect(other.hits.Load()).To(Equal(int32(1)))
	})

	It("should return the last response once the attempt limit is reached", func() {
		t, _ := newTransport(3, 0, failing.endpoint())

		resp, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, failing.endpoint(), nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(failing.hits.Load()).To(Equal(int32(3)))
	})

	It("should fail with too many attempts when the last attempt had no response", func() {
		dead := deadEndpoint()
		t, _ := newTransport(2, 0, dead)

		_, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, dead, nil))
		Expect(err).To(MatchError(transport.ErrTooManyAttempts))
		Expect(observer.attempts).To(HaveLen(2))
	})

	It("should reject requests when the pool is empty", func() {
		t, _ := newTransport(3, time.Minute)

		_, err := t.RoundTrip(newRequest(context.Background(), http.MethodGet, healthy.endpoint(), nil))
		Expect(err).To(MatchError(transport.ErrNoViableTarget))
		Expect(healthy.hits.Load()).To(BeZero())
	})

	It("should stop retrying when the context is cancelled while waiting for budget", func() {
		decider := failover.New([]endpoint.Endpoint{failing.endpoint(), healthy.endpoint()}, time.Minute)
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		limiter.Allow()

		t := transport.New(transport.Options{
			Decider:      decider,
			MaxAttempts:  3,
			RetryLimiter: limiter,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := t.RoundTrip(newRequest(ctx, http.MethodGet, failing.endpoint(), nil))
		Expect(err).To(HaveOccurred())
		Expect(healthy.hits.Load()).To(BeZero())
	})

	It("should not blame the endpoint when the caller cancels", func() {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer slow.Close()

		target := endpoint.FromURL(mustParseURL(slow.URL))
		t, decider := newTransport(3, time.Minute, target)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := t.RoundTrip(newRequest(ctx, http.MethodGet, target, nil))
		Expect(err).To(HaveOccurred())
		Expect(decider.IsBlacklisted(target)).To(BeFalse())
	})
})

var _ = Describe("Request", func() {
	It("should resolve the endpoint from the URL", func() {
		req, _ := http.NewRequest(http.MethodGet, "https://consul.example.com/v1/status/leader", nil)
		Expect(transport.NewRequest(req).Endpoint()).To(Equal(endpoint.New("consul.example.com", 443)))
	})

	It("should clone onto another endpoint without touching the original", func() {
		req, _ := http.NewRequest(http.MethodPost, "http://a:8500/v1/txn?dc=east", strings.NewReader("ops"))
		req.Header.Set("X-Consul-Token", "secret")

		next := transport.NewRequest(req).WithEndpoint(endpoint.New("b", 8501)).(*transport.Request).HTTPRequest()

		Expect(next.URL.String()).To(Equal("http://b:8501/v1/txn?dc=east"))
		Expect(next.Host).To(Equal("b:8501"))
		Expect(next.Method).To(Equal(http.MethodPost))
		Expect(next.Header.Get("X-Consul-Token")).To(Equal("secret"))
		body, _ := io.ReadAll(next.Body)
		Expect(string(body)).To(Equal("ops"))

		Expect(req.URL.Host).To(Equal("a:8500"))
	})
})

var _ = Describe("Response", func() {
	It("should map a nil response to no response", func() {
		Expect(transport.NewResponse(nil)).To(BeNil())
	})

	DescribeTable("success classification",
		func(code int, successful bool) {
			resp := transport.NewResponse(&http.Response{StatusCode: code})
			Expect(resp.Successful()).To(Equal(successful))
			Expect(resp.StatusCode()).To(Equal(code))
		},
		Entry("200", 200, true),
		Entry("299", 299, true),
		Entry("304", 304, false),
		Entry("404", 404, false),
		Entry("500", 500, false),
	)
})

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}
