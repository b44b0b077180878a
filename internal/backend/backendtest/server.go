// Package backendtest provides an in-memory storefront backend for tests.
package backendtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/techshop/internal/domain/product"
)

// Request is a request observed by the Server.
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	ContentType   string
	RequestID     string
	Body          string
}

type account struct {
	id       int64
	name     string
	email    string
	password string
	created  time.Time
}

type orderLine struct {
	id        int64
	productID int64
	quantity  int
	price     decimal.Decimal
}

type orderRecord struct {
	id      int64
	userID  int64
	total   decimal.Decimal
	status  string
	created time.Time
	lines   []orderLine
}

// Server is a fake backend speaking the storefront HTTP API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	products []product.Product
	accounts map[string]*account // by email
	tokens   map[string]string   // token -> email
	orders   map[int64][]orderRecord
	failures map[string]int // "METHOD /path" -> status
	block    map[string]chan struct{}
	requests []Request
	nextID   int64
}

// New starts a Server serving products. Call Close when done.
func New(products ...product.Product) *Server {
	s := &Server{
		products: products,
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		orders:   make(map[int64][]orderRecord),
		failures: make(map[string]int),
		block:    make(map[string]chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// SetProducts replaces the catalog.
func (s *Server) SetProducts(products ...product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
}

// AddAccount registers an account directly and returns its token.
func (s *Server) AddAccount(name, email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.addAccountLocked(name, email, password)
	return s.issueTokenLocked(a)
}

// AddOrder records a past order for the account with email.
func (s *Server) AddOrder(email string, created time.Time, items map[int64]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[email]
	if a == nil {
		return
	}
	s.createOrderLocked(a, created, items)
}

// Fail makes every request matching method and path answer with status.
// A status of 0 removes the failure.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = status
}

// Block holds requests matching method and path until the returned function
// is called.
func (s *Server) Block(method, path string) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.block[method+" "+path] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.block, method+" "+path)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns the requests observed so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the observed requests for method and path.
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// OrderCount returns the number of orders recorded for email.
func (s *Server) OrderCount(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[email]
	if a == nil {
		return 0
	}
	return len(s.orders[a.id])
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		RequestID:     r.Header.Get("X-Request-ID"),
		Body:          string(body),
	})
	status, failing := s.failures[key]
	wait := s.block[key]
	s.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-r.Context().Done():
			return
		}
	}
	if failing {
		writeDetail(w, status, "forced failure")
		return
	}

	switch key {
	case "GET /":
		writeJSON(w, http.StatusOK, []byte(`{"status":"ok","message":"TechShop API is running"}`))
	case "GET /products":
		s.listProducts(w)
	case "POST /auth/login":
		s.login(w, body)
	case "POST /auth/register":
		s.register(w, body)
	case "GET /auth/me":
		s.withAccount(w, r, s.me)
	case "PUT /auth/me":
		s.withAccount(w, r, func(w http.ResponseWriter, a *account) { s.updateMe(w, a, body) })
	case "GET /auth/me/activity":
		s.withAccount(w, r, s.activity)
	case "GET /orders/me":
		s.withAccount(w, r, s.listOrders)
	case "POST /orders":
		s.withAccount(w, r, func(w http.ResponseWriter, a *account) { s.placeOrder(w, a, body) })
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
	}
}

func (s *Server) listProducts(w http.ResponseWriter) {
	s.mu.Lock()
	products := s.products
	s.mu.Unlock()

	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(p.ID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("price")
		e.RawStr(p.Price.String())
		e.FieldStart("description")
		e.Str(p.Description)
		e.FieldStart("image")
		e.Str(p.Image)
		e.FieldStart("category")
		e.Str(p.Category)
		e.ObjEnd()
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (s *Server) login(w http.ResponseWriter, body []byte) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	email, password := form.Get("username"), form.Get("password")

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[email]
	if a == nil || a.password != password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	writeToken(w, s.issueTokenLocked(a))
}

func (s *Server) register(w http.ResponseWriter, body []byte) {
	fields, err := decodeFields(body)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[fields["email"]]; ok {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	a := s.addAccountLocked(fields["name"], fields["email"], fields["password"])
	writeToken(w, s.issueTokenLocked(a))
}

func (s *Server) withAccount(w http.ResponseWriter, r *http.Request, fn func(http.ResponseWriter, *account)) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	email := s.tokens[token]
	a := s.accounts[email]
	s.mu.Unlock()
	if !ok || a == nil {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	fn(w, a)
}

func (s *Server) me(w http.ResponseWriter, a *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeUser(w, a)
}

func (s *Server) updateMe(w http.ResponseWriter, a *account, body []byte) {
	fields, err := decodeFields(body)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v := fields["name"]; v != "" {
		a.name = v
	}
	if v := fields["email"]; v != "" && v != a.email {
		delete(s.accounts, a.email)
		for t, e := range s.tokens {
			if e == a.email {
				s.tokens[t] = v
			}
		}
		a.email = v
		s.accounts[v] = a
	}
	if v := fields["password"]; v != "" {
		a.password = v
	}
	writeUser(w, a)
}

func (s *Server) activity(w http.ResponseWriter, a *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := s.orders[a.id]

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("total_orders")
	e.Int(len(orders))
	e.FieldStart("last_order_date")
	if len(orders) > 0 {
		e.Str(formatTime(orders[0].created))
	} else {
		e.Null()
	}
	e.FieldStart("account_created")
	e.Str(formatTime(a.created))
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (s *Server) listOrders(w http.ResponseWriter, a *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e jx.Encoder
	e.ArrStart()
	for _, o := range s.orders[a.id] {
		encodeOrder(&e, o)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (s *Server) placeOrder(w http.ResponseWriter, a *account, body []byte) {
	items := make(map[int64]int)
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var id int64
			var qty int
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "product_id":
					id, err = d.Int64()
				case "quantity":
					qty, err = d.Int()
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			items[id] += qty
			return nil
		})
	})
	if err != nil || len(items) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid order")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.createOrderLocked(a, time.Now().UTC(), items)
	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (s *Server) addAccountLocked(name, email, password string) *account {
	s.nextID++
	a := &account{
		id:       s.nextID,
		name:     name,
		email:    email,
		password: password,
		created:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	s.accounts[email] = a
	return a
}

func (s *Server) issueTokenLocked(a *account) string {
	s.nextID++
	token := fmt.Sprintf("token-%d-%d", a.id, s.nextID)
	s.tokens[token] = a.email
	return token
}

// createOrderLocked prepends the order so the newest comes first.
func (s *Server) createOrderLocked(a *account, created time.Time, items map[int64]int) orderRecord {
	s.nextID++
	o := orderRecord{
		id:      s.nextID,
		userID:  a.id,
		total:   decimal.Zero,
		status:  "pending",
		created: created,
	}
	for _, p := range s.products {
		qty, ok := items[p.ID]
		if !ok {
			continue
		}
		s.nextID++
		o.lines = append(o.lines, orderLine{id: s.nextID, productID: p.ID, quantity: qty, price: p.Price})
		o.total = o.total.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	s.orders[a.id] = append([]orderRecord{o}, s.orders[a.id]...)
	return o
}

func encodeOrder(e *jx.Encoder, o orderRecord) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.id)
	e.FieldStart("user_id")
	e.Int64(o.userID)
	e.FieldStart("total_price")
	e.RawStr(o.total.String())
	e.FieldStart("status")
	e.Str(o.status)
	e.FieldStart("created_at")
	e.Str(formatTime(o.created))
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(l.id)
		e.FieldStart("product_id")
		e.Int64(l.productID)
		e.FieldStart("quantity")
		e.Int(l.quantity)
		e.FieldStart("price")
		e.RawStr(l.price.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// formatTime mimics the naive ISO timestamps of the real backend.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}

func decodeFields(body []byte) (map[string]string, error) {
	fields := make(map[string]string)
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		fields[key] = v
		return err
	})
	return fields, err
}

func writeUser(w http.ResponseWriter, a *account) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(a.id)
	e.FieldStart("email")
	e.Str(a.email)
	e.FieldStart("name")
	e.Str(a.name)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func writeToken(w http.ResponseWriter, token string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("access_token")
	e.Str(token)
	e.FieldStart("token_type")
	e.Str("bearer")
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("detail")
	e.Str(detail)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
