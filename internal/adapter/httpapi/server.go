package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/gorilla/mux"
)

const (
	defaultPage         = 1
	defaultLimit        = 10
	defaultMaxBatchSize = 100
	maxBodyBytes        = 1 << 20
)

type OrderCreator interface {
	Execute(ctx context.Context, reqs []domain.NewOrderRequest) (domain.DispatchResult, error)
}

type OrderLister interface {
	Execute(ctx context.Context, f domain.OrderFilter) (domain.OrderPage, error)
}

type OrderGetter interface {
	Execute(ctx context.Context, id string) (domain.Order, bool, error)
}

type StatusLister interface {
	Execute(ctx context.Context) ([]domain.Status, error)
}

// Options tunes request limits and logging.
type Options struct {
	MaxBatchSize int
	Logger       *slog.Logger
	Now          func() time.Time
}

type Server struct {
	Router     *mux.Router
	UCCreate   OrderCreator
	UCList     OrderLister
	UCGet      OrderGetter
	UCStatuses StatusLister

	maxBatchSize int
	logger       *slog.Logger
	now          func() time.Time
}

func NewServer(create OrderCreator, list OrderLister, get OrderGetter, statuses StatusLister, opts Options) *Server {
	s := &Server{
		Router:       mux.NewRouter(),
		UCCreate:     create,
		UCList:       list,
		UCGet:        get,
		UCStatuses:   statuses,
		maxBatchSize: opts.MaxBatchSize,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if s.maxBatchSize <= 0 {
		s.maxBatchSize = defaultMaxBatchSize
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.Router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/orders", s.handleCreate).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/orders", s.handleList).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/orders/customer/{customerId}", s.handleListByCustomer).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/orders/{id}", s.handleGet).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/statuses", s.handleStatuses).Methods(http.MethodGet)
	s.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	s.Router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
	return s
}

// Handler is the router wrapped in request logging. Wrapping outside the
// router also covers requests that match no route.
func (s *Server) Handler() http.Handler {
	return RequestLogger(s.logger)(s.Router)
}

type createResponse struct {
	Message  string           `json:"message"`
	Orders   []domain.Order   `json:"orders"`
	Metadata responseMetadata `json:"metadata"`
}

type responseMetadata struct {
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var reqs []domain.NewOrderRequest
	if err := dec.Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "body must be an array of {customerId}")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, codeEmptyBatch, "at least one order is required")
		return
	}
	if len(reqs) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, codeBatchTooLarge, "too many orders in one request")
		return
	}
	for _, req := range reqs {
		if req.CustomerID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "customerId is required")
			return
		}
		if !domain.IsValidID(req.CustomerID) {
			writeError(w, http.StatusBadRequest, codeInvalidCustomerID, "customerId must be a UUID")
			return
		}
	}

	res, err := s.UCCreate.Execute(r.Context(), reqs)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid order batch")
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "Failed to dispatch orders")
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		Message:  res.Message,
		Orders:   res.Orders,
		Metadata: responseMetadata{Timestamp: s.now().UTC()},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	s.writePage(w, r, f)
}

func (s *Server) handleListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["customerId"]
	if !domain.IsValidID(customerID) {
		writeError(w, http.StatusBadRequest, codeInvalidCustomerID, "customerId must be a UUID")
		return
	}
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	f.CustomerID = customerID
	s.writePage(w, r, f)
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, f domain.OrderFilter) {
	page, err := s.UCList.Execute(r.Context(), f)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "list orders", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, ok, err := s.UCGet.Execute(r.Context(), id)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "get order", "order_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.UCStatuses.Execute(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list statuses", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	if statuses == nil {
		statuses = []domain.Status{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// parseFilter reads page, limit and statusId; it writes the 400 itself.
func parseFilter(w http.ResponseWriter, r *http.Request) (domain.OrderFilter, bool) {
	q := r.URL.Query()
	f := domain.OrderFilter{Page: defaultPage, Limit: defaultLimit}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &f.Page},
		{"limit", &f.Limit},
		{"statusId", &f.StatusID},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, p.name+" must be a positive integer")
			return domain.OrderFilter{}, false
		}
		*p.dst = n
	}
	return f, true
}
