package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"autorenew/internal/auth"
	"autorenew/internal/devnet"
	"autorenew/internal/domain"
	"autorenew/internal/host"
	"autorenew/internal/msg"
	"autorenew/internal/schedule"
)

// Backend is the execution host as seen by the API.
type Backend interface {
	Instantiate(ctx context.Context, sender domain.Addr, in msg.InstantiateMsg) (*host.Result, error)
	Execute(ctx context.Context, sender domain.Addr, funds []domain.Coin, in msg.ExecuteMsg) (*host.Result, error)
	Query(ctx context.Context, in msg.QueryMsg) (json.RawMessage, error)
	QueryJSON(ctx context.Context, raw []byte) (json.RawMessage, error)
	Stats() host.Stats
}

// TaskView lists scheduler-side task state; only the devnet provides one.
type TaskView interface {
	Tasks() []devnet.TaskInfo
}

type Options struct {
	Debug bool
	Tasks TaskView
	// Auth authenticates every state-changing route. Nil rejects them all.
	Auth *auth.Authenticator
}

type Server struct {
	r       *chi.Mux
	backend Backend
	tasks   TaskView
	valid   *validator.Validate
	started time.Time
}

func NewServer(backend Backend, o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, backend: backend, tasks: o.Tasks, valid: validator.New(), started: time.Now()}
	authn := o.Auth
	if authn == nil {
		authn = auth.New(auth.Options{})
	}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.query)
		r.Get("/config", s.getConfig)
		r.Get("/count", s.getCount)
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)
		r.Get("/names/{name}", s.resolveName)
		r.Get("/default-ids/{address}", s.getDefaultID)
		r.Get("/schedule/next", s.nextRuns)
		if s.tasks != nil {
			r.Get("/scheduler/tasks", s.schedulerTasks)
		}

		// the caller of everything below is the authenticated principal
		r.Group(func(r chi.Router) {
			r.Use(authn.Middleware)
			r.Post("/instantiate", s.instantiate)
			r.Post("/execute", s.execute)
			r.Post("/count/increment", s.increment)
			r.Post("/tasks", s.createTask)
			r.Post("/tasks/{id}/renew", s.renewTask)
			r.Post("/domains", s.registerDomain)
			r.Put("/default-ids", s.setDefaultID)
		})
	})

	if o.Debug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		r.Handle("/debug/pprof/block", pprof.Handler("block"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	st := s.backend.Stats()
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "autorenew_up 1\n")
	fmt.Fprintf(w, "autorenew_uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))
	fmt.Fprintf(w, "autorenew_requests_total{outcome=\"executed\"} %d\n", st.Executed)
	fmt.Fprintf(w, "autorenew_requests_total{outcome=\"rejected\"} %d\n", st.Rejected)
	fmt.Fprintf(w, "autorenew_requests_total{outcome=\"failed\"} %d\n", st.Failed)
	fmt.Fprintf(w, "autorenew_queries_total %d\n", st.Queries)
	fmt.Fprintf(w, "autorenew_orphaned_dispatch_total %d\n", st.Orphaned)
}

// instantiate takes the instantiate message itself as the body.
func (s *Server) instantiate(w http.ResponseWriter, r *http.Request) {
	p, ok := requireRole(w, r, auth.RoleOperator)
	if !ok {
		return
	}
	var in msg.InstantiateMsg
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.backend.Instantiate(r.Context(), p.Address, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type executeReq struct {
	Funds []domain.Coin   `json:"funds"`
	Msg   json.RawMessage `json:"msg" validate:"required"`
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var req executeReq
	if !s.decode(w, r, &req) {
		return
	}
	var in msg.ExecuteMsg
	if err := msg.Decode(req.Msg, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.RenewDomain != nil {
		if _, ok := requireRole(w, r, auth.RoleScheduler); !ok {
			return
		}
	}
	s.runExecute(w, r, callerOf(r), req.Funds, in, http.StatusOK)
}

// query takes the query message itself as the body.
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeQuery(w, r, func(ctx context.Context) (json.RawMessage, error) { return s.backend.QueryJSON(ctx, raw) })
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, msg.QueryMsg{Config: &msg.Empty{}})
}

func (s *Server) getCount(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, msg.QueryMsg{Count: &msg.Empty{}})
}

func (s *Server) increment(w http.ResponseWriter, r *http.Request) {
	s.runExecute(w, r, callerOf(r), nil, msg.ExecuteMsg{Increment: &msg.Empty{}}, http.StatusOK)
}

type createTaskReq struct {
	Frequency  string `json:"frequency" validate:"required"`
	DomainName string `json:"domain_name" validate:"required"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskReq
	if !s.decode(w, r, &req) {
		return
	}
	in := msg.ExecuteMsg{CreateAutoRenewalTask: &msg.CreateAutoRenewalTaskMsg{Frequency: req.Frequency, DomainName: req.DomainName}}
	s.runExecute(w, r, callerOf(r), nil, in, http.StatusCreated)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var q msg.TasksQuery
	if v := r.URL.Query().Get("start_after"); v != "" {
		id, err := domain.ParseTag(v)
		if err != nil {
			http.Error(w, "invalid start_after", http.StatusBadRequest)
			return
		}
		q.StartAfter = &id
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit := uint32(n)
		q.Limit = &limit
	}
	s.runQuery(w, r, msg.QueryMsg{Tasks: &q})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDOf(w, r)
	if !ok {
		return
	}
	s.runQuery(w, r, msg.QueryMsg{Task: &msg.TaskQuery{TaskID: id}})
}

// renewTask is the trigger route for scheduler agents. The module still
// checks the agent address against the executor on record.
func (s *Server) renewTask(w http.ResponseWriter, r *http.Request) {
	p, ok := requireRole(w, r, auth.RoleScheduler)
	if !ok {
		return
	}
	id, ok := taskIDOf(w, r)
	if !ok {
		return
	}
	s.runExecute(w, r, p.Address, nil, msg.ExecuteMsg{RenewDomain: &msg.RenewDomainMsg{TaskID: id}}, http.StatusOK)
}

type registerDomainReq struct {
	Name    string        `json:"name" validate:"required"`
	Proxied bool          `json:"proxied"`
	Funds   []domain.Coin `json:"funds"`
}

func (s *Server) registerDomain(w http.ResponseWriter, r *http.Request) {
	var req registerDomainReq
	if !s.decode(w, r, &req) {
		return
	}
	body := &msg.RegisterDomainMsg{DesiredName: req.Name}
	in := msg.ExecuteMsg{RegisterDomain: body}
	if req.Proxied {
		in = msg.ExecuteMsg{RegisterDomain2: body}
	}
	s.runExecute(w, r, callerOf(r), req.Funds, in, http.StatusOK)
}

func (s *Server) resolveName(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, msg.QueryMsg{NameResolution: &msg.NameResolutionQuery{DomainName: chi.URLParam(r, "name")}})
}

func (s *Server) getDefaultID(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, msg.QueryMsg{DefaultID: &msg.DefaultIDQuery{Address: domain.Addr(chi.URLParam(r, "address"))}})
}

type setDefaultIDReq struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) setDefaultID(w http.ResponseWriter, r *http.Request) {
	var req setDefaultIDReq
	if !s.decode(w, r, &req) {
		return
	}
	s.runExecute(w, r, callerOf(r), nil, msg.ExecuteMsg{UpdateDefaultID: &msg.UpdateDefaultIDMsg{Name: req.Name}}, http.StatusOK)
}

type nextRunsResp struct {
	Cron string      `json:"cron"`
	Next []time.Time `json:"next"`
}

// nextRuns previews when a schedule expression would fire.
func (s *Server) nextRuns(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("cron")
	if expr == "" {
		http.Error(w, "cron is required", http.StatusBadRequest)
		return
	}
	count := 5
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			http.Error(w, "count must be between 1 and 50", http.StatusBadRequest)
			return
		}
		count = n
	}
	resp := nextRunsResp{Cron: expr}
	from := time.Now()
	for i := 0; i < count; i++ {
		next, err := schedule.NextRunTime(expr, from)
		if err != nil {
			http.Error(w, "invalid cron expression: "+err.Error(), http.StatusBadRequest)
			return
		}
		if next.IsZero() {
			break
		}
		resp.Next = append(resp.Next, next)
		from = next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) schedulerTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.Tasks())
}

func (s *Server) runExecute(w http.ResponseWriter, r *http.Request, sender domain.Addr, funds []domain.Coin, in msg.ExecuteMsg, code int) {
	res, err := s.backend.Execute(r.Context(), sender, funds, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, code, res)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, in msg.QueryMsg) {
	s.writeQuery(w, r, func(ctx context.Context) (json.RawMessage, error) { return s.backend.Query(ctx, in) })
}

func (s *Server) writeQuery(w http.ResponseWriter, r *http.Request, fn func(context.Context) (json.RawMessage, error)) {
	out, err := fn(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := s.valid.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			http.Error(w, verrs[0].Field()+" is "+verrs[0].Tag(), http.StatusBadRequest)
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// callerOf is only valid behind the auth middleware.
func callerOf(r *http.Request) domain.Addr {
	p, _ := auth.FromContext(r.Context())
	return p.Address
}

func requireRole(w http.ResponseWriter, r *http.Request, role auth.Role) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok || p.Role != role {
		writeJSON(w, http.StatusForbidden, errorResp{
			Error: fmt.Sprintf("credential of %s lacks role %s", p.Address, role),
			Class: domain.ClassAuthorization.String(),
		})
		return auth.Principal{}, false
	}
	return p, true
}

func taskIDOf(w http.ResponseWriter, r *http.Request) (domain.TaskID, bool) {
	id, err := domain.ParseTag(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// StatusFor maps an error class to an HTTP status.
func StatusFor(err error) int {
	switch domain.Classify(err) {
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassAuthorization:
		return http.StatusForbidden
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassUnsupported:
		return http.StatusNotImplemented
	case domain.ClassRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResp struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorResp{Error: err.Error(), Class: domain.Classify(err).String()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
